package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/irfndi/signalforge-go/internal/middleware"
	"github.com/irfndi/signalforge-go/internal/services"
	"github.com/irfndi/signalforge-go/internal/utils"
	"github.com/irfndi/signalforge-go/pkg/marketdata"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	var validation *utils.ValidationError
	var upstream *marketdata.UpstreamError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, marketdata.ErrNoData):
		return http.StatusNotFound, "No data found"
	case errors.Is(err, marketdata.ErrCircuitOpen), errors.As(err, &upstream):
		return http.StatusBadGateway, "Market data provider unavailable"
	case errors.Is(err, services.ErrCacheDisabled):
		return http.StatusServiceUnavailable, "Cache disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func respondError(c *gin.Context, err error) {
	status, title := statusFor(err)
	if status >= http.StatusInternalServerError {
		middleware.RecordError(c, err, title)
	}

	resp := ErrorResponse{
		Error:     title,
		Message:   err.Error(),
		RequestID: middleware.GetRequestID(c),
	}
	var validation *utils.ValidationError
	if errors.As(err, &validation) {
		resp.Fields = validation.Fields
	}
	c.JSON(status, resp)
}
