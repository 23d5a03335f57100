package database

import (
	"context"
	"io"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/signalforge-go/internal/config"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewRedisConnection(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	client, err := NewRedisConnection(context.Background(), config.RedisConfig{Host: s.Host(), Port: port}, quietLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))

	s.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)
	host := s.Host()
	s.Close()

	_, err = NewRedisConnection(context.Background(), config.RedisConfig{Host: host, Port: port}, quietLogger())
	assert.Error(t, err)
}

func TestRedisClient_CloseNil(t *testing.T) {
	var r *RedisClient
	assert.NotPanics(t, r.Close)
}
