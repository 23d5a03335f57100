package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/pkg/marketdata"
)

type fetchOptions struct {
	timeframe string
	period    string
	baseURL   string
	timeout   time.Duration
}

func newFetchCmd(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch TICKER",
		Short: "Download bars for a ticker and print them in the analyze file format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.timeframe, "timeframe", string(models.Timeframe1d), "bar timeframe")
	f.StringVar(&opts.period, "period", string(models.Period1y), "history to request")
	f.StringVar(&opts.baseURL, "base-url", "https://query1.finance.yahoo.com", "chart API base URL")
	f.DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")
	return cmd
}

func runFetch(cmd *cobra.Command, root *rootOptions, opts *fetchOptions, ticker string) error {
	timeframe, err := models.ParseTimeframe(opts.timeframe)
	if err != nil {
		return err
	}
	period, err := models.ParsePeriod(opts.period)
	if err != nil {
		return err
	}
	period = models.ClampPeriod(timeframe, period)

	client := marketdata.NewYahooClient(config.MarketDataConfig{
		BaseURL:           opts.baseURL,
		Timeout:           opts.timeout.String(),
		RequestsPerSecond: 1,
		Burst:             1,
	}, root.logger(cmd))

	bars, err := client.FetchBars(cmd.Context(), ticker, timeframe, period)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", ticker, err)
	}
	return root.writeJSON(cmd.OutOrStdout(), barFile{
		Symbol:    ticker,
		Timeframe: string(timeframe),
		Bars:      bars,
	})
}
