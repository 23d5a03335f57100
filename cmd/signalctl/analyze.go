package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/irfndi/signalforge-go/internal/config"
	"github.com/irfndi/signalforge-go/internal/models"
	"github.com/irfndi/signalforge-go/internal/services"
)

type analyzeOptions struct {
	file        string
	symbol      string
	timeframe   string
	period      string
	capital     float64
	risk        float64
	maxPosition float64
	instrument  string
}

// barFile is the object form of a bar file. A bare JSON array of bars is
// accepted too.
type barFile struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	Bars      []models.Bar `json:"bars"`
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	defaults := config.DefaultAnalysisConfig().Capital
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze bars from a local JSON file",
		Example: `  signalctl analyze --file bars.json --capital 10000 --risk 2 --instrument equity
  cat bars.json | signalctl analyze --file - --symbol EUR/USD`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "JSON bar file, or - for stdin")
	f.StringVar(&opts.symbol, "symbol", "", "symbol label; overrides the file's symbol")
	f.StringVar(&opts.timeframe, "timeframe", "", "bar timeframe label (default 1d)")
	f.StringVar(&opts.period, "period", string(models.Period1y), "period label")
	f.Float64Var(&opts.capital, "capital", defaults.DefaultCapital, "total capital")
	f.Float64Var(&opts.risk, "risk", defaults.DefaultRiskPercent, "risk per trade in percent")
	f.Float64Var(&opts.maxPosition, "max-position", 0, "position cap in percent of capital (0 uses the configured cap)")
	f.StringVar(&opts.instrument, "instrument", "", "equity, forex, crypto or index (detected from the symbol when empty)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runAnalyze(cmd *cobra.Command, root *rootOptions, opts *analyzeOptions) error {
	bf, err := readBarFile(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}

	symbol := opts.symbol
	if symbol == "" {
		symbol = bf.Symbol
	}
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	symbol = strings.ToUpper(symbol)

	tfValue := opts.timeframe
	if tfValue == "" {
		tfValue = bf.Timeframe
	}
	if tfValue == "" {
		tfValue = string(models.Timeframe1d)
	}
	timeframe, err := models.ParseTimeframe(tfValue)
	if err != nil {
		return err
	}
	period, err := models.ParsePeriod(opts.period)
	if err != nil {
		return err
	}

	instrument := models.DetectInstrumentClass(symbol)
	if opts.instrument != "" {
		if instrument, err = models.ParseInstrumentClass(opts.instrument); err != nil {
			return err
		}
	}

	analyzer, err := services.NewAnalyzer(config.DefaultAnalysisConfig(), root.logger(cmd))
	if err != nil {
		return err
	}
	result, err := analyzer.Analyze(services.AnalysisInput{
		Symbol:                 symbol,
		Timeframe:              timeframe,
		Period:                 period,
		Bars:                   bf.Bars,
		Capital:                opts.capital,
		RiskPercent:            opts.risk,
		MaxPositionSizePercent: opts.maxPosition,
		Instrument:             instrument,
	})
	if err != nil {
		return err
	}
	return root.writeJSON(cmd.OutOrStdout(), result)
}

func readBarFile(stdin io.Reader, path string) (*barFile, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read bars: %w", err)
	}

	data = bytes.TrimSpace(data)
	var bf barFile
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &bf.Bars)
	} else {
		err = json.Unmarshal(data, &bf)
	}
	if err != nil {
		return nil, fmt.Errorf("decode bars from %s: %w", path, err)
	}
	return &bf, nil
}
