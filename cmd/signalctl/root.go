package main

import (
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irfndi/signalforge-go/internal/logging"
)

type rootOptions struct {
	logLevel string
	pretty   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "signalctl",
		Short:         "Run trading signal analysis from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.pretty, "pretty", true, "indent JSON output")

	root.AddCommand(newAnalyzeCmd(opts), newFetchCmd(opts))
	return root
}

// logger writes to stderr so stdout stays machine readable.
func (o *rootOptions) logger(cmd *cobra.Command) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(cmd.ErrOrStderr())
	l.SetLevel(logging.ParseLogrusLevel(o.logLevel))
	return l
}

func (o *rootOptions) writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
