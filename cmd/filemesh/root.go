// Command filemesh is the CLI front end for a filemesh node: starting
// the node, searching the network, pulling a file from known peers, and
// registering manual peer seeds. It replaces the teacher's interactive
// readServentCommands loop (servent/main.go) and test_client/main.go's
// manual query/download flow with a cobra command tree, grounded on
// ZhiminHu1-p2p-file-transfer/cmd/p2p-transfer's rootCmd/AddCommand
// wiring.
package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"filemesh/pkg/progresslog"
)

var logFormat string

var rootCmd = &cobra.Command{
	Use:   "filemesh",
	Short: "A decentralized peer-to-peer file-sharing node",
	Long:  "filemesh discovers peers over UDP broadcast, serves a shared folder over TCP, and downloads files from multiple sources in parallel.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", `log output format: "zap" (structured, default) or "plain" (unadorned lines on stderr)`)
}

// newSink picks the progress/log sink implementation. --log-format takes
// precedence; otherwise FILEMESH_LOG_FORMAT / LOG_FORMAT is checked,
// following the same env-var fallback pattern as ZapSink's level
// selection. Anything other than "plain" keeps the zap-backed default.
func newSink() progresslog.Sink {
	format := logFormat
	if format == "" {
		format = firstNonEmptyEnv("FILEMESH_LOG_FORMAT", "LOG_FORMAT")
	}
	if strings.EqualFold(format, "plain") {
		return progresslog.NewStdoutSink(os.Stderr)
	}
	return progresslog.NewZapSink(zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
}

func firstNonEmptyEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
