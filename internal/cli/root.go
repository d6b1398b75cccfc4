// Package cli wires the cascade commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRootCmd creates the root command
func NewRootCmd(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cascade",
		Short: "Keep stacked pull requests mergeable after a squash merge",
		Long: `cascade repairs a stack of dependent pull requests after one of them was
squash-merged: every branch that was based on the merged branch is merged
forward onto the new state, downstream branches follow, and branches that
cannot be merged cleanly get a comment with a resolution recipe instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	return rootCmd
}

func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cascade %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// initLogger builds the diagnostic logger: logfmt lines on stderr, so they
// never mix with the summary on stdout.
func initLogger(level string) (*zap.Logger, error) {
	var logLevel zapcore.Level
	if err := logLevel.Set(level); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.LevelKey = "loglevel"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stderr,
		logLevel),
	)
	return logger, nil
}
