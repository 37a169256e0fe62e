// Command gsentor watches message subjects on a NATS bus
// and runs remediation steps when configured conditions hold.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	flagConfig         = "config"
	flagNATSURL        = "nats-url"
	flagSafetyInterval = "safety-interval"
	flagLogLevel       = "log-level"
	flagWatch          = "watch"
	flagName           = "name"
)

func main() {
	if err := mainE(); err != nil {
		os.Exit(1)
	}
}

func mainE() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))

	root := NewRootCmd(logger, &level)
	if err := root.ExecuteContext(ctx); err != nil {
		logger.Info("Failure", "err", err)
		os.Stderr.Sync()
		return err
	}

	return nil
}

// NewRootCmd returns the gsentor command tree.
// The level is adjusted from the --log-level setting before any subcommand runs.
func NewRootCmd(log *slog.Logger, level *slog.LevelVar) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use: "gsentor SUBCOMMAND",

		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},

		Long: `gsentor monitors message subjects for liveness and content conditions.

Each configured subject can raise notifications when it stops or starts being published,
or when a content expression holds on its messages for a configured time,
and can run a list of remediation steps in response.

Every flag may also be set through the environment with the GSENTOR_ prefix,
e.g. GSENTOR_NATS_URL.
`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("failed to bind flags: %w", err)
			}
			if err := level.UnmarshalText([]byte(v.GetString(flagLogLevel))); err != nil {
				return fmt.Errorf("invalid --%s: %w", flagLogLevel, err)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String(flagConfig, "sentor.yaml", "path to the subject configuration file")
	pf.String(flagLogLevel, "info", "minimum log level (debug|info|warn|error)")

	v.SetEnvPrefix("GSENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(
		newRunCmd(log, v),
		newCheckCmd(v),
	)

	return rootCmd
}

func addRunFlags(f *pflag.FlagSet) {
	f.String(flagNATSURL, "nats://127.0.0.1:4222", "URL of the NATS server")
	f.Duration(flagSafetyInterval, time.Second, "how often to publish the safety state when it is unchanged")
	f.Bool(flagWatch, false, "reload the configuration file when it changes")

	host, _ := os.Hostname()
	if host == "" {
		host = "gsentor"
	}
	f.String(flagName, host, "node name attached to published messages")
}
