package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/gordian-engine/gsentor/sn/snconfig"
	"github.com/gordian-engine/gsentor/sn/snfilter"
	"github.com/gordian-engine/gsentor/sn/snmonitor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCheckCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use: "check [PATH_TO_CONFIG]",

		Short: "Validate a configuration file and summarize its monitors",

		Long: `check parses the configuration file and prints one line per monitored subject,
followed by one line per expression or remediation step that would be dropped.

The command fails only if the file itself cannot be parsed.
Dropped expressions and steps are reported but do not prevent the other monitors from running.
`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString(flagConfig)
			if len(args) == 1 {
				path = args[0]
			}

			entries, err := snconfig.Load(path)
			if err != nil {
				return err
			}

			writeSummary(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func writeSummary(w io.Writer, entries []snconfig.Entry) {
	for _, e := range entries {
		subject := e.Monitor.Subject
		if !e.Include {
			fmt.Fprintf(w, "%s: excluded\n", subject)
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%s: liveness=%s", subject, e.Monitor.Liveness)
		if e.Monitor.Liveness != snmonitor.LivenessNone {
			fmt.Fprintf(&sb, " timeout=%s", snmonitor.FloorTimeout(e.Monitor.Timeout))
			if e.Monitor.SafetyCritical {
				sb.WriteString(" critical")
			}
		}
		fmt.Fprintf(&sb, " expressions=%d steps=%d", len(e.Lambdas), len(e.Steps))
		if e.Monitor.ThrottleHz > 0 {
			fmt.Fprintf(&sb, " rate=%gHz", e.Monitor.ThrottleHz)
		}
		fmt.Fprintln(w, sb.String())

		for _, lc := range e.Lambdas {
			if _, err := snfilter.Compile(lc.Expression); err != nil {
				fmt.Fprintf(w, "%s: expression dropped: %v\n", subject, err)
			}
		}
		for _, sce := range e.StepErrors {
			fmt.Fprintf(w, "%s: %v\n", subject, sce)
		}
	}
}
