package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gordian-engine/gsentor/sn/snconfig"
	"github.com/gordian-engine/gsentor/sn/snnats"
	"github.com/gordian-engine/gsentor/sn/snsupervisor"
	"github.com/gordian-engine/gsentor/sn/snwatchdog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(log *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use: "run",

		Short: "Monitor the configured subjects until interrupted",

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), log, v)
		},
	}

	addRunFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, log *slog.Logger, v *viper.Viper) error {
	path := v.GetString(flagConfig)
	entries, err := snconfig.Load(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	wd, ctx := snwatchdog.NewWatchdog(ctx, log.With("sys", "watchdog"))
	defer wd.Wait()
	defer cancel()

	conn, err := snnats.Dial(log.With("sys", "nats"), v.GetString(flagNATSURL), v.GetString(flagName))
	if err != nil {
		return err
	}
	defer conn.Close()

	sv, err := snsupervisor.New(
		ctx, log.With("sys", "supervisor"), entries,
		snsupervisor.WithSubscriber(conn),
		snsupervisor.WithGraph(conn),
		snsupervisor.WithPublisher(conn),
		snsupervisor.WithResolver(snnats.NewResolver(log.With("sys", "resolver"), conn)),
		snsupervisor.WithWatchdog(wd),
		snsupervisor.WithSafetyInterval(v.GetDuration(flagSafetyInterval)),
	)
	if err != nil {
		return fmt.Errorf("failed to build monitors: %w", err)
	}

	svc, err := snnats.ServeControl(log.With("sys", "control"), conn, sv)
	if err != nil {
		return fmt.Errorf("failed to start control service: %w", err)
	}
	defer func() {
		if err := svc.Stop(); err != nil {
			log.Warn("Failed to stop control service", "err", err)
		}
	}()

	sv.Start()

	if v.GetBool(flagWatch) {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create config watcher: %w", err)
		}
		defer w.Close()

		// Editors often replace the file, so watch its directory.
		if err := w.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		go watchConfig(ctx, log.With("sys", "reload"), w, path, sv)
	}

	sv.Wait()

	if snwatchdog.IsTermination(ctx) {
		return context.Cause(ctx)
	}
	return nil
}

// reloader is the subset of the supervisor used by watchConfig.
type reloader interface {
	Reload([]snconfig.Entry) error
}

// watchConfig reloads the configuration at path whenever w reports a change to it,
// until ctx is canceled or w is closed.
// A file that fails to parse leaves the running monitors in place.
func watchConfig(ctx context.Context, log *slog.Logger, w *fsnotify.Watcher, path string, r reloader) {
	clean := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Warn("Config watcher error", "err", err)

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != clean {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			entries, err := snconfig.Load(path)
			if err != nil {
				log.Warn("Ignoring invalid configuration", "path", path, "err", err)
				continue
			}

			if err := r.Reload(entries); err != nil {
				log.Error("Failed to reload configuration", "err", err)
				continue
			}
			log.Info("Configuration reloaded", "path", path, "entries", len(entries))
		}
	}
}
