package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photobackup/internal/app"
	"photobackup/pkg/config"
	"photobackup/pkg/logger"
	"photobackup/pkg/reconcile"
	"photobackup/pkg/task"
	"photobackup/pkg/transfer"
)

var Version = "dev"

type options struct {
	settingsPath string
	assumeYes    bool
	dryRun       bool
}

// serviceFactory builds the service once flags are parsed.
type serviceFactory func(settings *config.Settings, opts ...app.Option) (*app.Service, error)

// NewRootCommand builds the command tree. Without a subcommand the
// interactive menu runs.
func NewRootCommand() *cobra.Command {
	return newRootCommand(app.NewService, promptuiPrompter{}, os.Stdin, os.Stdout, os.Stderr)
}

func newRootCommand(newService serviceFactory, p prompter, in *os.File, out, errOut io.Writer) *cobra.Command {
	opts := &options{}

	setup := func(cmd *cobra.Command) (*app.Service, *terminalUI, func(), error) {
		settings, err := config.LoadFromFile(opts.settingsPath)
		if err != nil {
			return nil, nil, nil, err
		}

		level, err := logger.ParseLevel(settings.Log.Level)
		if err != nil {
			return nil, nil, nil, err
		}
		ui := newTerminalUI(p, out, errOut)
		log := logger.New(ui.logWriter(errOut))
		log.SetLevel(level)
		logger.SetDefault(log)

		svc, err := newService(settings,
			app.WithLogger(log),
			app.WithAssumeYes(opts.assumeYes),
			app.WithDryRun(opts.dryRun),
		)
		if err != nil {
			return nil, nil, nil, err
		}

		ui.in = in
		ui.onStop = svc.StopFlag().Stop
		return svc, ui, handleSignals(cmd, svc.StopFlag().Stop), nil
	}

	root := &cobra.Command{
		Use:     "photobackup",
		Short:   "Back up photos to a local target and a remote mirror",
		Version: Version,
		Long: `photobackup scans a source directory, finds the files that are missing
from a local target directory or from the remote (through rclone) and copies
them over. Run without a command for the interactive menu.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, ui, release, err := setup(cmd)
			if err != nil {
				return err
			}
			defer release()
			return runInteractive(cmd.Context(), svc, ui)
		},
	}

	root.PersistentFlags().StringVar(&opts.settingsPath, "settings", config.DefaultSettingsPath, "path to the settings file")
	root.PersistentFlags().BoolVarP(&opts.assumeYes, "yes", "y", false, "do not ask before transferring")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "list pending transfers without copying")

	for _, c := range task.Commands {
		c := c
		root.AddCommand(&cobra.Command{
			Use:   string(c.ID),
			Short: c.Label,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				svc, ui, release, err := setup(cmd)
				if err != nil {
					return err
				}
				defer release()
				_, err = svc.RunCommand(cmd.Context(), c.ID, ui)
				ui.stopListening()
				return err
			},
		})
	}

	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		var verr *reconcile.ValidationError
		if !errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		}
		os.Exit(1)
	}
}

// handleSignals makes the first SIGINT or SIGTERM stop a transfer after the
// current file and the second one cancel the command context, which also
// ends a running rclone process.
func handleSignals(cmd *cobra.Command, stop func()) func() {
	ctx, cancel := context.WithCancel(cmd.Context())
	cmd.SetContext(ctx)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received shutdown signal, stopping after the current file", map[string]any{
				"signal": sig,
			})
			stop()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			logger.Warn("received second shutdown signal, aborting", map[string]any{
				"signal": sig,
			})
			cancel()
		case <-ctx.Done():
		}
	}()

	return func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func isFatal(err error) bool {
	var fsErr *transfer.FilesystemError
	return errors.As(err, &fsErr) || errors.Is(err, context.Canceled)
}
