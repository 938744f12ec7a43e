package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	"photobackup/internal/app"
	"photobackup/pkg/reconcile"
	"photobackup/pkg/task"
)

const quitLabel = "(q) Quit"

// commandRunner is the part of app.Service the front ends drive.
type commandRunner interface {
	HasCache() bool
	HasConfig() bool
	ListCommands() []task.Command
	RunCommand(ctx context.Context, id task.CommandID, ui app.UI) (*task.Result, error)
}

// runInteractive loads the cache and the configuration on first use, then
// offers the command menu until the user quits.
func runInteractive(ctx context.Context, svc commandRunner, ui *terminalUI) error {
	if !svc.HasCache() {
		if err := runOne(ctx, svc, ui, task.CommandRefresh); err != nil {
			return err
		}
	}
	if !svc.HasConfig() {
		if err := runOne(ctx, svc, ui, task.CommandConfigure); err != nil {
			return err
		}
	}

	commands := svc.ListCommands()
	items := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		items = append(items, fmt.Sprintf("(%s) %s", c.Key, c.Label))
	}
	items = append(items, quitLabel)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		idx, err := ui.prompt.Select("Select command", items)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			return err
		}
		if idx == len(commands) {
			return nil
		}

		if err := runOne(ctx, svc, ui, commands[idx].ID); err != nil {
			return err
		}
	}
}

// runOne runs a command and reports recoverable failures. Only errors that
// leave the program in an unknown state are returned.
func runOne(ctx context.Context, svc commandRunner, ui *terminalUI, id task.CommandID) error {
	_, err := svc.RunCommand(ctx, id, ui)
	ui.stopListening()
	if err == nil {
		return nil
	}

	var verr *reconcile.ValidationError
	switch {
	case errors.As(err, &verr):
		// Already listed by the service.
		return nil
	case errors.Is(err, promptui.ErrInterrupt):
		return nil
	case isFatal(err):
		return err
	default:
		ui.Errorln("Error: " + err.Error())
		return nil
	}
}
