package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// prompter asks the user questions. The terminal implementation uses
// promptui; tests script the answers.
type prompter interface {
	// Ask repeats the question until a non-empty answer is given. An empty
	// input accepts def when def is set.
	Ask(label, def string) (string, error)
	Confirm(label string) (bool, error)
	Select(label string, items []string) (int, error)
}

type promptuiPrompter struct{}

func (promptuiPrompter) Ask(label, def string) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: def,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("a value is required")
			}
			return nil
		},
	}
	value, err := prompt.Run()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func (promptuiPrompter) Confirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	_, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (promptuiPrompter) Select(label string, items []string) (int, error) {
	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  len(items),
	}
	idx, _, err := prompt.Run()
	if err != nil {
		return -1, fmt.Errorf("select: %w", err)
	}
	return idx, nil
}
