// Package prompt asks the operator to pick one of several options: a state
// document for a stage, or a connection profile to bind.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var (
	// ErrCancelled is returned when the operator quits without choosing.
	ErrCancelled = errors.New("selection cancelled")
	// ErrNoChoice is returned when a choice is needed but none can be made.
	ErrNoChoice = errors.New("no selection possible")
)

// Option is one entry. Disabled entries are listed but cannot be picked;
// Reason says why.
type Option struct {
	Label       string
	Description string
	Value       string
	Disabled    bool
	Reason      string
}

// Chooser picks the Value of one enabled option.
type Chooser interface {
	ChooseOneOf(ctx context.Context, title string, options []Option) (string, error)
}

// Fixed answers with a value given up front (usually a flag). It fails if
// the value is not an enabled option.
type Fixed string

func (f Fixed) ChooseOneOf(_ context.Context, title string, options []Option) (string, error) {
	want := string(f)
	for _, o := range options {
		if o.Value != want && o.Label != want {
			continue
		}
		if o.Disabled {
			return "", fmt.Errorf("%w: %s: %q is not selectable (%s)", ErrNoChoice, title, want, o.Reason)
		}
		return o.Value, nil
	}
	return "", fmt.Errorf("%w: %s: %q is not one of [%s]", ErrNoChoice, title, want, strings.Join(values(options), ", "))
}

// NonInteractive always fails, telling the operator which flag to pass.
type NonInteractive struct {
	Hint string
}

func (n NonInteractive) ChooseOneOf(_ context.Context, title string, options []Option) (string, error) {
	msg := fmt.Sprintf("%s: stdin is not a terminal", title)
	if n.Hint != "" {
		msg += "; " + n.Hint
	}
	if v := enabledValues(options); len(v) > 0 {
		msg += fmt.Sprintf(" (choices: %s)", strings.Join(v, ", "))
	}
	return "", fmt.Errorf("%w: %s", ErrNoChoice, msg)
}

// Detect returns Fixed when fixed is set, Interactive when stdin and stdout
// are terminals, and NonInteractive with hint otherwise.
func Detect(fixed, hint string) Chooser {
	if fixed != "" {
		return Fixed(fixed)
	}
	if IsTerminal() {
		return &Interactive{}
	}
	return NonInteractive{Hint: hint}
}

// IsTerminal reports whether both stdin and stdout are terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func values(options []Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Value
	}
	return out
}

func enabledValues(options []Option) []string {
	var out []string
	for _, o := range options {
		if !o.Disabled {
			out = append(out, o.Value)
		}
	}
	return out
}
