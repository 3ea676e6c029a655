// Package realdialog provides a PasswordPrompter that asks on the terminal
// with a charmbracelet/huh form.
package realdialog

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"

	"github.com/acolita/basic-fileio/internal/ports"
)

// ErrNoTerminal is returned when standard input is not a terminal.
var ErrNoTerminal = errors.New("no terminal to prompt on")

// Prompter implements ports.PasswordPrompter.
type Prompter struct {
	in *os.File
}

// New returns a prompter reading from standard input.
func New() *Prompter {
	return &Prompter{in: os.Stdin}
}

func (p *Prompter) interactive() bool {
	fd := p.in.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Password shows a masked input for the account in req.
func (p *Prompter) Password(req ports.PasswordRequest) (string, error) {
	if !p.interactive() {
		return "", ErrNoTerminal
	}

	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("Password for %s@%s", req.User, req.Host)).
				Description(req.Mount).
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return password, nil
}

var _ ports.PasswordPrompter = (*Prompter)(nil)
