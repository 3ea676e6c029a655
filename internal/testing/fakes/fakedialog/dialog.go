// Package fakedialog provides a test fake for ports.PasswordPrompter.
package fakedialog

import (
	"sync"

	"github.com/acolita/basic-fileio/internal/ports"
)

// Prompter answers password prompts with a fixed reply.
type Prompter struct {
	// Answer is the password returned by Password.
	Answer string
	// Err is returned instead of Answer when set.
	Err error

	mu    sync.Mutex
	calls []ports.PasswordRequest
}

// New returns a prompter that answers with answer.
func New(answer string) *Prompter {
	return &Prompter{Answer: answer}
}

// Password records req and returns the configured reply.
func (p *Prompter) Password(req ports.PasswordRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Answer, nil
}

// Calls returns the requests seen so far.
func (p *Prompter) Calls() []ports.PasswordRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ports.PasswordRequest(nil), p.calls...)
}
