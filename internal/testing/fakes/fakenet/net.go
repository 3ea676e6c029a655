// Package fakenet provides an in-memory NetworkDialer for serial socket
// tests.
package fakenet

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Dialer refuses every address until Serve attaches an in-memory peer to
// one of them.
type Dialer struct {
	mu    sync.Mutex
	peers map[string]chan net.Conn
	err   error
	calls []DialCall
}

// DialCall records one dial.
type DialCall struct {
	Network string
	Address string
	Timeout time.Duration
}

// NewDialer returns a dialer with nothing listening.
func NewDialer() *Dialer {
	return &Dialer{peers: make(map[string]chan net.Conn)}
}

// DialTimeout records the call and connects to a served address.
func (d *Dialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DialCall{Network: network, Address: address, Timeout: timeout})
	if d.err != nil {
		return nil, d.err
	}
	peers, ok := d.peers[address]
	if !ok {
		return nil, fmt.Errorf("fakenet: connection refused: %s", address)
	}
	client, server := net.Pipe()
	peers <- server
	return client, nil
}

// Calls returns the recorded dials.
func (d *Dialer) Calls() []DialCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DialCall(nil), d.calls...)
}

// SetError makes every dial fail with err.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Serve accepts dials to address. Each dial returns the client end of a
// net.Pipe and delivers the server end on the returned channel, which
// buffers a few connections.
func (d *Dialer) Serve(address string) <-chan net.Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	peers := make(chan net.Conn, 4)
	d.peers[address] = peers
	return peers
}
