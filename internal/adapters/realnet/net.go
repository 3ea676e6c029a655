// Package realnet dials host TCP connections for serial sockets and
// remote mounts.
package realnet

import (
	"net"
	"time"
)

// Dialer implements ports.NetworkDialer with the net package.
type Dialer struct {
	// Timeout applies when a caller passes no timeout of its own.
	Timeout time.Duration
}

// NewDialer returns a Dialer with a default connect timeout; zero means
// the operating system's limit.
func NewDialer(timeout time.Duration) *Dialer {
	return &Dialer{Timeout: timeout}
}

// DialTimeout connects to address.
func (d *Dialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		timeout = d.Timeout
	}
	return net.DialTimeout(network, address, timeout)
}
