package ports

import (
	"net"
	"time"
)

// NetworkDialer opens the TCP connections behind SOCKET: serial ports and
// sftp:// mounts.
type NetworkDialer interface {
	// DialTimeout connects to address. A zero timeout leaves the limit to
	// the dialer.
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}
