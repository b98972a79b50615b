//go:build windows

package ipc

import (
	"fmt"
	"net"
	"time"
)

// CreatePlatformListener opens the feed on TCP localhost. Windows has
// no portable Unix socket support in the standard library, and
// loopback TCP is still sub-millisecond.
func CreatePlatformListener(socketPath string) (net.Listener, error) {
	listener, err := net.Listen("tcp", DefaultTCPPort)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", DefaultTCPPort, err)
	}
	return listener, nil
}

// ConnectPlatform dials the loopback feed port; socketPath is ignored.
func ConnectPlatform(socketPath string) (net.Conn, error) {
	return net.DialTimeout("tcp", DefaultTCPPort, time.Second)
}

// GetPlatformAddress returns the address string for logging.
func GetPlatformAddress(socketPath string) string {
	return DefaultTCPPort + " (TCP loopback)"
}
