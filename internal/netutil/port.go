package netutil

import (
	"fmt"
	"net"
	"time"
)

// probeTimeout matches the 1.2s liveness probe window.
const probeTimeout = 1200 * time.Millisecond

// FindFreePort asks the OS for an ephemeral TCP port bound to 127.0.0.1,
// closes the probe listener, and returns the allocated port.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("port_allocation_failed: %w", err)
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("port_allocation_failed: unexpected listener address type")
	}
	return addr.Port, nil
}

// ProbeLocalPort reports whether something is listening on 127.0.0.1:port,
// bounded by a 1.2s connect timeout.
func ProbeLocalPort(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), probeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
