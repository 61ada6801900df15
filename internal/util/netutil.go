package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// CreateListener creates a net.Listener on the given address. Only TCP
// networks are supported.
func CreateListener(network, address string) (net.Listener, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network type: %s, only 'tcp', 'tcp4', or 'tcp6' are supported for CreateListener", network)
	}
	if address == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s %s: %w", network, address, err)
	}
	return listener, nil
}

// IsAddrInUse checks if the error indicates an "address already in use" condition.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Err == syscall.EADDRINUSE {
		return true
	}
	// Go's net package often wraps these, e.g. *net.OpError.
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
