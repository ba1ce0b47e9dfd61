package controlplane

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// isAddrInUse reports whether err is an "address already in use" bind
// failure, matching spec.md §4.6's port-conflict-tolerant behavior: the
// control plane must not take down the rest of the bot over a busy port.
func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	return strings.Contains(err.Error(), "address already in use")
}
