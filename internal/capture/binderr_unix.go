//go:build !windows

package capture

import (
	"errors"

	"golang.org/x/sys/unix"
)

// bindHint explains the usual causes of a failed bind.
func bindHint(err error) string {
	switch {
	case errors.Is(err, unix.EADDRINUSE):
		return "port already in use"
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return "insufficient privilege (ports below 1024 need root or CAP_NET_BIND_SERVICE)"
	case errors.Is(err, unix.EADDRNOTAVAIL):
		return "bind address not available on this host"
	}
	return ""
}
