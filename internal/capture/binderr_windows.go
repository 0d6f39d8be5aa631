//go:build windows

package capture

import (
	"errors"

	"golang.org/x/sys/windows"
)

// bindHint explains the usual causes of a failed bind.
func bindHint(err error) string {
	switch {
	case errors.Is(err, windows.WSAEADDRINUSE):
		return "port already in use"
	case errors.Is(err, windows.WSAEACCES):
		return "insufficient privilege"
	}
	return ""
}
