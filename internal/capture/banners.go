// Package capture implements the honeypot write path: listeners, per-connection
// sessions and the append-only activity log.
package capture

import "strconv"

// RejectReply is sent after every inbound payload, on every port.
const RejectReply = "Command not recognized.\r\n"

var defaultBanners = map[int]string{
	21:  "220 Fake FTP Server Ready\r\n",
	22:  "SSH-2.0-OpenSSH_8.2p1 Ubuntu\r\n",
	80:  "HTTP/1.1 200 OK\r\nServer: Fake Apache\r\n\r\n",
	443: "HTTP/1.1 200 OK\r\nServer: Fake Apache\r\n\r\n",
}

var serviceNames = map[int]string{
	21:  "FTP",
	22:  "SSH",
	80:  "HTTP",
	443: "HTTPS",
}

// Banners maps a port to the greeting sent when a connection opens.
type Banners map[int]string

// DefaultBanners returns a copy of the built-in greetings.
func DefaultBanners() Banners {
	b := make(Banners, len(defaultBanners))
	for port, banner := range defaultBanners {
		b[port] = banner
	}
	return b
}

// BannersFromConfig merges configured overrides, keyed by port string, over
// the built-in greetings. Keys that are not port numbers are ignored.
func BannersFromConfig(overrides map[string]string) Banners {
	b := DefaultBanners()
	for key, banner := range overrides {
		port, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		b[port] = banner
	}
	return b
}

// For returns the greeting for port, or "" when the port has none.
func (b Banners) For(port int) string {
	return b[port]
}

// ServiceName returns the display name of the service emulated on port.
func ServiceName(port int) string {
	if name, ok := serviceNames[port]; ok {
		return name
	}
	return "Unknown"
}
