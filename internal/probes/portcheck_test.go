package probes

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/honeypulse/internal/capture"
)

// greeter accepts connections on loopback and writes banner to each.
func greeter(t *testing.T, banner string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Write([]byte(banner))
			time.Sleep(50 * time.Millisecond)
			conn.Close()
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestCheckHost(t *testing.T) {
	good := greeter(t, "220 Fake FTP Server Ready\r\n")
	wrong := greeter(t, "SSH-2.0-OpenSSH_8.2p1 Ubuntu\r\n")
	silent := greeter(t, "")
	closed := closedPort(t)

	banners := capture.Banners{
		good:   "220 Fake FTP Server Ready\r\n",
		wrong:  "220 Fake FTP Server Ready\r\n",
		silent: "",
	}
	checker := NewPortChecker(2, time.Second, banners)

	results := checker.CheckHost(context.Background(), "127.0.0.1", []int{closed, good, wrong, silent})
	require.Len(t, results, 4)

	byPort := make(map[int]CheckResult)
	for i, r := range results {
		if i > 0 {
			assert.Less(t, results[i-1].Port, r.Port)
		}
		byPort[r.Port] = r
	}

	assert.True(t, byPort[good].OK())
	assert.Equal(t, "220 Fake FTP Server Ready\r\n", byPort[good].Banner)

	assert.True(t, byPort[wrong].Open)
	assert.False(t, byPort[wrong].OK())
	assert.Contains(t, byPort[wrong].Error, "unexpected greeting")

	assert.True(t, byPort[silent].OK())

	assert.False(t, byPort[closed].Open)
	assert.NotEmpty(t, byPort[closed].Error)
}

func TestCheckHostCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := NewPortChecker(1, time.Second, nil)
	results := checker.CheckHost(ctx, "127.0.0.1", []int{closedPort(t), closedPort(t)})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.OK())
	}
}

func TestLocalHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1", LocalHost(""))
	assert.Equal(t, "127.0.0.1", LocalHost("0.0.0.0"))
	assert.Equal(t, "::1", LocalHost("::"))
	assert.Equal(t, "192.168.1.10", LocalHost("192.168.1.10"))
}
