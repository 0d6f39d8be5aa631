// Package probes checks honeypot listeners from the outside.
package probes

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/user/honeypulse/internal/capture"
)

// CheckResult is the outcome of probing one honeypot port.
type CheckResult struct {
	Port     int           `json:"port"`
	Service  string        `json:"service"`
	Open     bool          `json:"open"`
	Banner   string        `json:"banner,omitempty"`
	BannerOK bool          `json:"banner_ok"`
	Latency  time.Duration `json:"latency"`
	Error    string        `json:"error,omitempty"`
}

// OK reports whether the port answered with the expected greeting.
func (r CheckResult) OK() bool {
	return r.Open && r.BannerOK
}

// PortChecker connects to honeypot ports and verifies their greetings. It
// never sends data, so checks leave no records in the activity log.
type PortChecker struct {
	concurrency int
	timeout     time.Duration
	banners     capture.Banners
}

// NewPortChecker creates a new port checker.
func NewPortChecker(concurrency int, timeout time.Duration, banners capture.Banners) *PortChecker {
	if concurrency <= 0 {
		concurrency = 8
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if banners == nil {
		banners = capture.DefaultBanners()
	}
	return &PortChecker{
		concurrency: concurrency,
		timeout:     timeout,
		banners:     banners,
	}
}

// CheckHost probes every port on host and returns one result per port,
// ordered by port.
func (c *PortChecker) CheckHost(ctx context.Context, host string, ports []int) []CheckResult {
	jobs := make(chan int)
	results := make(chan CheckResult, len(ports))

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for port := range jobs {
				results <- c.checkPort(ctx, host, port)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, port := range ports {
			select {
			case jobs <- port:
			case <-ctx.Done():
				for _, p := range ports[i:] {
					results <- CheckResult{Port: p, Service: capture.ServiceName(p), Error: ctx.Err().Error()}
				}
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]CheckResult, 0, len(ports))
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

func (c *PortChecker) checkPort(ctx context.Context, host string, port int) CheckResult {
	result := CheckResult{Port: port, Service: capture.ServiceName(port)}
	expected := c.banners.For(port)

	dialer := net.Dialer{Timeout: c.timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer conn.Close()

	result.Open = true
	result.Latency = time.Since(start)

	if expected == "" {
		result.BannerOK = true
		return result
	}

	result.Banner, err = grabBanner(conn, len(expected), c.timeout)
	if err != nil {
		result.Error = fmt.Sprintf("no greeting: %v", err)
		return result
	}
	result.BannerOK = result.Banner == expected
	if !result.BannerOK {
		result.Error = fmt.Sprintf("unexpected greeting %q", result.Banner)
	}

	return result
}

// grabBanner reads until want bytes arrived or the deadline passes.
func grabBanner(conn net.Conn, want int, timeout time.Duration) (string, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))

	buf := make([]byte, 0, want)
	chunk := make([]byte, capture.ReadSize)
	for len(buf) < want {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			if len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}
	}
	return string(buf), nil
}

// LocalHost returns the address to probe for listeners bound to bindAddress.
func LocalHost(bindAddress string) string {
	switch bindAddress {
	case "", "0.0.0.0":
		return "127.0.0.1"
	case "::", "[::]":
		return "::1"
	default:
		return bindAddress
	}
}
