package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/net/netutil"

	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/util"
)

var (
	// ErrNoPorts is returned when the manager is started without ports.
	ErrNoPorts = errors.New("no ports to monitor")
	// ErrNoListeners is returned when none of the configured ports could be bound.
	ErrNoListeners = errors.New("no listener could be started")
)

// ManagerConfig configures a ListenerManager.
type ManagerConfig struct {
	BindAddress     string
	Ports           []int
	Banners         Banners
	IdleTimeout     time.Duration
	MaxConnsPerPort int
}

// ListenerManager owns one listening socket per monitored port and hands each
// accepted connection to its own Session.
type ListenerManager struct {
	cfg      ManagerConfig
	recorder Recorder
	onRecord func(model.LiveEvent)

	mu        sync.Mutex
	listeners map[int]net.Listener
	statuses  []model.ListenerStatus
	conns     map[net.Conn]struct{}
	started   bool

	active   cmap.ConcurrentMap[string, int]
	sessions sync.WaitGroup
	accepts  sync.WaitGroup
	cancel   context.CancelFunc
}

// NewListenerManager creates a manager that records through rec.
func NewListenerManager(cfg ManagerConfig, rec Recorder) *ListenerManager {
	if cfg.Banners == nil {
		cfg.Banners = DefaultBanners()
	}
	return &ListenerManager{
		cfg:       cfg,
		recorder:  rec,
		listeners: make(map[int]net.Listener),
		conns:     make(map[net.Conn]struct{}),
		active:    cmap.New[int](),
	}
}

// OnRecord registers a hook observing every persisted record. It must be
// called before Start.
func (m *ListenerManager) OnRecord(fn func(model.LiveEvent)) {
	m.onRecord = fn
}

// Start binds every configured port and begins accepting. A port that fails
// to bind is reported and skipped; Start fails only when no port could be bound.
func (m *ListenerManager) Start(ctx context.Context) ([]model.ListenerStatus, error) {
	ports := dedupePorts(m.cfg.Ports)
	if len(ports) == 0 {
		return nil, ErrNoPorts
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil, fmt.Errorf("listener manager already started")
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)

	var lc net.ListenConfig
	statuses := make([]model.ListenerStatus, 0, len(ports))
	bound := 0

	for _, port := range ports {
		status := model.ListenerStatus{Port: port, Service: ServiceName(port)}
		addr := net.JoinHostPort(m.cfg.BindAddress, strconv.Itoa(port))

		ln, err := lc.Listen(ctx, "tcp", addr)
		if err != nil {
			status.Error = err.Error()
			if hint := bindHint(err); hint != "" {
				status.Error += " (" + hint + ")"
			}
			statuses = append(statuses, status)
			util.Error("Failed to start listener on %s: %s", addr, status.Error)
			continue
		}
		if m.cfg.MaxConnsPerPort > 0 {
			ln = netutil.LimitListener(ln, m.cfg.MaxConnsPerPort)
		}

		status.Bound = true
		statuses = append(statuses, status)
		m.listeners[port] = ln
		bound++

		util.Info("Honeypot listening on %s", ln.Addr())

		m.accepts.Add(1)
		go func(port int, ln net.Listener) {
			defer m.accepts.Done()
			m.acceptLoop(ctx, port, ln)
		}(port, ln)
	}

	m.statuses = statuses

	if bound == 0 {
		return statuses, ErrNoListeners
	}
	return statuses, nil
}

func (m *ListenerManager) acceptLoop(ctx context.Context, port int, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			util.Warn("Accept on port %d failed: %v", port, err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !m.track(conn) {
			conn.Close()
			return
		}

		m.sessions.Add(1)
		go m.serve(ctx, port, conn)
	}
}

func (m *ListenerManager) serve(ctx context.Context, port int, conn net.Conn) {
	defer m.sessions.Done()
	defer m.untrack(conn)

	localPort := port
	if tcp, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		localPort = tcp.Port
	}

	sess := NewSession(conn, SessionConfig{
		Port:        localPort,
		Banner:      m.cfg.Banners.For(localPort),
		IdleTimeout: m.cfg.IdleTimeout,
		Recorder:    m.recorder,
		OnRecord:    m.onRecord,
	})

	util.Info("Connection from %s on port %d", sess.RemoteIP, localPort)
	m.acquire(sess.RemoteIP)
	defer m.release(sess.RemoteIP)

	if err := sess.Run(ctx); err != nil {
		util.Error("Failed to log activity from %s on port %d: %v", sess.RemoteIP, localPort, err)
	}
}

func (m *ListenerManager) acquire(ip string) {
	m.active.Upsert(ip, 1, func(exist bool, old, add int) int {
		if exist {
			return old + add
		}
		return add
	})
}

func (m *ListenerManager) release(ip string) {
	m.active.Upsert(ip, -1, func(exist bool, old, add int) int {
		return old + add
	})
	m.active.RemoveCb(ip, func(key string, v int, exists bool) bool {
		return exists && v <= 0
	})
}

func (m *ListenerManager) track(conn net.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns == nil {
		return false
	}
	m.conns[conn] = struct{}{}
	return true
}

func (m *ListenerManager) untrack(conn net.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns != nil {
		delete(m.conns, conn)
	}
}

// Statuses returns the bind outcome of every configured port.
func (m *ListenerManager) Statuses() []model.ListenerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ListenerStatus, len(m.statuses))
	copy(out, m.statuses)
	return out
}

// Addr returns the bound address for port, or nil when it is not listening.
func (m *ListenerManager) Addr(port int) net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ln, ok := m.listeners[port]; ok {
		return ln.Addr()
	}
	return nil
}

// ActiveSessions returns the number of open sessions per remote address.
func (m *ListenerManager) ActiveSessions() map[string]int {
	out := make(map[string]int)
	for item := range m.active.IterBuffered() {
		if item.Val > 0 {
			out[item.Key] = item.Val
		}
	}
	return out
}

// Close stops all listeners and aborts in-flight sessions.
func (m *ListenerManager) Close() error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	var errs []error
	for port, ln := range m.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("port %d: %w", port, err))
		}
	}
	m.listeners = make(map[int]net.Listener)
	for conn := range m.conns {
		conn.Close()
	}
	m.conns = nil
	m.mu.Unlock()

	m.accepts.Wait()
	m.sessions.Wait()

	return errors.Join(errs...)
}

func dedupePorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
