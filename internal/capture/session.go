package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/util"
)

// ReadSize bounds a single read; larger payloads arrive as several records.
const ReadSize = 1024

// CloseReason says why a session ended.
type CloseReason string

const (
	ClosedByPeer   CloseReason = "peer_closed"
	ClosedOnError  CloseReason = "transport_error"
	ClosedIdle     CloseReason = "idle_timeout"
	ClosedOnLogErr CloseReason = "log_error"
	ClosedCanceled CloseReason = "canceled"
	ClosedOnPanic  CloseReason = "panic"
)

// SessionConfig configures a single connection session.
type SessionConfig struct {
	Port        int
	Banner      string
	IdleTimeout time.Duration
	Recorder    Recorder
	// OnRecord, when set, observes every record after it has been persisted.
	OnRecord func(model.LiveEvent)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session speaks a minimal stub of the service on one port and records every
// payload the peer sends.
type Session struct {
	ID       string
	RemoteIP string

	conn    net.Conn
	cfg     SessionConfig
	records int
	reason  CloseReason
	log     *logrus.Entry
}

// NewSession wraps an accepted connection.
func NewSession(conn net.Conn, cfg SessionConfig) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	id := uuid.NewString()
	ip := remoteIP(conn.RemoteAddr())
	return &Session{
		ID:       id,
		RemoteIP: ip,
		conn:     conn,
		cfg:      cfg,
		log: util.WithFields(logrus.Fields{
			"session": id,
			"remote":  ip,
			"port":    cfg.Port,
		}),
	}
}

// Run drives the session until the peer leaves, a transport error occurs or
// ctx is canceled. The connection is always closed on return. The returned
// error is non-nil only when a record could not be persisted.
func (s *Session) Run(ctx context.Context) (err error) {
	var once sync.Once
	closeConn := func() { once.Do(func() { s.conn.Close() }) }
	defer closeConn()

	defer func() {
		if r := recover(); r != nil {
			s.reason = ClosedOnPanic
			s.log.Errorf("session panic: %v", r)
			err = nil
		}
		s.log.WithField("records", s.records).Debugf("session closed: %s", s.reason)
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	s.log.Debug("session opened")

	if banner := s.cfg.Banner; banner != "" {
		if _, werr := io.WriteString(s.conn, banner); werr != nil {
			s.reason = s.transportReason(ctx, werr)
			return nil
		}
	}

	buf := make([]byte, ReadSize)
	for {
		if s.cfg.IdleTimeout > 0 {
			s.conn.SetReadDeadline(s.cfg.Now().Add(s.cfg.IdleTimeout))
		}

		n, rerr := s.conn.Read(buf)
		if n > 0 {
			if err := s.record(buf[:n]); err != nil {
				s.reason = ClosedOnLogErr
				return err
			}
			if _, werr := io.WriteString(s.conn, RejectReply); werr != nil {
				s.reason = s.transportReason(ctx, werr)
				return nil
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				s.reason = ClosedByPeer
			} else {
				s.reason = s.transportReason(ctx, rerr)
			}
			return nil
		}
	}
}

func (s *Session) record(payload []byte) error {
	rec := model.ActivityRecord{
		Timestamp: s.cfg.Now(),
		RemoteIP:  s.RemoteIP,
		Port:      s.cfg.Port,
		Data:      strings.ToValidUTF8(string(payload), "�"),
	}
	if err := s.cfg.Recorder.Append(rec); err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	s.records++
	s.log.Infof("logged %d bytes", len(payload))

	if s.cfg.OnRecord != nil {
		s.cfg.OnRecord(model.LiveEvent{SessionID: s.ID, Record: rec})
	}
	return nil
}

func (s *Session) transportReason(ctx context.Context, err error) CloseReason {
	if ctx.Err() != nil {
		return ClosedCanceled
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClosedIdle
	}
	s.log.Debugf("connection lost: %v", err)
	return ClosedOnError
}

// Records returns how many records the session has persisted.
func (s *Session) Records() int {
	return s.records
}

// Reason returns why the session ended; empty while it is running.
func (s *Session) Reason() CloseReason {
	return s.reason
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
