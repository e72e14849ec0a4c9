package listener

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"votegate/internal/dispatch"
	"votegate/internal/geoip"
	"votegate/internal/metrics"
	"votegate/internal/protocol"
	"votegate/internal/vote"
)

// VoteListenerConfig configures the TCP vote listener
type VoteListenerConfig struct {
	// Addr is the host:port to bind
	Addr string
	// HostKey decrypts legacy blocks
	HostKey *rsa.PrivateKey
	// Tokens authenticates structured payloads
	Tokens protocol.TokenLookup
	// Dispatcher receives every decoded vote
	Dispatcher *dispatch.Dispatcher
	// Metrics is optional
	Metrics *metrics.Metrics
	// GeoIP is optional; it only annotates logs
	GeoIP *geoip.Resolver
	// Log is the root logger
	Log zerolog.Logger
	// ReadTimeout bounds the whole exchange, greeting included
	ReadTimeout time.Duration
	// DispatchTimeout bounds consumer processing per vote
	DispatchTimeout time.Duration
}

// VoteListener accepts site connections and drives each one through
// greeting, classification, decoding, and dispatch. One goroutine per
// connection; all shared state (key, tokens, registry) is read-only while
// the listener runs, so connection handling needs no locks.
type VoteListener struct {
	cfg VoteListenerConfig
	log zerolog.Logger

	ln      net.Listener
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewVoteListener validates the configuration and creates the listener.
func NewVoteListener(cfg VoteListenerConfig) (*VoteListener, error) {
	if cfg.HostKey == nil {
		return nil, fmt.Errorf("host key is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 10 * time.Second
	}
	return &VoteListener{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "listener").Logger(),
	}, nil
}

// Start binds the socket and begins accepting connections.
func (l *VoteListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("listener already started")
	}

	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.cfg.Addr, err)
	}
	l.ln = ln
	l.started = true

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// Stop closes the socket and waits for in-flight connections, bounded by
// the context deadline.
func (l *VoteListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.started || l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ln := l.ln
	l.mu.Unlock()

	if err := ln.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address
func (l *VoteListener) Addr() string {
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.cfg.Addr
}

func (l *VoteListener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(conn)
		}()
	}
}

func (l *VoteListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// handle runs one connection through the full stage sequence. Any protocol
// error closes the connection without dispatch; the sender gets no
// acknowledgement either way beyond TCP teardown.
func (l *VoteListener) handle(conn net.Conn) {
	defer conn.Close()

	sess := protocol.NewSession(conn.RemoteAddr().String())
	log := l.log.With().
		Str("conn_id", sess.ID).
		Str("remote", sess.RemoteAddr).
		Logger()

	host, _, err := net.SplitHostPort(sess.RemoteAddr)
	if err != nil {
		host = sess.RemoteAddr
	}
	if country := l.cfg.GeoIP.Country(host); country != "" {
		log = log.With().Str("country", country).Logger()
	}
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordConnection(host)
	}

	// One deadline covers greeting and vote delivery; slow or silent
	// senders are cut off here.
	if err := conn.SetDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
		log.Debug().Err(err).Msg("set deadline failed")
		return
	}

	if err := protocol.Greet(sess, conn); err != nil {
		// Peer vanished before or during the banner; nothing to report.
		log.Debug().Err(err).Msg("greeting write failed")
		return
	}

	v, site, err := l.readVote(conn, sess)
	if err != nil {
		if l.cfg.Metrics != nil {
			l.cfg.Metrics.RecordFailure(protocol.ErrorClass(err))
		}
		log.Warn().Err(err).
			Str("protocol", sess.Version.String()).
			Msg("vote rejected")
		return
	}

	if l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordVote(sess.Version.String(), site)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.DispatchTimeout)
	defer cancel()
	delivered := l.cfg.Dispatcher.Dispatch(ctx, v)

	log.Info().
		Str("protocol", sess.Version.String()).
		Str("site", site).
		Str("username", v.Username).
		Int("delivered", delivered).
		Msg("vote dispatched")
}

// readVote accumulates inbound bytes until the differentiator picks a
// protocol and the matching decoder has a complete unit to work on. Bytes
// are never consumed before classification; the session buffer holds them
// across reads.
func (l *VoteListener) readVote(conn net.Conn, sess *protocol.Session) (*vote.Vote, string, error) {
	buf := make([]byte, 1024)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			if err := sess.Append(buf[:n]); err != nil {
				return nil, "", err
			}
			v, site, done, err := l.tryDecode(sess)
			if err != nil {
				return nil, "", err
			}
			if done {
				return v, site, nil
			}
		}
		if readErr != nil {
			return nil, "", &protocol.FramingError{
				Reason: fmt.Sprintf("connection ended before a complete vote: %v", readErr),
			}
		}
	}
}

// tryDecode classifies the session if needed and decodes once enough bytes
// are buffered. done is false while more data is required.
func (l *VoteListener) tryDecode(sess *protocol.Session) (*vote.Vote, string, bool, error) {
	data := sess.Buffered()

	if sess.Version == protocol.VersionUnknown {
		switch protocol.Classify(data) {
		case protocol.NeedMoreData:
			return nil, "", false, nil
		case protocol.ClassifiedLegacy:
			sess.Version = protocol.VersionLegacy
		case protocol.ClassifiedV2:
			sess.Version = protocol.VersionV2
		case protocol.ClassifiedInvalid:
			return nil, "", false, &protocol.FramingError{Reason: "unrecognized protocol"}
		}
	}

	switch sess.Version {
	case protocol.VersionLegacy:
		v, err := protocol.DecodeLegacy(data[:protocol.LegacyBlockSize], l.cfg.HostKey)
		if err != nil {
			return nil, "", false, err
		}
		return v, "", true, nil
	case protocol.VersionV2:
		total, err := protocol.V2FrameLen(data)
		if err != nil {
			return nil, "", false, err
		}
		if total < 0 || len(data) < total {
			return nil, "", false, nil
		}
		v, site, err := protocol.DecodeV2(data[:total], l.cfg.Tokens, sess.Challenge)
		if err != nil {
			return nil, "", false, err
		}
		return v, site, true, nil
	default:
		return nil, "", false, nil
	}
}
