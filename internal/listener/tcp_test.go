package listener

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"votegate/internal/dispatch"
	"votegate/internal/keys"
	"votegate/internal/metrics"
	"votegate/internal/protocol"
	"votegate/internal/vote"
)

type captureConsumer struct {
	mu    sync.Mutex
	votes []vote.Vote
}

func (c *captureConsumer) Name() string {
	return "capture"
}

func (c *captureConsumer) Accept(ctx context.Context, v *vote.Vote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.votes = append(c.votes, *v)
	return nil
}

func (c *captureConsumer) Votes() []vote.Vote {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]vote.Vote(nil), c.votes...)
}

var (
	e2eKeyOnce sync.Once
	e2eKey     *rsa.PrivateKey
)

func e2eHostKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	e2eKeyOnce.Do(func() {
		var err error
		e2eKey, err = rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
	})
	return e2eKey
}

// startListener brings up a full listener on an ephemeral port and returns
// it with the capturing consumer behind it.
func startListener(t *testing.T) (*VoteListener, *captureConsumer) {
	t.Helper()

	capture := &captureConsumer{}
	tokens, err := keys.NewTokenStore(map[string]string{"alpha": "secret123"})
	require.NoError(t, err)

	l, err := NewVoteListener(VoteListenerConfig{
		Addr:        "127.0.0.1:0",
		HostKey:     e2eHostKey(t),
		Tokens:      tokens,
		Dispatcher:  dispatch.New(dispatch.NewRegistry(capture), zerolog.Nop()),
		Metrics:     metrics.New(),
		Log:         zerolog.Nop(),
		ReadTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, l.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		l.Stop(ctx)
	})
	return l, capture
}

// dialAndGreet connects and returns the connection plus the challenge from
// the banner.
func dialAndGreet(t *testing.T, addr string) (net.Conn, string) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	banner, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	parts := strings.Fields(strings.TrimSpace(banner))
	require.Len(t, parts, 3, "banner should be 'VOTIFIER <version> <challenge>'")
	require.Equal(t, "VOTIFIER", parts[0])
	require.Equal(t, "2", parts[1])
	return conn, parts[2]
}

func awaitClose(t *testing.T, conn net.Conn) {
	t.Helper()
	_, err := io.ReadAll(conn)
	require.NoError(t, err, "server should close the connection cleanly")
}

func TestStructuredVoteDelivery(t *testing.T) {
	l, capture := startListener(t)

	conn, challenge := dialAndGreet(t, l.Addr())
	defer conn.Close()

	want := vote.Vote{
		ServiceName: "MyServer",
		Username:    "Steve",
		Address:     "1.2.3.4",
		Timestamp:   "1700000000",
	}
	frame, err := protocol.EncodeV2("alpha", "secret123", &want, challenge)
	require.NoError(t, err)

	_, err = conn.Write(frame)
	require.NoError(t, err)
	awaitClose(t, conn)

	votes := capture.Votes()
	require.Len(t, votes, 1, "exactly one vote should be dispatched")
	require.Equal(t, want, votes[0])
}

func TestStructuredVoteFragmentedWrites(t *testing.T) {
	l, capture := startListener(t)

	conn, challenge := dialAndGreet(t, l.Addr())
	defer conn.Close()

	frame, err := protocol.EncodeV2("alpha", "secret123", &vote.Vote{
		ServiceName: "MyServer", Username: "Steve", Address: "1.2.3.4", Timestamp: "1700000000",
	}, challenge)
	require.NoError(t, err)

	// Drip the frame in small pieces; the session buffer must hold the
	// fragments until the decoder has a complete frame.
	for i := 0; i < len(frame); i += 7 {
		end := i + 7
		if end > len(frame) {
			end = len(frame)
		}
		_, err = conn.Write(frame[i:end])
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	awaitClose(t, conn)

	require.Len(t, capture.Votes(), 1)
}

func TestLegacyVoteDelivery(t *testing.T) {
	l, capture := startListener(t)

	conn, _ := dialAndGreet(t, l.Addr())
	defer conn.Close()

	plaintext := "VOTE\nMyServer\nSteve\n1.2.3.4\n1700000000\n"
	block, err := rsa.EncryptPKCS1v15(rand.Reader, &e2eHostKey(t).PublicKey, []byte(plaintext))
	require.NoError(t, err)
	require.Len(t, block, protocol.LegacyBlockSize)

	_, err = conn.Write(block)
	require.NoError(t, err)
	awaitClose(t, conn)

	votes := capture.Votes()
	require.Len(t, votes, 1)
	require.Equal(t, "Steve", votes[0].Username)
	require.Equal(t, "MyServer", votes[0].ServiceName)
}

func TestReplayedPayloadRejected(t *testing.T) {
	l, capture := startListener(t)

	// Capture a validly signed frame from a first connection, then close
	// it without sending.
	first, oldChallenge := dialAndGreet(t, l.Addr())
	frame, err := protocol.EncodeV2("alpha", "secret123", &vote.Vote{
		ServiceName: "MyServer", Username: "Steve", Address: "1.2.3.4", Timestamp: "1700000000",
	}, oldChallenge)
	require.NoError(t, err)
	first.Close()

	// Replay it on a fresh connection with a fresh challenge.
	second, _ := dialAndGreet(t, l.Addr())
	defer second.Close()
	_, err = second.Write(frame)
	require.NoError(t, err)
	awaitClose(t, second)

	require.Empty(t, capture.Votes(), "replayed payload must not dispatch")
}

func TestUnknownSiteRejected(t *testing.T) {
	l, capture := startListener(t)

	conn, challenge := dialAndGreet(t, l.Addr())
	defer conn.Close()

	frame, err := protocol.EncodeV2("ghost", "whatever", &vote.Vote{
		ServiceName: "MyServer", Username: "Steve", Address: "1.2.3.4", Timestamp: "1700000000",
	}, challenge)
	require.NoError(t, err)

	_, err = conn.Write(frame)
	require.NoError(t, err)
	awaitClose(t, conn)

	require.Empty(t, capture.Votes())
}

func TestGarbageRejected(t *testing.T) {
	l, capture := startListener(t)

	conn, _ := dialAndGreet(t, l.Addr())
	_, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)
	// Half-close so the server sees EOF without a complete vote.
	conn.(*net.TCPConn).CloseWrite()
	awaitClose(t, conn)
	conn.Close()

	require.Empty(t, capture.Votes())
}

func TestCorruptedLegacyBlockRejected(t *testing.T) {
	l, capture := startListener(t)

	conn, _ := dialAndGreet(t, l.Addr())
	defer conn.Close()

	block := make([]byte, protocol.LegacyBlockSize)
	for i := range block {
		block[i] = byte(i)
	}
	// Avoid accidental v2 magic.
	block[0] = 0x00

	_, err := conn.Write(block)
	require.NoError(t, err)
	awaitClose(t, conn)

	require.Empty(t, capture.Votes())
}

func TestMetricsRecorded(t *testing.T) {
	l, capture := startListener(t)

	conn, challenge := dialAndGreet(t, l.Addr())
	defer conn.Close()

	frame, err := protocol.EncodeV2("alpha", "secret123", &vote.Vote{
		ServiceName: "MyServer", Username: "Steve", Address: "1.2.3.4", Timestamp: "1700000000",
	}, challenge)
	require.NoError(t, err)
	_, err = conn.Write(frame)
	require.NoError(t, err)
	awaitClose(t, conn)

	require.Len(t, capture.Votes(), 1)

	snapshot := l.cfg.Metrics.GetSnapshot()
	require.EqualValues(t, 1, snapshot.Connections)
	require.EqualValues(t, 1, snapshot.VotesByProtocol["v2"])
	require.EqualValues(t, 1, snapshot.SiteVotes["alpha"])
}

func TestStopUnblocksAndRefuses(t *testing.T) {
	l, _ := startListener(t)
	addr := l.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Stop(ctx))

	_, err := net.DialTimeout("tcp", addr, time.Second)
	require.Error(t, err, "stopped listener should refuse connections")

	// Stop is idempotent.
	require.NoError(t, l.Stop(ctx))
}

func TestNewVoteListenerValidation(t *testing.T) {
	tokens, err := keys.NewTokenStore(nil)
	require.NoError(t, err)
	d := dispatch.New(dispatch.NewRegistry(), zerolog.Nop())

	_, err = NewVoteListener(VoteListenerConfig{Tokens: tokens, Dispatcher: d})
	require.Error(t, err, "missing host key must be rejected")

	_, err = NewVoteListener(VoteListenerConfig{HostKey: e2eHostKey(t), Dispatcher: d})
	require.Error(t, err, "missing token store must be rejected")

	_, err = NewVoteListener(VoteListenerConfig{HostKey: e2eHostKey(t), Tokens: tokens})
	require.Error(t, err, "missing dispatcher must be rejected")
}
