package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/command"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
	"github.com/stretchr/testify/require"
)

const (
	testSalt    = "testsalt"
	testTimeout = 2 * time.Second
)

type testEnv struct {
	srv    *Server
	reg    *auth.MemoryRegistry
	worlds *world.Manager
}

func testOptions() Options {
	return Options{
		Name:           "Test",
		MOTD:           "motd",
		Salt:           testSalt,
		DefaultWorld:   "default",
		Colors:         true,
		Greeting:       []string{"Hello"},
		ChunkPacing:    time.Millisecond,
		LevelDelay:     5 * time.Millisecond,
		KeepaliveStart: time.Hour,
		Keepalive:      time.Hour,
		KickGrace:      20 * time.Millisecond,
	}
}

// newTestEnv сервер с миром 16x16x16 в памяти
func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	return newTestEnvWith(t, auth.NewMemoryRegistry(8, 2, nil), mutate)
}

func newTestEnvWith(t *testing.T, reg *auth.MemoryRegistry, mutate func(*Options)) *testEnv {
	t.Helper()
	worlds := world.NewManager("default", nil, nil)
	worlds.SetDimensions(16, 16, 16)

	opts := testOptions()
	if mutate != nil {
		mutate(&opts)
	}
	srv := NewServer(opts, Deps{
		Registry: reg,
		Worlds:   worlds,
		Hooks:    hooks.NewRegistry(),
		Commands: command.NewRegistry(),
		Metrics:  metrics.New(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	srv.Start(ctx)
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), testTimeout)
		defer scancel()
		_ = srv.Shutdown(sctx)
		cancel()
	})
	return &testEnv{srv: srv, reg: reg, worlds: worlds}
}

func (e *testEnv) world(t *testing.T, id string) *world.World {
	t.Helper()
	w, err := e.worlds.Open(id)
	require.NoError(t, err)
	return w
}

// testClient классический клиент поверх net.Pipe
type testClient struct {
	t       *testing.T
	conn    net.Conn
	session *Session
	frames  chan protocol.Packet
	closed  chan struct{}
}

func (e *testEnv) dial(t *testing.T) *testClient {
	t.Helper()
	client, server := net.Pipe()
	c := &testClient{
		t:      t,
		conn:   client,
		frames: make(chan protocol.Packet, 8192),
		closed: make(chan struct{}),
	}
	go c.readLoop()
	c.session = e.srv.HandleConn(server)
	t.Cleanup(func() { client.Close() })
	return c
}

func (c *testClient) readLoop() {
	defer close(c.closed)
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := c.conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		for {
			pkt, used, derr := protocol.Decode(buf)
			if derr != nil {
				break
			}
			buf = buf[used:]
			c.frames <- pkt
		}
		if err != nil {
			return
		}
	}
}

func (c *testClient) send(frame []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(testTimeout))
	_, err := c.conn.Write(frame)
	require.NoError(c.t, err)
}

func (c *testClient) login(name string) {
	c.t.Helper()
	c.send(protocol.Classic.MustEncode(protocol.TypeIdentification,
		protocol.ProtocolVersion, name, auth.PasswordProof(testSalt, name), 0))
}

// join входит и ждёт приветствия после загрузки уровня
func (c *testClient) join(name string) {
	c.t.Helper()
	c.login(name)
	c.expect(func(p protocol.Packet) bool {
		return p.Type == protocol.TypeSpawnPlayer && p.SByte(0) == -1
	}, "появления себя")
	c.expectMessage("Hello")
}

func (c *testClient) chat(text string) {
	c.t.Helper()
	c.send(protocol.Classic.MustEncode(protocol.TypeMessage, protocol.SelfID, text))
}

func (c *testClient) setBlock(x, y, z int, created bool, block byte) {
	c.t.Helper()
	mode := 0
	if created {
		mode = 1
	}
	c.send(protocol.Classic.MustEncode(protocol.TypeSetBlockClient, x, y, z, mode, block))
}

func (c *testClient) move(x, y, z int, yaw, pitch byte) {
	c.t.Helper()
	c.send(protocol.Classic.MustEncode(protocol.TypePosition, protocol.SelfID, x, y, z, yaw, pitch))
}

// collect возвращает все кадры до первого подходящего включительно
func (c *testClient) collect(match func(protocol.Packet) bool, what string) []protocol.Packet {
	c.t.Helper()
	var seen []protocol.Packet
	timeout := time.After(testTimeout)
	for {
		select {
		case p := <-c.frames:
			seen = append(seen, p)
			if match(p) {
				return seen
			}
		case <-timeout:
			c.t.Fatalf("Не дождались %s", what)
			return nil
		}
	}
}

func (c *testClient) expect(match func(protocol.Packet) bool, what string) protocol.Packet {
	c.t.Helper()
	seen := c.collect(match, what)
	return seen[len(seen)-1]
}

func (c *testClient) expectType(tag byte) protocol.Packet {
	c.t.Helper()
	return c.expect(func(p protocol.Packet) bool { return p.Type == tag }, protocol.Classic.Name(tag))
}

func isMessage(text string) func(protocol.Packet) bool {
	return func(p protocol.Packet) bool {
		return p.Type == protocol.TypeMessage && p.Text(1) == text
	}
}

func (c *testClient) expectMessage(text string) protocol.Packet {
	c.t.Helper()
	return c.expect(isMessage(text), "сообщения "+text)
}

func (c *testClient) expectDisconnect(reason string) {
	c.t.Helper()
	p := c.expectType(protocol.TypeDisconnect)
	require.Equal(c.t, reason, p.Text(0))
}

func (c *testClient) expectClosed() {
	c.t.Helper()
	select {
	case <-c.closed:
	case <-time.After(testTimeout):
		c.t.Fatal("Соединение не закрылось")
	}
}

func isSetBlock(x, y, z int) func(protocol.Packet) bool {
	return func(p protocol.Packet) bool {
		return p.Type == protocol.TypeSetBlockServer &&
			int(p.Short(0)) == x && int(p.Short(1)) == y && int(p.Short(2)) == z
	}
}

func countFrames(frames []protocol.Packet, match func(protocol.Packet) bool) int {
	n := 0
	for _, p := range frames {
		if match(p) {
			n++
		}
	}
	return n
}
