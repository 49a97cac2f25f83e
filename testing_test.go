package mcpipe

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/mcpipe/internal/testutils"
)

// recordingLogger keeps every message for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *recordingLogger) Logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// newTestHandler returns a started handler on an in-memory connection.
func newTestHandler(t testing.TB) (*Handler, *testutils.ConnectionMock, *recordingLogger) {
	t.Helper()

	conn := testutils.NewConnectionMock()
	logger := &recordingLogger{}
	h := newHandler(0, "127.0.0.1:11211", conn, logger, nil)
	require.NoError(t, h.start())
	return h, conn, logger
}

// requireCompleted waits briefly for a future that should already be complete.
func requireCompleted[T any](t testing.TB, f *Future[T]) (T, error) {
	t.Helper()
	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future not completed")
	}
	return f.Value()
}

func requirePending[T any](t testing.TB, f *Future[T]) {
	t.Helper()
	select {
	case <-f.Done():
		t.Fatal("future completed unexpectedly")
	default:
	}
}

func createListener(t testing.TB, handler func(conn net.Conn)) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer c.Close()

				if handler != nil {
					handler(c)
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}

// fakeServer is a minimal memcached speaking get and set, shared by every
// connection accepted by the listener.
type fakeServer struct {
	mu    sync.Mutex
	items map[string]fakeItem
}

type fakeItem struct {
	flags uint32
	value []byte
}

// startFakeServer returns the host and port of a running fake server.
func startFakeServer(t testing.TB) (string, int, *fakeServer) {
	t.Helper()

	s := &fakeServer{items: make(map[string]fakeItem)}
	addr := createListener(t, s.serve)

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port, s
}

func (s *fakeServer) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			w.WriteString("ERROR\r\n")
			w.Flush()
			continue
		}

		switch fields[0] {
		case "get":
			s.mu.Lock()
			for _, key := range fields[1:] {
				if item, ok := s.items[key]; ok {
					fmt.Fprintf(w, "VALUE %s %d %d\r\n%s\r\n", key, item.flags, len(item.value), item.value)
				}
			}
			s.mu.Unlock()
			w.WriteString("END\r\n")

		case "set":
			if len(fields) != 5 {
				w.WriteString("CLIENT_ERROR bad command line format\r\n")
				break
			}
			flags, _ := strconv.ParseUint(fields[2], 10, 32)
			size, _ := strconv.Atoi(fields[4])
			data := make([]byte, size+2)
			if _, err := io.ReadFull(r, data); err != nil {
				return
			}
			s.mu.Lock()
			s.items[fields[1]] = fakeItem{flags: uint32(flags), value: data[:size]}
			s.mu.Unlock()
			w.WriteString("STORED\r\n")

		default:
			w.WriteString("ERROR\r\n")
		}

		if r.Buffered() == 0 {
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}
