package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"topomap/internal/logging"
)

// readData returns the next SSE data line, skipping comments
func readData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New(WithLogger(logging.Discard()), WithKeepAlive(time.Hour))
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Broadcast(map[string]string{"type": "scan-started", "mode": "single"})

	reader := bufio.NewReader(resp.Body)
	assert.JSONEq(t, `{"type":"scan-started","mode":"single"}`, readData(t, reader))
}

func TestHub_KeepAlive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New(WithLogger(logging.Discard()), WithKeepAlive(10*time.Millisecond))
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": keepalive") {
			break
		}
	}
}

func TestHub_DisconnectsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New(WithLogger(logging.Discard()), WithKeepAlive(time.Hour))
	go h.Run(ctx)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()

	reader := bufio.NewReader(resp.Body)
	_, _ = reader.ReadString('\n') // ": connected"
	_, _ = reader.ReadString('\n')
	_, err = reader.ReadString('\n')
	assert.Error(t, err, "stream ends once the hub stops")
	assert.Equal(t, 0, h.ClientCount())

	// late clients are refused
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New(WithLogger(logging.Discard()))
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
}
