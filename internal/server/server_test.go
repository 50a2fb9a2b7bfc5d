package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/leapnb/internal/testutil"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/leapstack-labs/leapnb/pkg/kernels/mock"
	"github.com/leapstack-labs/leapnb/pkg/kernels/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, tr kernel.Transport) *httptest.Server {
	t.Helper()
	s := New(Config{Transport: tr, KernelName: "mock", Logger: testutil.NewTestLogger(t)})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, tr kernel.Transport, req core.ExecutionRequest) ([]core.Chunk, error) {
	t.Helper()
	var got []core.Chunk
	err := tr.Execute(context.Background(), req, func(c core.Chunk) { got = append(got, c) })
	return got, err
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, mock.New(mock.Delays{}, nil))

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestKernels(t *testing.T) {
	srv := newTestServer(t, mock.New(mock.Delays{}, nil))

	resp, err := http.Get(srv.URL + "/api/kernels")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var info KernelInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "mock", info.Kernel)
	assert.Contains(t, info.Registered, "mock")
	assert.Zero(t, info.Running)
}

// The remote client against a live server reproduces the local mock stream.
func TestExecute_RoundTripThroughRemote(t *testing.T) {
	local := mock.New(mock.Delays{}, nil)
	srv := newTestServer(t, local)
	client := remote.New(srv.URL, nil, nil)

	tests := []struct {
		name string
		req  core.ExecutionRequest
	}{
		{"sql users", core.ExecutionRequest{Code: "SELECT * FROM users", Language: core.LanguageSQL}},
		{"python error", core.ExecutionRequest{Code: "trigger error", Language: core.LanguagePython}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want, err := collect(t, local, tt.req)
			require.NoError(t, err)

			got, err := collect(t, client, tt.req)
			require.NoError(t, err)

			require.Len(t, got, len(want))
			for i := range want {
				assert.Equal(t, want[i].Type, got[i].Type, "chunk %d", i)
				assert.Equal(t, want[i].Message, got[i].Message, "chunk %d", i)
				assert.Equal(t, want[i].Data, got[i].Data, "chunk %d", i)
				assert.Equal(t, want[i].Columns, got[i].Columns, "chunk %d", i)
				assert.Equal(t, want[i].Rows, got[i].Rows, "chunk %d", i)
			}
		})
	}
}

func TestExecute_TransportErrorIsForwarded(t *testing.T) {
	broken := kernel.TransportFunc(func(_ context.Context, _ core.ExecutionRequest, onChunk core.ChunkFunc) error {
		onChunk(core.Status("Connecting to database..."))
		return &core.TransportError{Kernel: "sql", Op: "connect", Err: assert.AnError}
	})
	srv := newTestServer(t, broken)

	got, err := collect(t, remote.New(srv.URL, nil, nil), core.ExecutionRequest{Code: "SELECT 1", Language: core.LanguageSQL})
	assert.Equal(t, []core.Chunk{core.Status("Connecting to database...")}, got)

	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "sql kernel: connect")
}

func TestExecute_BadRequest(t *testing.T) {
	srv := newTestServer(t, mock.New(mock.Delays{}, nil))

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"unknown language", `{"code":"x","language":"cobol"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/execute", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestExecute_ClientDisconnectCancels(t *testing.T) {
	cancelled := make(chan struct{})
	blocking := kernel.TransportFunc(func(ctx context.Context, _ core.ExecutionRequest, onChunk core.ChunkFunc) error {
		onChunk(core.Status("Executing..."))
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	srv := newTestServer(t, blocking)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan struct{})
	go func() {
		_ = remote.New(srv.URL, nil, nil).Execute(ctx, core.ExecutionRequest{Code: "x", Language: core.LanguagePython}, func(core.Chunk) {
			close(first)
		})
	}()

	select {
	case <-first:
	case <-time.After(2 * time.Second):
		t.Fatal("first chunk never arrived")
	}
	cancel()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("server kept executing after the client went away")
	}
}

func TestActivity(t *testing.T) {
	s := New(Config{Transport: mock.New(mock.Delays{}, nil)})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/activity", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), `"running":0`) {
			return
		}
	}
	t.Fatalf("no activity event received: %v", scanner.Err())
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()
	a := n.Subscribe()
	b := n.Subscribe()

	n.Broadcast()
	n.Broadcast() // coalesced

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)

	n.Unsubscribe(a)
	_, open := <-a
	assert.True(t, open, "pending ping is still readable")
	_, open = <-a
	assert.False(t, open)
	n.Unsubscribe(b)
}
