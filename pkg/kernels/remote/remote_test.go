package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawServer replies to every execute call with body.
func rawServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/execute", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(status)
		_, _ = fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sse(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("event: datastar-patch-signals\n")
		b.WriteString("data: signals " + e + "\n\n")
	}
	return b.String()
}

func run(t *testing.T, url string) ([]core.Chunk, error) {
	t.Helper()
	var got []core.Chunk
	err := New(url, nil, nil).Execute(context.Background(), core.ExecutionRequest{Code: "x", Language: core.LanguagePython}, func(c core.Chunk) {
		got = append(got, c)
	})
	return got, err
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Event
		wantOK  bool
		wantErr bool
	}{
		{name: "event line", line: "event: datastar-patch-signals"},
		{name: "blank", line: ""},
		{name: "other data", line: "data: onlyIfMissing true"},
		{
			name:   "chunk",
			line:   `data: signals {"seq":1,"chunk":{"type":"stdout","data":"hi"}}`,
			want:   Event{Seq: 1, Chunk: &core.Chunk{Type: core.ChunkStdout, Data: "hi"}},
			wantOK: true,
		},
		{
			name:   "done without space after colon",
			line:   `data:signals {"done":true}`,
			want:   Event{Done: true},
			wantOK: true,
		},
		{name: "garbage", line: "data: signals {", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := parseLine(tt.line)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecute_RelaysChunks(t *testing.T) {
	srv := rawServer(t, http.StatusOK, sse(
		`{"seq":1,"chunk":{"type":"status","message":"Executing..."}}`,
		`{"seq":2,"chunk":{"type":"table","columns":["id"],"rows":[{"id":1}]}}`,
		`{"seq":3,"chunk":{"type":"error","message":"boom"}}`,
		`{"done":true}`,
	))

	got, err := run(t, srv.URL+"/")
	require.NoError(t, err, "in-band errors are not transport errors")
	assert.Equal(t, []core.Chunk{
		core.Status("Executing..."),
		{Type: core.ChunkTable, Columns: []string{"id"}, Rows: []map[string]any{{"id": float64(1)}}},
		core.ErrorChunk("boom"),
	}, got)
}

func TestExecute_TransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		wantOp string
	}{
		{
			name:   "stream cut before done",
			status: http.StatusOK,
			body:   sse(`{"seq":1,"chunk":{"type":"stdout","data":"a"}}`),
			wantOp: "stream",
		},
		{
			name:   "out of order",
			status: http.StatusOK,
			body:   sse(`{"seq":2,"chunk":{"type":"stdout","data":"b"}}`),
			wantOp: "stream",
		},
		{
			name:   "server side transport error",
			status: http.StatusOK,
			body:   sse(`{"done":true,"error":"sql kernel: connect: refused"}`),
			wantOp: "remote",
		},
		{
			name:   "bad status",
			status: http.StatusBadRequest,
			body:   `{"error":"unsupported language"}`,
			wantOp: "execute",
		},
		{
			name:   "undecodable event",
			status: http.StatusOK,
			body:   "data: signals nope\n\n",
			wantOp: "decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := rawServer(t, tt.status, tt.body)
			_, err := run(t, srv.URL)

			var terr *core.TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, Name, terr.Kernel)
			assert.Equal(t, tt.wantOp, terr.Op)
		})
	}
}

func TestExecute_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := run(t, url)
	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
}

func TestRegisteredFactory(t *testing.T) {
	tr, err := kernel.New(Name, kernel.Options{Settings: map[string]any{"url": "http://example.test/", "connect_timeout": "3s"}})
	require.NoError(t, err)
	c := tr.(*Client)
	assert.Equal(t, "http://example.test", c.baseURL)

	_, err = kernel.New(Name, kernel.Options{Settings: map[string]any{"url": ""}})
	require.Error(t, err)
}

func TestRegisteredFactory_DefaultURL(t *testing.T) {
	tr, err := kernel.New(Name, kernel.Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultURL, tr.(*Client).baseURL)
	// Same port `leapnb serve` listens on by default.
	assert.Equal(t, "http://localhost:8787", DefaultURL)
}
