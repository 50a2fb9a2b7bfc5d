package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/leapstack-labs/leapnb/pkg/kernels/remote"
	"github.com/starfederation/datastar-go/datastar"
)

// KernelInfo is the body of GET /api/kernels.
type KernelInfo struct {
	Kernel     string   `json:"kernel"`
	Registered []string `json:"registered"`
	Running    int64    `json:"running"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleKernels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, KernelInfo{
		Kernel:     s.kernelName,
		Registered: kernel.List(),
		Running:    s.running.Load(),
	})
}

// handleExecute streams one execution as server-sent events.
// Each chunk is sent as a remote.Event signal; the stream ends with a done
// event carrying the transport error, if any. When the client goes away the
// execution is cancelled.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req remote.Request
	if err := datastar.ReadSignals(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	lang, err := core.ParseLanguage(req.Language)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sse := datastar.NewSSE(w, r)

	s.running.Add(1)
	s.notifier.Broadcast()
	defer func() {
		s.running.Add(-1)
		s.notifier.Broadcast()
	}()

	seq := 0
	var sendErr error
	exec := kernel.Start(r.Context(), s.transport, core.ExecutionRequest{Code: req.Code, Language: lang}, func(c core.Chunk) {
		if sendErr != nil {
			return
		}
		seq++
		chunk := c
		sendErr = sse.MarshalAndPatchSignals(remote.Event{Seq: seq, Chunk: &chunk})
	})

	err = exec.Wait()
	if r.Context().Err() != nil {
		s.logger.Debug("client went away", slog.String("execution", exec.ID))
		return
	}
	if sendErr != nil {
		s.logger.Warn("failed to stream chunk", slog.String("execution", exec.ID), slog.String("error", sendErr.Error()))
		return
	}

	done := remote.Event{Done: true}
	if err != nil {
		done.Error = err.Error()
		var terr *core.TransportError
		if !errors.As(err, &terr) {
			s.logger.Warn("kernel returned a non-transport error", slog.String("error", err.Error()))
		}
	}
	if err := sse.MarshalAndPatchSignals(done); err != nil {
		s.logger.Warn("failed to finish stream", slog.String("execution", exec.ID), slog.String("error", err.Error()))
	}
}

// handleActivity streams the number of running executions whenever it changes.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	send := func() error {
		return sse.MarshalAndPatchSignals(map[string]int64{"running": s.running.Load()})
	}
	if err := send(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-updates:
			if err := send(); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
