package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const streamBuffer = 64

// handleWalletStream pushes the current snapshots, then every publish and attempt.
func (s *Server) handleWalletStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	snapshots, unsubscribe := s.wallets.Stream(streamBuffer)
	defer unsubscribe()

	var attempts chan domain.ConnectionAttempt
	if s.attempts != nil {
		attempts = s.attempts.Subscribe()
		defer s.attempts.Unsubscribe(attempts)
	}

	setStreamHeaders(w)

	for _, chain := range s.wallets.Chains() {
		if err := writeEvent(w, "snapshot", "", newSnapshotView(s.wallets.Current(chain))); err != nil {
			return
		}
	}
	flusher.Flush()

	// send a comment heartbeat so proxies keep connection
	heartbeat := time.NewTicker(s.pingInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			if err := writeEvent(w, "snapshot", "", newSnapshotView(snap)); err != nil {
				return
			}
			flusher.Flush()
		case a, ok := <-attempts:
			if !ok {
				attempts = nil
				continue
			}
			if err := writeEvent(w, "attempt", "", a); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// handleHistoryStream replays the journal after Last-Event-ID and tails it.
func (s *Server) handleHistoryStream(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "snapshot history is disabled"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("after"), s.l)
	sendRecords := func() error {
		records, err := s.history.SnapshotsAfter(lastIndex, 0)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := writeEvent(w, "snapshot", strconv.FormatUint(record.Index, 10), newSnapshotView(record.Snapshot)); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		if len(records) > 0 {
			flusher.Flush()
		}
		return nil
	}

	setStreamHeaders(w)
	if err := sendRecords(); err != nil {
		s.l.Error("History stream initial load failed", zap.Error(err))
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.pingInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(historyPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			if err := sendRecords(); err != nil {
				s.l.Warn("History stream poll failed", zap.Error(err))
			}
		}
	}
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeEvent(w http.ResponseWriter, event, id string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
// The header is preferred; the query parameter allows manual reconnects to resume from a known index.
func parseLastEventID(headerVal, queryVal string, l *zap.Logger) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		l.Debug("invalid last event id", zap.String("id", idStr), zap.Error(err))
		return 0
	}
	return id
}
