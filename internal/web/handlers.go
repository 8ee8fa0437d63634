package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/walletsync/internal/domain"
	"github.com/vadiminshakov/walletsync/internal/reconcile"
)

const maxHistoryPage = 1000

type actionFunc func(ctx context.Context, chain domain.Chain) (domain.ConnectionAttempt, error)

// SnapshotView is the wire form of a snapshot with display helpers.
type SnapshotView struct {
	domain.WalletSnapshot
	Symbol       string `json:"symbol"`
	ShortAddress string `json:"short_address,omitempty"`
	ExplorerURL  string `json:"explorer_url,omitempty"`
}

func newSnapshotView(s domain.WalletSnapshot) SnapshotView {
	return SnapshotView{
		WalletSnapshot: s,
		Symbol:         s.Chain.Symbol(),
		ShortAddress:   domain.ShortAddress(s.Address),
		ExplorerURL:    s.Chain.ExplorerURL(s.Address),
	}
}

// PortfolioView is the wire form of the portfolio.
type PortfolioView struct {
	Wallets   []SnapshotView `json:"wallets"`
	Connected int            `json:"connected"`
	TotalUSD  float64        `json:"total_usd"`
	Complete  bool           `json:"complete"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "page not available", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

type healthResponse struct {
	Status  string                `json:"status"`
	Service string                `json:"service"`
	Synced  map[domain.Chain]bool `json:"synced"`
	Bridge  *bool                 `json:"bridge_connected,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Service: "walletsync",
		Synced:  make(map[domain.Chain]bool),
	}
	for _, chain := range s.wallets.Chains() {
		resp.Synced[chain] = s.wallets.Synced(chain)
	}
	if s.bridge != nil {
		connected := s.bridge.Connected()
		resp.Bridge = &connected
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	p := s.wallets.Portfolio()

	view := PortfolioView{
		Wallets:   make([]SnapshotView, 0, len(p.Wallets)),
		Connected: p.Connected,
		TotalUSD:  p.TotalUSD,
		Complete:  p.Complete,
	}
	for _, snap := range p.Wallets {
		view.Wallets = append(view.Wallets, newSnapshotView(snap))
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	chain, ok := s.chainParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotView(s.wallets.Current(chain)))
}

func (s *Server) handleAction(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chain, ok := s.chainParam(w, r)
		if !ok {
			return
		}

		attempt, err := fn(r.Context(), chain)
		if attempt.ID == "" {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, domain.ErrUnknownChain):
				status = http.StatusNotFound
			case errors.Is(err, reconcile.ErrStopped):
				status = http.StatusServiceUnavailable
			}
			s.l.Warn("Wallet action failed", zap.String("chain", chain.String()), zap.Error(err))
			writeJSON(w, status, errorResponse{Error: errorText(err)})
			return
		}

		writeJSON(w, attemptStatus(attempt.Outcome), attempt)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "snapshot history is disabled"})
		return
	}

	after, err := parseUintParam(r.URL.Query().Get("after"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "incorrect 'after' param"})
		return
	}
	limit, err := parseUintParam(r.URL.Query().Get("limit"))
	if err != nil || limit > maxHistoryPage {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "incorrect 'limit' param"})
		return
	}

	records, err := s.history.SnapshotsAfter(after, int(limit))
	if err != nil {
		s.l.Error("Failed to read snapshot history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load history"})
		return
	}
	if records == nil {
		records = []domain.WalletSnapshotRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

// chainParam resolves the {chain} URL param against the enabled chains.
func (s *Server) chainParam(w http.ResponseWriter, r *http.Request) (domain.Chain, bool) {
	chain, err := domain.ParseChain(chi.URLParam(r, "chain"))
	if err == nil && !s.enabled(chain) {
		err = errors.Wrapf(domain.ErrUnknownChain, "%q is not enabled", chain)
	}
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return "", false
	}
	return chain, true
}

func (s *Server) enabled(chain domain.Chain) bool {
	for _, c := range s.wallets.Chains() {
		if c == chain {
			return true
		}
	}
	return false
}

func attemptStatus(outcome domain.Outcome) int {
	switch outcome {
	case domain.OutcomeSuccess, domain.OutcomeDisconnected:
		return http.StatusOK
	case domain.OutcomeProviderAbsent:
		return http.StatusNotFound
	case domain.OutcomeProviderRejected:
		return http.StatusForbidden
	case domain.OutcomeBalanceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func parseUintParam(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
