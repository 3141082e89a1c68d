package operator

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/journal"
	"github.com/oddsmith/kalshi-mm/internal/quoting"
)

type settingsPayload struct {
	CheckInterval      float64 `json:"check_interval"`
	StickyResetSecs    float64 `json:"sticky_reset_secs"`
	OverbidCancelDelay float64 `json:"overbid_cancel_delay"`
}

func settingsToPayload(s quoting.Settings) settingsPayload {
	return settingsPayload{
		CheckInterval:      s.CheckInterval.Seconds(),
		StickyResetSecs:    s.StickyResetSecs.Seconds(),
		OverbidCancelDelay: s.OverbidCancelDelay.Seconds(),
	}
}

func (p settingsPayload) toSettings() quoting.Settings {
	return quoting.Settings{
		CheckInterval:      time.Duration(p.CheckInterval * float64(time.Second)),
		StickyResetSecs:    time.Duration(p.StickyResetSecs * float64(time.Second)),
		OverbidCancelDelay: time.Duration(p.OverbidCancelDelay * float64(time.Second)),
	}
}

type matchPayload struct {
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	TickerA      string    `json:"ticker_a"`
	TickerB      string    `json:"ticker_b"`
	OddsA        float64   `json:"odds_a"`
	OddsB        float64   `json:"odds_b"`
	OddsDraw     float64   `json:"odds_draw"`
	HasDraw      bool      `json:"has_draw"`
	Edge         int       `json:"edge"`
	OrderSize    int       `json:"order_size"`
	InventoryCap int       `json:"inventory_cap"`
	EventTime    time.Time `json:"event_time"`
	SportKey     string    `json:"sport_key"`
	OddsEventID  string    `json:"odds_event_id"`
	MarketURL    string    `json:"market_url"`
}

func (p *matchPayload) toRequest() *quoting.AddMatchRequest {
	return &quoting.AddMatchRequest{
		Name:         p.Name,
		Category:     p.Category,
		TickerA:      p.TickerA,
		TickerB:      p.TickerB,
		OddsA:        p.OddsA,
		OddsB:        p.OddsB,
		OddsDraw:     p.OddsDraw,
		HasDraw:      p.HasDraw,
		Edge:         p.Edge,
		OrderSize:    p.OrderSize,
		InventoryCap: p.InventoryCap,
		EventTime:    p.EventTime,
		SportKey:     p.SportKey,
		OddsEventID:  p.OddsEventID,
		MarketURL:    p.MarketURL,
	}
}

func (s *Server) handleAddMatch(w http.ResponseWriter, r *http.Request) {
	var payload matchPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	snap, err := s.engine.AddMatch(r.Context(), payload.toRequest())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var payloads []matchPayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	reqs := make([]*quoting.AddMatchRequest, 0, len(payloads))
	for i := range payloads {
		reqs = append(reqs, payloads[i].toRequest())
	}

	snaps, err := s.engine.AddBatch(r.Context(), reqs)
	if err != nil {
		writeJSON(w, http.StatusMultiStatus, map[string]interface{}{
			"added": snaps,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"added": snaps})
}

func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StartMatch(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (s *Server) handleStopMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.StopMatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStartAll(w http.ResponseWriter, r *http.Request) {
	started := s.engine.StartAll()
	writeJSON(w, http.StatusOK, map[string]int{"started": started})
}

func (s *Server) handleRemoveMatch(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveMatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type oddsPayload struct {
	OddsA    float64 `json:"odds_a"`
	OddsB    float64 `json:"odds_b"`
	OddsDraw float64 `json:"odds_draw"`
	HasDraw  bool    `json:"has_draw"`
}

func (s *Server) handleUpdateOdds(w http.ResponseWriter, r *http.Request) {
	var payload oddsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.UpdateOdds(r.Context(), id, payload.OddsA, payload.OddsB, payload.OddsDraw, payload.HasDraw); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, _ := s.engine.Match(id)
	writeJSON(w, http.StatusOK, snap)
}

type matchSettingsPayload struct {
	Edge         *int `json:"edge"`
	OrderSize    *int `json:"order_size"`
	InventoryCap *int `json:"inventory_cap"`
}

func (s *Server) handleMatchSettings(w http.ResponseWriter, r *http.Request) {
	var payload matchSettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.engine.UpdateMatchSettings(id, payload.Edge, payload.OrderSize, payload.InventoryCap); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, _ := s.engine.Match(id)
	writeJSON(w, http.StatusOK, snap)
}

// Odds-refresh failures leave the stored odds untouched and surface the
// provider error to the caller.
func (s *Server) handleRefreshOdds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.RefreshOdds(r.Context(), id); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	snap, _ := s.engine.Match(id)
	writeJSON(w, http.StatusOK, snap)
}

type settlePayload struct {
	Result string `json:"result"` // "A" or "B"
}

func (s *Server) handleSettleMatch(w http.ResponseWriter, r *http.Request) {
	var payload settlePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if payload.Result != "A" && payload.Result != "B" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("result must be A or B"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.store.SettleMatch(r.Context(), id, payload.Result, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsToPayload(s.engine.Settings()))
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if err := s.engine.UpdateSettings(payload.toSettings()); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsToPayload(s.engine.Settings()))
}

// handleKill halts quoting on every match and runs the one-shot emergency
// cancel against the union of local and exchange-reported orders.
func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("kill-requested")
	KillsTotal.Inc()

	for _, m := range s.engine.State() {
		if m.Active {
			if err := s.engine.StopMatch(r.Context(), m.ID); err != nil {
				s.logger.Error("kill-stop-match-failed",
					zap.String("match-id", m.ID),
					zap.Error(err))
			}
		}
	}
	s.orders.EmergencyCancelAll(r.Context())

	writeJSON(w, http.StatusOK, map[string]string{"status": "killed"})
}

func (s *Server) handleSyncInventory(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SyncInventory(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}

func (s *Server) handleMatchPnL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, fmt.Errorf("match %s not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("match %s not found", id))
		return
	}

	fills, err := s.store.FillsForMatch(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	hedges, err := s.store.HedgesForMatch(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, journal.CalculateMatchPnL(m, fills, hedges, s.midPrice))
}

func (s *Server) handlePnLSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	period, err := journal.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	matches, err := s.store.ListMatches(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	fills, err := s.store.AllFills(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	hedges, err := s.store.ListHedges(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	fillsByMatch := make(map[string][]*journal.Fill)
	for _, f := range fills {
		if f.MatchID != "" {
			fillsByMatch[f.MatchID] = append(fillsByMatch[f.MatchID], f)
		}
	}
	hedgesByMatch := make(map[string][]*journal.Hedge)
	for _, h := range hedges {
		hedgesByMatch[h.MatchID] = append(hedgesByMatch[h.MatchID], h)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":  string(period),
		"buckets": journal.Summarize(matches, fillsByMatch, hedgesByMatch, period, s.midPrice),
	})
}

type hedgePayload struct {
	ID        int64     `json:"id,omitempty"`
	MatchID   string    `json:"match_id"`
	Platform  string    `json:"platform"`
	Side      string    `json:"side"`
	AmountUSD float64   `json:"amount_usd"`
	Odds      float64   `json:"odds"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func hedgeToPayload(h *journal.Hedge) hedgePayload {
	return hedgePayload{
		ID:        h.ID,
		MatchID:   h.MatchID,
		Platform:  h.Platform,
		Side:      h.Side,
		AmountUSD: h.AmountUSD,
		Odds:      h.Odds,
		Outcome:   h.Outcome,
		CreatedAt: h.CreatedAt,
	}
}

func (s *Server) handleAddHedge(w http.ResponseWriter, r *http.Request) {
	var payload hedgePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if payload.MatchID == "" || payload.AmountUSD <= 0 || payload.Odds <= 1 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("match_id, positive amount_usd and odds > 1 are required"))
		return
	}
	if payload.Side != "A" && payload.Side != "B" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("side must be A or B"))
		return
	}

	h := &journal.Hedge{
		MatchID:   payload.MatchID,
		Platform:  payload.Platform,
		Side:      payload.Side,
		AmountUSD: payload.AmountUSD,
		Odds:      payload.Odds,
		Outcome:   payload.Outcome,
		CreatedAt: time.Now().UTC(),
	}
	id, err := s.store.InsertHedge(r.Context(), h)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.ID = id

	writeJSON(w, http.StatusCreated, hedgeToPayload(h))
}

func (s *Server) handleListHedges(w http.ResponseWriter, r *http.Request) {
	hedges, err := s.store.ListHedges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	payloads := make([]hedgePayload, 0, len(hedges))
	for _, h := range hedges {
		payloads = append(payloads, hedgeToPayload(h))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleUpdateHedge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hedge id"))
		return
	}

	var payload hedgePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	h := &journal.Hedge{
		ID:        id,
		MatchID:   payload.MatchID,
		Platform:  payload.Platform,
		Side:      payload.Side,
		AmountUSD: payload.AmountUSD,
		Odds:      payload.Odds,
		Outcome:   payload.Outcome,
	}
	if err := s.store.UpdateHedge(r.Context(), h); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, hedgeToPayload(h))
}

func (s *Server) handleDeleteHedge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hedge id"))
		return
	}

	if err := s.store.DeleteHedge(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
