// Package httpapi — служебный HTTP API только для чтения: здоровье хранилища,
// биржа, топы, обзор счёта, рынок апгрейдов и живая лента биржи по websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/features/business"
	"serotonyl.ru/bizbattle/internal/features/stock"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StockSource — биржа.
type StockSource interface {
	Current(ctx context.Context) (*stock.Snapshot, error)
	OnTick(fn func(ledger.StockSeries))
}

// Businesses — обзоры и топы.
type Businesses interface {
	Overview(ctx context.Context, userID int64) (*business.Overview, error)
	Leaderboard(ctx context.Context, kind string, limit int) ([]business.LeaderRow, error)
}

// Listings — рынок апгрейдов.
type Listings interface {
	List(ctx context.Context, limit int) ([]ledger.Upgrade, error)
}

// Deps — всё, что нужно серверу.
type Deps struct {
	Store      Pinger
	Stock      StockSource
	Businesses Businesses
	Market     Listings
	Names      common.UserName
	TopSize    int
}

// Server — HTTP API.
type Server struct {
	deps Deps
	feed *Feed
	mux  *chi.Mux
}

// New создаёт сервер и подписывает ленту на тики биржи.
func New(deps Deps) *Server {
	if deps.TopSize <= 0 {
		deps.TopSize = 20
	}
	s := &Server{
		deps: deps,
		feed: NewFeed(),
		mux:  chi.NewRouter(),
	}
	deps.Stock.OnTick(s.feed.Broadcast)
	s.routes()
	return s
}

// Handler возвращает корневой http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Feed возвращает ленту биржи (закрывается при остановке).
func (s *Server) Feed() *Feed {
	return s.feed
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// websocket живёт дольше любого таймаута запроса
	r.Get("/v1/stock/feed", s.handleFeed)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/healthz", s.handleHealth)
		r.Route("/v1", func(r chi.Router) {
			r.Get("/stock", s.handleStock)
			r.Get("/leaderboard/{kind}", s.handleLeaderboard)
			r.Get("/accounts/{userID}", s.handleAccount)
			r.Get("/market", s.handleMarket)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		log.WithError(err).Warn("healthz: хранилище недоступно")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// stockView — биржа в JSON.
type stockView struct {
	Pct        float64             `json:"pct"`
	Factor     float64             `json:"factor"`
	LastTick   time.Time           `json:"last_tick"`
	NextTickIn string              `json:"next_tick_in"`
	History    []ledger.StockPoint `json:"history"`
}

func newStockView(snap *stock.Snapshot) stockView {
	return stockView{
		Pct:        snap.Series.CurrentPct,
		Factor:     snap.Factor,
		LastTick:   snap.Series.LastTick,
		NextTickIn: snap.NextTickIn.Round(time.Second).String(),
		History:    snap.Series.History,
	}
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Stock.Current(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStockView(snap))
}

// leaderRow — строка топа с именем владельца.
type leaderRow struct {
	Rank  int    `json:"rank"`
	Owner string `json:"owner"`
	business.LeaderRow
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	kind := strings.ToLower(chi.URLParam(r, "kind"))
	if kind != business.LeaderboardRichest && kind != business.LeaderboardBusinesses {
		writeError(w, http.StatusBadRequest, "kind must be richest or businesses")
		return
	}
	limit := s.deps.TopSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = min(n, s.deps.TopSize)
	}
	rows, err := s.deps.Businesses.Leaderboard(r.Context(), kind, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	out := make([]leaderRow, 0, len(rows))
	for i, row := range rows {
		out = append(out, leaderRow{
			Rank:      i + 1,
			Owner:     s.deps.Names.DisplayName(r.Context(), row.UserID),
			LeaderRow: row,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "rows": out})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "bad user id")
		return
	}
	ov, err := s.deps.Businesses.Overview(r.Context(), userID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	ups, err := s.deps.Market.List(r.Context(), 0)
	if err != nil {
		s.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"upgrades": ups})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Stock.Current(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.feed.Serve(w, r, snap.Series)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	log.WithError(err).Error("Ошибка HTTP API")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Debug("Ошибка записи ответа")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
