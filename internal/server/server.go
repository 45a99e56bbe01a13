// Package server hosts the dashboard: an embedded HTML page and a JSON API
// composing the latest snapshot, per-sensor readings, and market context.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/rewired-gh/pizzaindex/internal/config"
	"github.com/rewired-gh/pizzaindex/internal/engine"
	"github.com/rewired-gh/pizzaindex/internal/logger"
	"github.com/rewired-gh/pizzaindex/internal/market"
	"github.com/rewired-gh/pizzaindex/internal/models"
	"github.com/rewired-gh/pizzaindex/internal/storage"
)

//go:embed templates/index.html
var templates embed.FS

// Server serves the dashboard page and its data API.
type Server struct {
	httpServer *http.Server
	store      storage.SnapshotStore
	defs       []models.SensorDefinition
	market     *market.Client
	marketCfg  config.MarketConfig

	mu           sync.RWMutex
	lastReadings []models.SensorReading
	lastCapture  time.Time

	quoteMu      sync.Mutex
	quotes       map[string]*models.Quote
	quotesCached time.Time
}

// New builds the dashboard server. The store is the host-owned latest
// snapshot slot; readings are pushed in by the poll loop via SetReadings.
func New(cfg config.ServerConfig, marketCfg config.MarketConfig, defs []models.SensorDefinition, store storage.SnapshotStore, marketClient *market.Client) *Server {
	s := &Server{
		store:     store,
		defs:      defs,
		market:    marketClient,
		marketCfg: marketCfg,
		quotes:    make(map[string]*models.Quote),
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/data", s.handleData).Methods(http.MethodGet)

	var handler http.Handler = r
	handler = handlers.RecoveryHandler()(handler)
	handler = handlers.CombinedLoggingHandler(os.Stderr, handler)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins serving in a goroutine. Errors other than a clean shutdown
// are reported through errCh.
func (s *Server) Start(errCh chan<- error) {
	go func() {
		logger.Info("Dashboard listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetReadings publishes the most recent reading batch so the dashboard can
// show offline sensors that never make it into a snapshot.
func (s *Server) SetReadings(readings []models.SensorReading, capturedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReadings = readings
	s.lastCapture = capturedAt
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := templates.ReadFile("templates/index.html")
	if err != nil {
		http.Error(w, "template missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page) //nolint:errcheck
}

type sensorRow struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Polarity   string   `json:"polarity"`
	Live       *int     `json:"live"`
	Usual      *int     `json:"usual"`
	DeviationP *float64 `json:"deviation_pct"`
	Hourly     []int    `json:"hourly,omitempty"`
}

type quotePayload struct {
	Symbol    string   `json:"symbol"`
	Last      float64  `json:"last"`
	ChangePct float64  `json:"change_pct"`
	Dates     []string `json:"dates"`
	Values    []float64 `json:"values"`
}

type dataResponse struct {
	Timestamp      time.Time     `json:"timestamp"`
	CurrentHour    int           `json:"current_hour"`
	CompositeScore *float64      `json:"composite_score"`
	AlertLevel     *string       `json:"alert_level"`
	SnapshotAt     *time.Time    `json:"snapshot_at"`
	Sensors        []sensorRow   `json:"sensors"`
	Volatility     *quotePayload `json:"volatility"`
	Commodity      *quotePayload `json:"commodity"`
	Historical     demoSeries    `json:"historical"`
	Correlation    float64       `json:"correlation"`
	SpikeCount     int           `json:"spike_count"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	resp := dataResponse{
		Timestamp:   now,
		CurrentHour: now.Hour(),
	}

	s.mu.RLock()
	readings := s.lastReadings
	s.mu.RUnlock()
	byID := make(map[string]models.SensorReading, len(readings))
	for _, rd := range readings {
		byID[rd.SensorID] = rd
	}

	for _, def := range s.defs {
		row := sensorRow{ID: def.ID, Label: def.Label, Polarity: string(def.Polarity)}
		if rd, ok := byID[def.ID]; ok {
			row.Live = rd.Live
			row.Usual = rd.Usual
			row.Hourly = rd.Hourly
			if d, ok := engine.Deviate(def, rd); ok {
				pct := d.Percent
				row.DeviationP = &pct
			}
		}
		resp.Sensors = append(resp.Sensors, row)
	}

	if snap, err := s.store.Latest(); err == nil {
		score := snap.CompositeScore
		level := string(snap.Level)
		at := snap.Timestamp
		resp.CompositeScore = &score
		resp.AlertLevel = &level
		resp.SnapshotAt = &at
	} else if !errors.Is(err, storage.ErrNoSnapshot) {
		logger.Warn("Failed to load latest snapshot: %v", err)
	}

	vix, gold := s.cachedQuotes(r.Context())
	resp.Volatility = toQuotePayload(vix)
	resp.Commodity = toQuotePayload(gold)

	resp.Historical = demoHistory()
	resp.Correlation = laggedCorrelation(resp.Historical)
	for _, v := range resp.Historical.PizzaIndex {
		if v > 30 {
			resp.SpikeCount++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("Failed to encode data response: %v", err)
	}
}

// cachedQuotes serves market quotes from a TTL cache so dashboard refreshes
// don't hammer the quote API. Partial failure leaves the other quote usable.
func (s *Server) cachedQuotes(ctx context.Context) (vix, gold *models.Quote) {
	s.quoteMu.Lock()
	defer s.quoteMu.Unlock()

	if time.Since(s.quotesCached) < s.marketCfg.CacheTTL {
		return s.quotes[s.marketCfg.VolatilitySymbol], s.quotes[s.marketCfg.CommoditySymbol]
	}

	for _, symbol := range []string{s.marketCfg.VolatilitySymbol, s.marketCfg.CommoditySymbol} {
		q, err := s.market.FetchQuote(ctx, symbol)
		if err != nil {
			logger.Warn("Failed to fetch quote for %s: %v", symbol, err)
			continue
		}
		s.quotes[symbol] = q
	}
	s.quotesCached = time.Now()
	return s.quotes[s.marketCfg.VolatilitySymbol], s.quotes[s.marketCfg.CommoditySymbol]
}

func toQuotePayload(q *models.Quote) *quotePayload {
	if q == nil {
		return nil
	}
	p := &quotePayload{
		Symbol:    q.Symbol,
		Last:      q.Last,
		ChangePct: q.ChangePct,
	}
	for _, pt := range q.History {
		p.Dates = append(p.Dates, pt.Date.Format("2006-01-02"))
		p.Values = append(p.Values, pt.Value)
	}
	return p
}
