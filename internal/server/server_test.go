package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pizzaindex/internal/config"
	"github.com/rewired-gh/pizzaindex/internal/market"
	"github.com/rewired-gh/pizzaindex/internal/models"
	"github.com/rewired-gh/pizzaindex/internal/storage"
)

// fakeStore is an in-memory SnapshotStore for handler tests.
type fakeStore struct {
	snap *models.Snapshot
}

func (f *fakeStore) Put(snap *models.Snapshot) error {
	f.snap = snap
	return nil
}

func (f *fakeStore) Latest() (*models.Snapshot, error) {
	if f.snap == nil {
		return nil, storage.ErrNoSnapshot
	}
	return f.snap, nil
}

const chartFixture = `{
  "chart": {
    "result": [{
      "timestamp": [1755043200, 1755129600],
      "indicators": {
        "quote": [{
          "open":  [16.1, 17.0],
          "close": [16.5, 18.7]
        }]
      }
    }],
    "error": null
  }
}`

func testDefs() []models.SensorDefinition {
	return []models.SensorDefinition{
		{ID: "dominos", Label: "Domino's Pizza", Query: "q1", Polarity: models.PolarityPrimary, Weight: 1},
		{ID: "sports-pub", Label: "Sports Pub", Query: "q2", Polarity: models.PolarityInverse, Weight: 1},
	}
}

func newTestServer(t *testing.T, store storage.SnapshotStore) *Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartFixture)
	}))
	t.Cleanup(ts.Close)

	marketCfg := config.MarketConfig{
		BaseURL:          ts.URL,
		VolatilitySymbol: "^VIX",
		CommoditySymbol:  "GC=F",
		CacheTTL:         time.Minute,
	}
	serverCfg := config.ServerConfig{ListenAddr: "127.0.0.1:0"}
	return New(serverCfg, marketCfg, testDefs(), store, market.NewClient(ts.URL, 5*time.Second))
}

func fetchData(t *testing.T, s *Server) dataResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handleData(rec, httptest.NewRequest(http.MethodGet, "/api/data", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp dataResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHandleDataBeforeFirstSnapshot(t *testing.T) {
	s := newTestServer(t, &fakeStore{})

	resp := fetchData(t, s)
	if resp.CompositeScore != nil {
		t.Errorf("CompositeScore = %v, want nil before the first snapshot", *resp.CompositeScore)
	}
	if resp.AlertLevel != nil {
		t.Errorf("AlertLevel = %v, want nil", *resp.AlertLevel)
	}
	// Every configured sensor appears, even with no readings yet.
	if len(resp.Sensors) != 2 {
		t.Fatalf("got %d sensors, want 2", len(resp.Sensors))
	}
	if resp.Sensors[0].ID != "dominos" || resp.Sensors[1].ID != "sports-pub" {
		t.Errorf("sensor order: %s, %s", resp.Sensors[0].ID, resp.Sensors[1].ID)
	}
	if resp.Sensors[0].Live != nil || resp.Sensors[0].DeviationP != nil {
		t.Error("sensor without readings should carry no live value or deviation")
	}
}

func TestHandleDataWithSnapshotAndReadings(t *testing.T) {
	store := &fakeStore{snap: &models.Snapshot{
		ID:        uuid.New().String(),
		Timestamp: time.Now().Add(-time.Minute),
		Deviations: []models.Deviation{
			{SensorID: "dominos", Label: "Domino's Pizza", Percent: 50, Live: 45, Usual: 30},
		},
		CompositeScore: 50,
		Level:          models.LevelRed,
	}}
	s := newTestServer(t, store)
	s.SetReadings([]models.SensorReading{
		{SensorID: "dominos", Live: models.IntPtr(45), Usual: models.IntPtr(30)},
		{SensorID: "sports-pub", Live: models.IntPtr(10), Usual: models.IntPtr(40)},
	}, time.Now())

	resp := fetchData(t, s)
	if resp.CompositeScore == nil || *resp.CompositeScore != 50 {
		t.Errorf("CompositeScore = %v, want 50", resp.CompositeScore)
	}
	if resp.AlertLevel == nil || *resp.AlertLevel != "RED" {
		t.Errorf("AlertLevel = %v, want RED", resp.AlertLevel)
	}
	if resp.SnapshotAt == nil {
		t.Error("SnapshotAt not set")
	}

	dominos := resp.Sensors[0]
	if dominos.Live == nil || *dominos.Live != 45 {
		t.Errorf("dominos.Live = %v, want 45", dominos.Live)
	}
	if dominos.DeviationP == nil || math.Abs(*dominos.DeviationP-50) > 1e-9 {
		t.Errorf("dominos.DeviationP = %v, want 50", dominos.DeviationP)
	}
	// Inverse venue at 10/40 is -75% raw; the sign flips.
	pub := resp.Sensors[1]
	if pub.DeviationP == nil || math.Abs(*pub.DeviationP-75) > 1e-9 {
		t.Errorf("pub.DeviationP = %v, want 75", pub.DeviationP)
	}
}

func TestHandleDataMarketQuotes(t *testing.T) {
	s := newTestServer(t, &fakeStore{})

	resp := fetchData(t, s)
	if resp.Volatility == nil || resp.Volatility.Symbol != "^VIX" {
		t.Fatalf("Volatility = %+v", resp.Volatility)
	}
	if resp.Volatility.Last != 18.7 {
		t.Errorf("Volatility.Last = %v, want 18.7", resp.Volatility.Last)
	}
	wantChange := (18.7 - 17.0) / 17.0 * 100
	if math.Abs(resp.Volatility.ChangePct-wantChange) > 1e-9 {
		t.Errorf("ChangePct = %v, want %v", resp.Volatility.ChangePct, wantChange)
	}
	if resp.Commodity == nil || resp.Commodity.Symbol != "GC=F" {
		t.Fatalf("Commodity = %+v", resp.Commodity)
	}
	if len(resp.Volatility.Dates) != 2 || len(resp.Volatility.Values) != 2 {
		t.Errorf("history: %d dates, %d values", len(resp.Volatility.Dates), len(resp.Volatility.Values))
	}
}

func TestQuoteCacheServesWithinTTL(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, chartFixture)
	}))
	t.Cleanup(ts.Close)

	marketCfg := config.MarketConfig{
		BaseURL:          ts.URL,
		VolatilitySymbol: "^VIX",
		CommoditySymbol:  "GC=F",
		CacheTTL:         time.Hour,
	}
	s := New(config.ServerConfig{ListenAddr: "127.0.0.1:0"}, marketCfg, testDefs(), &fakeStore{}, market.NewClient(ts.URL, 5*time.Second))

	fetchData(t, s)
	fetchData(t, s)
	if requests != 2 {
		t.Errorf("upstream requests = %d, want 2 (one per symbol, second page load cached)", requests)
	}
}

func TestHandleIndex(t *testing.T) {
	s := newTestServer(t, &fakeStore{})
	rec := httptest.NewRecorder()
	s.handleIndex(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty page body")
	}
}

func TestDemoHistoryDeterministic(t *testing.T) {
	a := demoHistory()
	b := demoHistory()
	if len(a.PizzaIndex) != demoDays || len(a.Vix) != demoDays || len(a.Gold) != demoDays {
		t.Fatalf("series lengths: %d/%d/%d", len(a.PizzaIndex), len(a.Vix), len(a.Gold))
	}
	for i := range a.PizzaIndex {
		if a.PizzaIndex[i] != b.PizzaIndex[i] || a.Vix[i] != b.Vix[i] || a.Gold[i] != b.Gold[i] {
			t.Fatalf("series not deterministic at day %d", i)
		}
	}
	for i, v := range a.PizzaIndex {
		if v < -50 || v > 100 {
			t.Errorf("PizzaIndex[%d] = %v outside [-50, 100]", i, v)
		}
	}
	for i, v := range a.Vix {
		if v < 10 || v > 40 {
			t.Errorf("Vix[%d] = %v outside [10, 40]", i, v)
		}
	}
}

func TestLaggedCorrelation(t *testing.T) {
	c := laggedCorrelation(demoHistory())
	if c < -1 || c > 1 {
		t.Fatalf("correlation %v outside [-1, 1]", c)
	}
	// The simulation bakes in index-leads-volatility, so the lagged
	// correlation comes out positive.
	if c <= 0 {
		t.Errorf("correlation = %v, want > 0", c)
	}

	if got := laggedCorrelation(demoSeries{PizzaIndex: []float64{1}, Vix: []float64{2}}); got != 0 {
		t.Errorf("single-point correlation = %v, want 0", got)
	}
}
