package server

import (
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"
)

// demoSeries is a 30-day illustrative series for the correlation chart.
// There is no historical snapshot database, so the chart runs on a
// deterministic seeded simulation of the index-leads-volatility pattern,
// the same trick the dashboard has always used.
type demoSeries struct {
	Dates      []string  `json:"dates"`
	PizzaIndex []float64 `json:"pizza_index"`
	Vix        []float64 `json:"vix"`
	Gold       []float64 `json:"gold"`
}

const demoDays = 30

// demoHistory generates the seeded 30-day series ending today.
func demoHistory() demoSeries {
	rng := rand.New(rand.NewSource(42))

	s := demoSeries{
		Dates:      make([]string, demoDays),
		PizzaIndex: make([]float64, demoDays),
		Vix:        make([]float64, demoDays),
		Gold:       make([]float64, demoDays),
	}
	now := time.Now()
	for i := 0; i < demoDays; i++ {
		s.Dates[i] = now.AddDate(0, 0, i-demoDays+1).Format("2006-01-02")
	}

	for i := range s.PizzaIndex {
		s.PizzaIndex[i] = rng.NormFloat64() * 15
	}
	// Crisis days spike the index, with a smaller echo the day after.
	for _, day := range []int{5, 12, 22} {
		s.PizzaIndex[day] += 30 + rng.Float64()*30
		if day+1 < demoDays {
			s.PizzaIndex[day+1] += 10 + rng.Float64()*15
		}
	}

	for i := range s.Vix {
		s.Vix[i] = 18 + rng.NormFloat64()*2
		if i > 0 && s.PizzaIndex[i-1] > 25 {
			s.Vix[i] += (s.PizzaIndex[i-1] - 25) * 0.15
		}
	}

	gold := 2650.0
	for i := range s.Gold {
		gold += 5 + rng.NormFloat64()*15
		s.Gold[i] = gold
		if s.Vix[i] > 20 {
			s.Gold[i] += (s.Vix[i] - 20) * 8
		}
	}

	for i := range s.PizzaIndex {
		s.PizzaIndex[i] = round1(clamp(s.PizzaIndex[i], -50, 100))
		s.Vix[i] = round2(clamp(s.Vix[i], 10, 40))
		s.Gold[i] = round2(s.Gold[i])
	}
	return s
}

// laggedCorrelation is the Pearson correlation between the index and the
// next day's volatility reading.
func laggedCorrelation(s demoSeries) float64 {
	n := len(s.PizzaIndex)
	if n < 2 {
		return 0
	}
	return round3(stat.Correlation(s.PizzaIndex[:n-1], s.Vix[1:], nil))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
