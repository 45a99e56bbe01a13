package models

import "time"

// QuotePoint is one daily close in a quote's history.
type QuotePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Quote is the latest state of one market instrument, displayed next to
// the composite index. Market data rides along for context; it never feeds
// the score.
type Quote struct {
	Symbol    string       `json:"symbol"`
	Last      float64      `json:"last"`
	ChangePct float64      `json:"change_pct"`
	History   []QuotePoint `json:"history"`
	FetchedAt time.Time    `json:"fetched_at"`
}
