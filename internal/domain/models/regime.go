package models

import "time"

// Regime is a market-state name from a classifier's fixed set.
type Regime string

// Label is one classifier decision for a trading day.
type Label struct {
	Date   time.Time
	Regime Regime
	// Confidence is the classifier's score: points for scoring variants,
	// euclidean distance for the profile-distance variant.
	Confidence float64
	Diagnostic string
}

// LogEntry is one line of a regime ledger.
type LogEntry struct {
	Date       time.Time
	Regime     Regime
	Diagnostic string
}

func (l Label) Entry() LogEntry {
	return LogEntry{Date: l.Date, Regime: l.Regime, Diagnostic: l.Diagnostic}
}
