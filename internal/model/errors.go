package model

import "errors"

var (
	// ErrInvalidClaim marks malformed or out-of-range input rejected before any progress
	ErrInvalidClaim = errors.New("invalid claim")

	// ErrScoringUnavailable marks a scoring function that cannot produce a value for a claim
	ErrScoringUnavailable = errors.New("scoring unavailable")

	// ErrAnalysisFailed marks any in-run failure, including scoring failures
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrCancelled marks a run stopped on the caller's request
	ErrCancelled = errors.New("analysis cancelled")
)

// ErrorKind classifies a terminal run error for callers and wire responses
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindInvalidClaim       ErrorKind = "invalid_claim"
	KindScoringUnavailable ErrorKind = "scoring_unavailable"
	KindAnalysisFailed     ErrorKind = "analysis_failed"
	KindCancelled          ErrorKind = "cancelled"
)

// KindOf returns the most specific public kind of err.
// Scoring failures surface as AnalysisFailed since that is how a run reports them.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidClaim):
		return KindInvalidClaim
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrAnalysisFailed):
		return KindAnalysisFailed
	case errors.Is(err, ErrScoringUnavailable):
		return KindScoringUnavailable
	default:
		return KindAnalysisFailed
	}
}
