package matcher

import (
	"encoding/json"
	"fmt"

	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/shopspring/decimal"
)

// Engine reconciles charge records against a flight schedule. It keeps no state
// between calls; every Reconcile builds its own index.
type Engine struct {
	config *MatchingConfig
	logger logger.Logger
}

// Result represents the complete result of a reconciliation run
type Result struct {
	// Records holds one entry per charge, in input order
	Records []*models.AuditRecord `json:"records"`
	Summary *Summary              `json:"summary"`
	Index   IndexStats            `json:"index"`
}

// Unmatched returns the records that joined no schedule row, in input order
func (r *Result) Unmatched() []*models.AuditRecord {
	var unmatched []*models.AuditRecord
	for _, record := range r.Records {
		if !record.Match.IsMatched() {
			unmatched = append(unmatched, record)
		}
	}
	return unmatched
}

// Summary provides aggregate statistics about a reconciliation run
type Summary struct {
	TotalRecords          int             `json:"total_rows"`
	MatchedRecords        int             `json:"matched_rows"`
	UnmatchedRecords      int             `json:"unmatched_rows"`
	MatchedByRegistration int             `json:"matched_by_registration"`
	MatchedByFlightNumber int             `json:"matched_by_flight_number"`
	MatchRate             float64         `json:"match_rate"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	MatchedAmount         decimal.Decimal `json:"matched_amount"`
	UnmatchedAmount       decimal.Decimal `json:"unmatched_amount"`
	IndexedScheduleRows   int             `json:"indexed_schedule_rows"`
	DuplicateScheduleKeys int             `json:"duplicate_schedule_keys"`
}

// MatchRatePercent returns the match rate scaled to 0-100
func (s *Summary) MatchRatePercent() float64 {
	return s.MatchRate * 100
}

// MarshalJSON emits amounts as JSON numbers with two decimals
func (s *Summary) MarshalJSON() ([]byte, error) {
	type Alias Summary
	return json.Marshal(&struct {
		TotalAmount     json.Number `json:"total_amount"`
		MatchedAmount   json.Number `json:"matched_amount"`
		UnmatchedAmount json.Number `json:"unmatched_amount"`
		*Alias
	}{
		TotalAmount:     json.Number(s.TotalAmount.StringFixed(2)),
		MatchedAmount:   json.Number(s.MatchedAmount.StringFixed(2)),
		UnmatchedAmount: json.Number(s.UnmatchedAmount.StringFixed(2)),
		Alias:           (*Alias)(s),
	})
}

// String returns a human-readable summary
func (s *Summary) String() string {
	return fmt.Sprintf("%d of %d charges matched (%.1f%%), total %s",
		s.MatchedRecords, s.TotalRecords, s.MatchRatePercent(), s.TotalAmount.StringFixed(2))
}

// NewEngine creates an engine; a nil config selects DefaultMatchingConfig
func NewEngine(config *MatchingConfig) (*Engine, error) {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "duplicate-policy", config.DuplicatePolicy, err)
	}

	return &Engine{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

// Reconcile joins every charge to the schedule. Unmatched charges are part of
// the result, never an error; only a schedule that was never loaded fails.
func (e *Engine) Reconcile(charges []*models.ChargeRecord, schedule []*models.ScheduleRecord) (*Result, error) {
	if schedule == nil {
		return nil, errors.ReconciliationError(errors.CodeScheduleNotLoaded, "reconcile", nil)
	}

	index := newScheduleIndex(schedule, e.config.DuplicatePolicy, e.logger)
	stats := index.GetIndexStats()

	if stats.ConflictingKeys > 0 {
		e.logger.WithFields(logger.Fields{
			"conflicting_keys": stats.ConflictingKeys,
			"duplicate_keys":   stats.DuplicateKeys,
			"policy":           e.config.DuplicatePolicy,
		}).Warn("Schedule contains rows sharing a join key with different trips")
	}

	result := &Result{
		Records: make([]*models.AuditRecord, 0, len(charges)),
		Summary: &Summary{
			TotalAmount:           decimal.Zero,
			MatchedAmount:         decimal.Zero,
			UnmatchedAmount:       decimal.Zero,
			IndexedScheduleRows:   stats.IndexedRows,
			DuplicateScheduleKeys: stats.DuplicateKeys,
		},
		Index: stats,
	}

	for i, charge := range charges {
		if charge == nil {
			return nil, errors.ReconciliationError(errors.CodeMatchingFailed, "reconcile",
				fmt.Errorf("charge record %d is nil", i))
		}

		match := e.match(index, charge)
		result.Records = append(result.Records, &models.AuditRecord{Charge: charge, Match: match})
		result.Summary.add(charge, match)
	}

	result.Summary.finalize()

	e.logger.WithFields(logger.Fields{
		"charges":         result.Summary.TotalRecords,
		"matched":         result.Summary.MatchedRecords,
		"by_registration": result.Summary.MatchedByRegistration,
		"by_flight":       result.Summary.MatchedByFlightNumber,
		"schedule_rows":   stats.Rows,
		"indexed_rows":    stats.IndexedRows,
	}).Info("Reconciliation completed")

	return result, nil
}

// match applies the tiers in priority order
func (e *Engine) match(index *ScheduleIndex, charge *models.ChargeRecord) *models.MatchResult {
	if trip, ok := index.LookupRegistration(ChargeRegistrationKey(charge)); ok {
		return models.NewMatchedResult(trip, models.MethodRegistration)
	}

	if e.config.FlightNumberFallback {
		if trip, ok := index.LookupFlightNumber(ChargeFlightKey(charge)); ok {
			return models.NewMatchedResult(trip, models.MethodFlightNumber)
		}
	}

	return models.NewUnmatchedResult()
}

func (s *Summary) add(charge *models.ChargeRecord, match *models.MatchResult) {
	s.TotalRecords++
	s.TotalAmount = s.TotalAmount.Add(charge.Amount)

	if !match.IsMatched() {
		s.UnmatchedRecords++
		s.UnmatchedAmount = s.UnmatchedAmount.Add(charge.Amount)
		return
	}

	s.MatchedRecords++
	s.MatchedAmount = s.MatchedAmount.Add(charge.Amount)
	switch match.Method {
	case models.MethodRegistration:
		s.MatchedByRegistration++
	case models.MethodFlightNumber:
		s.MatchedByFlightNumber++
	}
}

func (s *Summary) finalize() {
	if s.TotalRecords == 0 {
		s.MatchRate = 0
		return
	}
	s.MatchRate = float64(s.MatchedRecords) / float64(s.TotalRecords)
}
