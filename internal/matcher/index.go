package matcher

import (
	"airspace-charge-auditor/internal/models"
	"airspace-charge-auditor/pkg/logger"
)

// ScheduleIndex maps join keys to trip identifiers for both match tiers.
// It is built once per reconciliation and never modified afterwards.
type ScheduleIndex struct {
	byRegistration map[JoinKey]string
	byFlightNumber map[JoinKey]string
	stats          IndexStats
}

// IndexStats provides statistics about a built schedule index
type IndexStats struct {
	Rows             int `json:"rows"`
	IndexedRows      int `json:"indexed_rows"`
	SkippedNoDate    int `json:"skipped_no_date"`
	SkippedNoTrip    int `json:"skipped_no_trip"`
	RegistrationKeys int `json:"registration_keys"`
	FlightKeys       int `json:"flight_keys"`
	// DuplicateKeys counts insertions that hit an existing key, per tier
	DuplicateKeys int `json:"duplicate_keys"`
	// ConflictingKeys counts duplicates that point at a different trip
	ConflictingKeys int `json:"conflicting_keys"`
}

// NewScheduleIndex builds both lookup tables from schedule rows. Rows without a
// date or a trip identifier cannot join and are left out. An empty identifier
// never produces a key in its tier.
func NewScheduleIndex(rows []*models.ScheduleRecord, policy DuplicatePolicy) *ScheduleIndex {
	return newScheduleIndex(rows, policy, logger.NewNopLogger())
}

func newScheduleIndex(rows []*models.ScheduleRecord, policy DuplicatePolicy, log logger.Logger) *ScheduleIndex {
	index := &ScheduleIndex{
		byRegistration: make(map[JoinKey]string, len(rows)),
		byFlightNumber: make(map[JoinKey]string, len(rows)),
	}
	index.stats.Rows = len(rows)

	for _, row := range rows {
		if row == nil {
			continue
		}
		if !row.HasValidDate() {
			index.stats.SkippedNoDate++
			continue
		}
		if row.TripID == "" {
			index.stats.SkippedNoTrip++
			continue
		}

		index.stats.IndexedRows++
		if row.Registration != "" {
			index.put(index.byRegistration, ScheduleRegistrationKey(row), row, policy, log)
		}
		if row.FlightNumber != "" {
			index.put(index.byFlightNumber, ScheduleFlightKey(row), row, policy, log)
		}
	}

	index.stats.RegistrationKeys = len(index.byRegistration)
	index.stats.FlightKeys = len(index.byFlightNumber)

	return index
}

func (si *ScheduleIndex) put(table map[JoinKey]string, key JoinKey, row *models.ScheduleRecord, policy DuplicatePolicy, log logger.Logger) {
	existing, exists := table[key]
	if !exists {
		table[key] = row.TripID
		return
	}

	si.stats.DuplicateKeys++
	if existing != row.TripID {
		si.stats.ConflictingKeys++
		log.WithFields(logger.Fields{
			"key":      key.String(),
			"kept":     existing,
			"incoming": row.TripID,
			"row":      row.RowNumber,
			"policy":   policy,
		}).Debug("Duplicate schedule key")
	}

	if policy != DuplicateFirstWins {
		table[key] = row.TripID
	}
}

// LookupRegistration resolves a registration tier key
func (si *ScheduleIndex) LookupRegistration(key JoinKey) (string, bool) {
	trip, ok := si.byRegistration[key]
	return trip, ok
}

// LookupFlightNumber resolves a flight number tier key
func (si *ScheduleIndex) LookupFlightNumber(key JoinKey) (string, bool) {
	trip, ok := si.byFlightNumber[key]
	return trip, ok
}

// GetIndexStats returns statistics about the index
func (si *ScheduleIndex) GetIndexStats() IndexStats {
	return si.stats
}
