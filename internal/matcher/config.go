// Package matcher joins billed flight charges to the operated flight schedule.
//
// Matching is a deterministic two-tier key join. Both tiers key a flight by
// date, an identifier and its route:
//  1. Registration tier: (date, tail number, departure, arrival)
//  2. Flight number tier: (date, callsign, departure, arrival)
//
// The registration tier always wins when both tiers resolve a charge, because a
// tail number is less ambiguous than a callsign. The flight number tier exists
// for charge lines whose registration could not be recovered.
//
// Example usage:
//
//	engine, err := matcher.NewEngine(matcher.DefaultMatchingConfig())
//	result, err := engine.Reconcile(charges, schedule)
//	fmt.Println(result.Summary.MatchRate)
package matcher

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides which trip a join key resolves to when several
// schedule rows produce the same key.
type DuplicatePolicy string

const (
	// DuplicateLastWins keeps the trip of the last row in schedule order
	DuplicateLastWins DuplicatePolicy = "last_wins"
	// DuplicateFirstWins keeps the trip of the first row in schedule order
	DuplicateFirstWins DuplicatePolicy = "first_wins"
)

// ParseDuplicatePolicy converts a configuration value into a DuplicatePolicy
func ParseDuplicatePolicy(value string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", DuplicateLastWins:
		return DuplicateLastWins, nil
	case DuplicateFirstWins:
		return DuplicateFirstWins, nil
	default:
		return "", fmt.Errorf("invalid duplicate policy %q (valid: %s, %s)", value, DuplicateLastWins, DuplicateFirstWins)
	}
}

// MatchingConfig holds configuration for the reconciliation engine
type MatchingConfig struct {
	// DuplicatePolicy resolves schedule rows that share a join key
	DuplicatePolicy DuplicatePolicy `json:"duplicate_policy" mapstructure:"duplicate_policy"`

	// FlightNumberFallback enables the callsign tier for charges the
	// registration tier cannot resolve
	FlightNumberFallback bool `json:"flight_number_fallback" mapstructure:"flight_number_fallback"`
}

// DefaultMatchingConfig returns the standard two-tier configuration with last-write-wins keys
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		DuplicatePolicy:      DuplicateLastWins,
		FlightNumberFallback: true,
	}
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if _, err := ParseDuplicatePolicy(string(mc.DuplicatePolicy)); err != nil {
		return err
	}
	return nil
}

// String returns a string representation of the configuration
func (mc *MatchingConfig) String() string {
	return fmt.Sprintf("MatchingConfig{DuplicatePolicy: %s, FlightNumberFallback: %t}",
		mc.DuplicatePolicy, mc.FlightNumberFallback)
}
