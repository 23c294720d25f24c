package matcher

import (
	"fmt"

	"airspace-charge-auditor/internal/models"
)

// JoinKey identifies one flight leg. Keys are compared field by field, so no
// identifier content can make two different flights collide.
type JoinKey struct {
	Date       string
	Identifier string
	Departure  string
	Arrival    string
}

// String renders the key for logs
func (k JoinKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Date, k.Identifier, k.Departure, k.Arrival)
}

// ChargeRegistrationKey returns the registration tier key of a charge
func ChargeRegistrationKey(c *models.ChargeRecord) JoinKey {
	return JoinKey{Date: c.FlightDate, Identifier: c.Registration, Departure: c.DepartureICAO, Arrival: c.ArrivalICAO}
}

// ChargeFlightKey returns the flight number tier key of a charge
func ChargeFlightKey(c *models.ChargeRecord) JoinKey {
	return JoinKey{Date: c.FlightDate, Identifier: c.Callsign, Departure: c.DepartureICAO, Arrival: c.ArrivalICAO}
}

// ScheduleRegistrationKey returns the registration tier key of a schedule row
func ScheduleRegistrationKey(s *models.ScheduleRecord) JoinKey {
	return JoinKey{Date: s.FlightDate, Identifier: s.Registration, Departure: s.DepartureICAO, Arrival: s.ArrivalICAO}
}

// ScheduleFlightKey returns the flight number tier key of a schedule row
func ScheduleFlightKey(s *models.ScheduleRecord) JoinKey {
	return JoinKey{Date: s.FlightDate, Identifier: s.FlightNumber, Departure: s.DepartureICAO, Arrival: s.ArrivalICAO}
}
