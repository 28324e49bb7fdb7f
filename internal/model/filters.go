package model

import "time"

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// UserFilter narrows user listings. Zero values are ignored.
type UserFilter struct {
	Search       string
	Capabilities []Capability
	TeamIDs      []int64
	Nationality  string
	ActiveOnly   bool
}

// HillFilter narrows hill listings.
type HillFilter struct {
	Name        string
	City        string
	Country     string
	MinHillSize *float64
	MaxHillSize *float64
}

// EventFilter narrows event listings.
type EventFilter struct {
	Name        string
	Type        EventType
	HillIDs     []int64
	TeamIDs     []int64
	AthleteIDs  []int64
	StartFrom   *time.Time
	StartTo     *time.Time
	EndFrom     *time.Time
	EndTo       *time.Time
	MinLevel    *int
	MaxLevel    *int
	Description string
	// Ascending lists the earliest start first instead of the latest.
	Ascending bool
}

// ResultFilter narrows result listings. A filter with neither EventID nor
// AthleteIDs matches nothing.
type ResultFilter struct {
	EventID         *int64
	AthleteIDs      []int64
	Seasons         []string
	AttemptNumber   *int
	MinJumpLength   *float64
	MaxJumpLength   *float64
	MinStylePoints  *float64
	MaxStylePoints  *float64
	MinWind         *float64
	MaxWind         *float64
	Gate            *int
	MinTotalPoints  *float64
	MaxTotalPoints  *float64
	MinSpeedTakeoff *float64
	MaxSpeedTakeoff *float64
	MinFlightTime   *float64
	MaxFlightTime   *float64
	EventStartFrom  *time.Time
	EventStartTo    *time.Time
}

// Empty reports whether the filter names no event and no athlete.
func (f ResultFilter) Empty() bool { return f.EventID == nil && len(f.AthleteIDs) == 0 }

// InjuryFilter narrows injury listings.
type InjuryFilter struct {
	AthleteIDs   []int64
	TeamIDs      []int64
	Severity     Severity
	InjuryFrom   *time.Time
	InjuryTo     *time.Time
	RecoveryFrom *time.Time
	RecoveryTo   *time.Time
	Description  string
}
