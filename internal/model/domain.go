package model

import (
	"slices"
	"time"
)

// User is a person known to the system: staff member or athlete.
type User struct {
	ID                 int64        `json:"id"`
	FirstName          string       `json:"first_name"`
	LastName           string       `json:"last_name"`
	Login              string       `json:"login"`
	PasswordHash       string       `json:"-"`
	Capabilities       Capabilities `json:"capabilities"`
	TeamIDs            []int64      `json:"team_ids"`
	BirthDate          *time.Time   `json:"birth_date,omitempty"`
	Nationality        *string      `json:"nationality,omitempty"`
	PhotoURL           *string      `json:"photo_url,omitempty"`
	Weight             *float64     `json:"weight,omitempty"`
	Height             *float64     `json:"height,omitempty"`
	Active             bool         `json:"active"`
	LastLogin          *time.Time   `json:"last_login,omitempty"`
	MustChangePassword bool         `json:"must_change_password"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// IsAthlete reports whether the user may be registered for events.
func (u User) IsAthlete() bool { return u.Capabilities.Has(CapAthlete) }

// Team groups athletes and staff. Names are unique case-insensitively.
type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Hill is a ski jumping venue. HillSize is the HS value in meters.
type Hill struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	City              *string  `json:"city,omitempty"`
	Country           *string  `json:"country,omitempty"`
	HillSize          float64  `json:"hill_size"`
	ConstructionPoint *float64 `json:"construction_point,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
}

// EventType classifies an event.
type EventType string

const (
	EventCompetition EventType = "COMPETITION"
	EventTraining    EventType = "TRAINING"
	EventTrial       EventType = "TRIAL"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return t == EventCompetition || t == EventTraining || t == EventTrial
}

// Level bounds for Event.Level. The level is the ordinal weight used by the
// recommendation score.
const (
	MinEventLevel = 1
	MaxEventLevel = 5
)

// Event is a competition or training session held on one hill.
type Event struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           EventType `json:"type"`
	HillID         int64     `json:"hill_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Description    *string   `json:"description,omitempty"`
	Level          int       `json:"level"`
	AllowedTeamIDs []int64   `json:"allowed_team_ids"`
}

// Concluded reports whether the event ended before now.
func (e Event) Concluded(now time.Time) bool { return e.EndDate.Before(now) }

// AllowsTeam reports whether members of team may take part.
func (e Event) AllowsTeam(team int64) bool { return slices.Contains(e.AllowedTeamIDs, team) }

// Participant registers one athlete at one event. Season always equals
// season.Key(event start).
type Participant struct {
	ID        int64     `json:"id"`
	EventID   int64     `json:"event_id"`
	AthleteID int64     `json:"athlete_id"`
	Season    string    `json:"season"`
	CreatedAt time.Time `json:"created_at"`
}

// Result is one scored attempt by an athlete at an event.
type Result struct {
	ID               int64     `json:"id"`
	EventID          int64     `json:"event_id"`
	AthleteID        int64     `json:"athlete_id"`
	Season           string    `json:"season"`
	AttemptNumber    *int      `json:"attempt_number,omitempty"`
	JumpLength       *float64  `json:"jump_length,omitempty"`
	StylePoints      *float64  `json:"style_points,omitempty"`
	WindCompensation *float64  `json:"wind_compensation,omitempty"`
	Gate             *int      `json:"gate,omitempty"`
	TotalPoints      *float64  `json:"total_points,omitempty"`
	CoachComment     *string   `json:"coach_comment,omitempty"`
	VideoURL         *string   `json:"video_url,omitempty"`
	SpeedTakeoff     *float64  `json:"speed_takeoff,omitempty"`
	FlightTime       *float64  `json:"flight_time,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Severity grades an injury.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Injury records a period during which an athlete was hurt.
type Injury struct {
	ID           int64      `json:"id"`
	AthleteID    int64      `json:"athlete_id"`
	InjuryDate   time.Time  `json:"injury_date"`
	RecoveryDate *time.Time `json:"recovery_date,omitempty"`
	Severity     Severity   `json:"severity"`
	Description  *string    `json:"description,omitempty"`
}

// PerformanceRecord is the projection of a result that the recommendation
// score consumes: one jump joined with its event and hill.
type PerformanceRecord struct {
	AthleteID      int64
	EventID        int64
	EventStartDate time.Time
	HillSize       float64
	JumpLength     float64
	Level          int
	Season         string
}
