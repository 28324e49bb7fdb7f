package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   *int         `json:"total,omitempty"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Postgres  string `json:"postgres"`
	SSEBroker string `json:"sse_broker,omitempty"`
	// Partitions reports whether the current season's partitions exist.
	Partitions string `json:"partitions"`
	Uptime     int64  `json:"uptime_seconds"`
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Login    string `json:"login" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// LoginResponse is the response for POST /auth/login.
type LoginResponse struct {
	Token              string    `json:"token"`
	ExpiresAt          time.Time `json:"expires_at"`
	MustChangePassword bool      `json:"must_change_password"`
	User               User      `json:"user"`
}

// CreateUserRequest is the request body for POST /v1/users.
type CreateUserRequest struct {
	FirstName    string       `json:"first_name" validate:"required,max=100"`
	LastName     string       `json:"last_name" validate:"required,max=100"`
	Login        string       `json:"login" validate:"required,min=3,max=100"`
	Password     string       `json:"password" validate:"required,max=200"`
	Capabilities []Capability `json:"capabilities" validate:"required,min=1,dive,capability"`
	TeamIDs      []int64      `json:"team_ids" validate:"dive,gt=0"`
	BirthDate    *Date        `json:"birth_date,omitempty"`
	Nationality  *string      `json:"nationality,omitempty" validate:"omitempty,max=100"`
	PhotoURL     *string      `json:"photo_url,omitempty" validate:"omitempty,url,max=2048"`
	Weight       *float64     `json:"weight,omitempty" validate:"omitempty,gt=0,lt=500"`
	Height       *float64     `json:"height,omitempty" validate:"omitempty,gt=0,lt=300"`
	Active       *bool        `json:"active,omitempty"`
}

// UpdateUserRequest is the request body for PUT /v1/users/{id}. Passwords are
// changed through the dedicated password endpoints.
type UpdateUserRequest struct {
	FirstName    string       `json:"first_name" validate:"required,max=100"`
	LastName     string       `json:"last_name" validate:"required,max=100"`
	Login        string       `json:"login" validate:"required,min=3,max=100"`
	Capabilities []Capability `json:"capabilities" validate:"required,min=1,dive,capability"`
	TeamIDs      []int64      `json:"team_ids" validate:"dive,gt=0"`
	BirthDate    *Date        `json:"birth_date,omitempty"`
	Nationality  *string      `json:"nationality,omitempty" validate:"omitempty,max=100"`
	PhotoURL     *string      `json:"photo_url,omitempty" validate:"omitempty,url,max=2048"`
	Weight       *float64     `json:"weight,omitempty" validate:"omitempty,gt=0,lt=500"`
	Height       *float64     `json:"height,omitempty" validate:"omitempty,gt=0,lt=300"`
	Active       *bool        `json:"active,omitempty"`
}

// ChangePasswordRequest is the request body for PUT /v1/users/me/password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,max=200"`
}

// ResetPasswordRequest is the request body for PUT /v1/users/{id}/password.
type ResetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,max=200"`
}

// TeamRequest is the request body for creating or updating a team.
type TeamRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// HillRequest is the request body for creating or updating a hill.
type HillRequest struct {
	Name              string   `json:"name" validate:"required,max=200"`
	City              *string  `json:"city,omitempty" validate:"omitempty,max=100"`
	Country           *string  `json:"country,omitempty" validate:"omitempty,max=100"`
	HillSize          float64  `json:"hill_size" validate:"required,gt=0,lte=300"`
	ConstructionPoint *float64 `json:"construction_point,omitempty" validate:"omitempty,gt=0,lte=300"`
	Latitude          *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude         *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// EventRequest is the request body for creating or updating an event.
type EventRequest struct {
	Name           string    `json:"name" validate:"required,max=200"`
	Type           EventType `json:"type" validate:"required,oneof=COMPETITION TRAINING TRIAL"`
	HillID         int64     `json:"hill_id" validate:"required,gt=0"`
	StartDate      time.Time `json:"start_date" validate:"required"`
	EndDate        time.Time `json:"end_date" validate:"required"`
	Description    *string   `json:"description,omitempty" validate:"omitempty,max=4000"`
	Level          int       `json:"level" validate:"required,min=1,max=5"`
	AllowedTeamIDs []int64   `json:"allowed_team_ids" validate:"dive,gt=0"`
}

// ParticipantRequest is the request body for POST /v1/participants.
type ParticipantRequest struct {
	EventID   int64 `json:"event_id" validate:"required,gt=0"`
	AthleteID int64 `json:"athlete_id" validate:"required,gt=0"`
}

// ResultRequest is the request body for recording or correcting a result.
type ResultRequest struct {
	EventID          int64    `json:"event_id" validate:"required,gt=0"`
	AthleteID        int64    `json:"athlete_id" validate:"required,gt=0"`
	AttemptNumber    *int     `json:"attempt_number,omitempty" validate:"omitempty,min=1,max=10"`
	JumpLength       *float64 `json:"jump_length,omitempty" validate:"omitempty,gte=0,lte=350"`
	StylePoints      *float64 `json:"style_points,omitempty" validate:"omitempty,gte=0,lte=60"`
	WindCompensation *float64 `json:"wind_compensation,omitempty"`
	Gate             *int     `json:"gate,omitempty" validate:"omitempty,min=0,max=100"`
	TotalPoints      *float64 `json:"total_points,omitempty"`
	CoachComment     *string  `json:"coach_comment,omitempty" validate:"omitempty,max=4000"`
	VideoURL         *string  `json:"video_url,omitempty" validate:"omitempty,url,max=2048"`
	SpeedTakeoff     *float64 `json:"speed_takeoff,omitempty" validate:"omitempty,gte=0,lte=200"`
	FlightTime       *float64 `json:"flight_time,omitempty" validate:"omitempty,gte=0,lte=60"`
}

// InjuryRequest is the request body for recording or editing an injury.
type InjuryRequest struct {
	AthleteID    int64    `json:"athlete_id" validate:"required,gt=0"`
	InjuryDate   *Date    `json:"injury_date" validate:"required"`
	RecoveryDate *Date    `json:"recovery_date,omitempty"`
	Severity     Severity `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Description  *string  `json:"description,omitempty" validate:"omitempty,max=4000"`
}

// RecommendationRequest is the request body for POST /v1/recommendations.
// Limit and FromDate are checked by the recommendation engine itself so the
// error messages stay the same across transports.
type RecommendationRequest struct {
	EventID  int64 `json:"event_id" validate:"required,gt=0"`
	Limit    int   `json:"limit"`
	FromDate *Date `json:"from_date,omitempty"`
}

// RecommendedAthlete is one entry of a recommendation response.
type RecommendedAthlete struct {
	Rank    int     `json:"rank"`
	Athlete User    `json:"athlete"`
	Score   float64 `json:"score"`
	Records int     `json:"records"`
}

// PartitionInfo describes one provisioned season partition.
type PartitionInfo struct {
	Table     string `json:"table"`
	Season    string `json:"season"`
	Partition string `json:"partition"`
}

// ResultEvent is the payload broadcast on the live results stream.
type ResultEvent struct {
	Action    string `json:"action"`
	ResultID  int64  `json:"result_id"`
	EventID   int64  `json:"event_id"`
	AthleteID int64  `json:"athlete_id"`
	Season    string `json:"season"`
}
