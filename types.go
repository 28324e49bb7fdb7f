package skijump

import "time"

// Jump is one measured jump as seen by a Scorer. It is a curated view of
// the stored result joined with its event and hill; fields that do not
// feed a score are left out.
type Jump struct {
	AthleteID int64
	EventID   int64
	EventDate time.Time
	HillSize  float64 // HS of the hill the jump was made on, meters
	Length    float64 // meters
	Level     int     // event level, 1 (lowest) to 5
	Season    string  // "YYYY/YYYY+1"
}
