package model

import "errors"

// Error kinds shared by every service. Callers wrap them with context
// (fmt.Errorf("%w: ...", ErrX)) and the transport layer classifies with
// errors.Is.
var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrConflict        = errors.New("conflict")
	ErrStorageFault    = errors.New("storage fault")
)
