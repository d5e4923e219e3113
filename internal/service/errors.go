package service

import "errors"

// Every lifecycle operation classifies its failures into one of these
// categories; anything unwrapped is reported as a generic server error
// at the HTTP boundary.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid request")
	ErrUpstream  = errors.New("upstream failure")
)
