package protocol

import "errors"

var (
	ErrMalformed      = errors.New("protocol: malformed message")
	ErrMissingEvent   = errors.New("protocol: missing event")
	ErrMissingCommand = errors.New("protocol: missing command id")
	ErrMissingAction  = errors.New("protocol: missing action id")
	ErrMissingClient  = errors.New("protocol: missing client id")
)
