package gaze

import "errors"

var (
	// ErrPupilNotFound is returned when calibrating from a frame without a pupil.
	ErrPupilNotFound = errors.New("pupil not found")

	// ErrInvalidFrameSize is returned when calibrating against an empty frame.
	ErrInvalidFrameSize = errors.New("invalid frame size")

	// ErrGateOrder is returned by Config.Validate when the movement gate is wider than the deadzone.
	ErrGateOrder = errors.New("movement gate exceeds deadzone")
)
