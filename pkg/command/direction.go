// Package command holds the armed/disarmed command session and dispatches
// directional commands to an input injector while the session is live.
package command

import (
	"context"
	"fmt"
	"math"

	"github.com/teslashibe/go-gazekeys/pkg/gaze"
)

// Direction is one of the four arrow directions.
type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

// String returns the lowercase direction name.
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Arrow returns a one-rune arrow for terminal output.
func (d Direction) Arrow() string {
	switch d {
	case Up:
		return "↑"
	case Down:
		return "↓"
	case Left:
		return "←"
	case Right:
		return "→"
	default:
		return "?"
	}
}

// KeySym returns the X11 keysym name of the arrow key.
func (d Direction) KeySym() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return ""
	}
}

// ParseDirection parses the output of Direction.String.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// DirectionOf picks the dominant axis of v and maps its sign to a direction.
// Ties go to the vertical axis. Image coordinates: +Y is down.
func DirectionOf(v gaze.Vector) Direction {
	if math.Abs(v.X) > math.Abs(v.Y) {
		if v.X > 0 {
			return Right
		}
		return Left
	}
	if v.Y > 0 {
		return Down
	}
	return Up
}

// Injector delivers a direction to the operating system or a remote peer.
// Delivery is best effort: the controller logs errors and moves on.
type Injector interface {
	SendDirection(ctx context.Context, d Direction) error
	Close() error
}
