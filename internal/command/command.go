// Package command implements the stdin command grammar and typed dispatch.
// Parsing never fails loudly: a malformed line becomes a KindUnknown command
// that is logged and otherwise ignored.
package command

import (
	"strconv"
	"strings"
)

// Kind identifies which grammar rule a Command matched.
type Kind int

const (
	KindUnknown Kind = iota
	KindRotate
	KindTouch
	KindButton
	KindKey
	KindFPS
	KindShutdown
)

// Phase is one of {began, moved, ended}.
type Phase string

const (
	PhaseBegan Phase = "began"
	PhaseMoved Phase = "moved"
	PhaseEnded Phase = "ended"
)

// Direction is the down/up half of button and key commands.
type Direction string

const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

// Point is one normalized (x, y) touch coordinate in [0,1]^2.
type Point struct {
	X, Y float64
}

// Command is the typed result of parsing one stdin line.
type Command struct {
	Kind Kind
	Raw  string

	// Rotate
	Rotation string

	// Touch
	TouchPhase Phase
	Points     []Point

	// Button
	ButtonName      string
	ButtonDirection Direction

	// Key
	KeyCode      int
	KeyDirection Direction

	// FPS
	FPSEnabled bool
}

// Parse parses one stdin line: whitespace-trimmed, empty lines ignored by
// the caller, leading token selects the command. Any shape mismatch yields
// KindUnknown rather than an error; parse failures are never fatal.
func Parse(line string) Command {
	trimmed := strings.TrimSpace(line)
	cmd := Command{Kind: KindUnknown, Raw: trimmed}
	if trimmed == "" {
		return cmd
	}

	fields := strings.Fields(trimmed)
	verb := fields[0]
	args := fields[1:]

	switch verb {
	case "rotate":
		if len(args) != 1 {
			return cmd
		}
		cmd.Kind = KindRotate
		cmd.Rotation = args[0]

	case "touch":
		if len(args) < 2 {
			return cmd
		}
		phase, ok := parsePhase(args[0])
		if !ok {
			return cmd
		}
		points, ok := parsePoints(args[1:])
		if !ok || len(points) == 0 {
			return cmd
		}
		cmd.Kind = KindTouch
		cmd.TouchPhase = phase
		cmd.Points = points

	case "button":
		if len(args) != 1 {
			return cmd
		}
		name, dir, ok := splitNameDirection(args[0])
		if !ok || !isValidButtonName(name) {
			return cmd
		}
		cmd.Kind = KindButton
		cmd.ButtonName = name
		cmd.ButtonDirection = dir

	case "key":
		if len(args) != 1 {
			return cmd
		}
		codeStr, dir, ok := splitNameDirection(args[0])
		if !ok {
			return cmd
		}
		code, err := strconv.Atoi(codeStr)
		if err != nil {
			return cmd
		}
		cmd.Kind = KindKey
		cmd.KeyCode = code
		cmd.KeyDirection = dir

	case "fps":
		if len(args) != 1 {
			return cmd
		}
		switch args[0] {
		case "true":
			cmd.Kind = KindFPS
			cmd.FPSEnabled = true
		case "false":
			cmd.Kind = KindFPS
			cmd.FPSEnabled = false
		default:
			return cmd
		}

	case "shutdown":
		if len(args) != 0 {
			return cmd
		}
		cmd.Kind = KindShutdown
	}

	return cmd
}

func parsePhase(token string) (Phase, bool) {
	switch Phase(token) {
	case PhaseBegan, PhaseMoved, PhaseEnded:
		return Phase(token), true
	default:
		return "", false
	}
}

// parsePoints parses "x1,y1" "x2,y2" ... tokens, each comma-separated
// without spaces.
func parsePoints(tokens []string) ([]Point, bool) {
	points := make([]Point, 0, len(tokens))
	for _, tok := range tokens {
		parts := strings.Split(tok, ",")
		if len(parts) != 2 {
			return nil, false
		}
		x, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, false
		}
		y, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, false
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points, true
}

func splitNameDirection(token string) (name string, dir Direction, ok bool) {
	parts := strings.Split(token, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	switch Direction(parts[1]) {
	case DirectionDown, DirectionUp:
		return parts[0], Direction(parts[1]), true
	default:
		return "", "", false
	}
}

func isValidButtonName(name string) bool {
	switch name {
	case "home", "lock", "side":
		return true
	default:
		return false
	}
}
