package server

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"eriantys-server/internal/eriantys"
)

// Command is the closed set of typed client inputs. Every phase-input loop
// matches on the concrete variant and rejects everything else with a
// re-prompt, so an unexpected command can never mutate game state.
type Command interface {
	isCommand()
}

type IntegerChoice struct {
	N int
}

type ColorChoice struct {
	Color eriantys.Color
}

type TowerChoice struct {
	Tower eriantys.TowerColor
}

type CardBackChoice struct {
	Back eriantys.CardBack
}

type TextCommand struct {
	Text string
}

type PlayPowerCard struct{}

type Disconnect struct{}

func (IntegerChoice) isCommand()  {}
func (ColorChoice) isCommand()    {}
func (TowerChoice) isCommand()    {}
func (CardBackChoice) isCommand() {}
func (TextCommand) isCommand()    {}
func (PlayPowerCard) isCommand()  {}
func (Disconnect) isCommand()     {}

// ParseCommand classifies one line of client input. The server never infers
// meaning from free text beyond numeric literals and the fixed keyword sets
// (tower colors, card backs, student colors); everything else stays opaque.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	if n, err := strconv.Atoi(trimmed); err == nil {
		return IntegerChoice{N: n}
	}
	if tower, ok := eriantys.ParseTowerColor(trimmed); ok {
		return TowerChoice{Tower: tower}
	}
	if back, ok := eriantys.ParseCardBack(trimmed); ok {
		return CardBackChoice{Back: back}
	}
	if color, ok := eriantys.ParseColor(trimmed); ok {
		return ColorChoice{Color: color}
	}
	return TextCommand{Text: trimmed}
}

// decodeCommand maps a wire envelope to a Command.
func decodeCommand(msg ClientMessage) (Command, error) {
	switch msg.Type {
	case "input":
		var text string
		if err := json.Unmarshal(msg.Payload, &text); err != nil {
			return nil, fmt.Errorf("INVALID_PAYLOAD: input payload must be a string")
		}
		return ParseCommand(text), nil
	case "play_card":
		return PlayPowerCard{}, nil
	case "disconnect":
		return Disconnect{}, nil
	default:
		return nil, fmt.Errorf("INVALID_MESSAGE_TYPE: Unknown message type '%s'", msg.Type)
	}
}
