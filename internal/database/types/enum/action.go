package enum

import (
	"errors"
	"fmt"
)

// ErrInvalidAction indicates an action other than add or remove.
var ErrInvalidAction = errors.New("invalid reaction action")

// ReactionAction is the state transition recorded by a reaction event.
type ReactionAction string

const (
	// ReactionActionAdd records that a fingerprint reacted with an emoji.
	ReactionActionAdd ReactionAction = "add"
	// ReactionActionRemove records that a fingerprint withdrew a reaction.
	ReactionActionRemove ReactionAction = "remove"
)

// ReactionActionString parses an explicit action supplied by a caller.
func ReactionActionString(s string) (ReactionAction, error) {
	action := ReactionAction(s)
	if !action.IsAReactionAction() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}

	return action, nil
}

// IsAReactionAction reports whether the action is add or remove.
func (a ReactionAction) IsAReactionAction() bool {
	return a == ReactionActionAdd || a == ReactionActionRemove
}

// Opposite returns the action that undoes this one. The opposite of no
// action is add.
func (a ReactionAction) Opposite() ReactionAction {
	if a == ReactionActionAdd {
		return ReactionActionRemove
	}

	return ReactionActionAdd
}

func (a ReactionAction) String() string {
	return string(a)
}
