package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robalyx/reactor/internal/database/types/enum"
	"github.com/uptrace/bun"
)

// MaxTargetIDLength bounds the identifier accepted for a reaction target.
const MaxTargetIDLength = 128

// ErrInvalidTargetID indicates an empty or oversized target identifier.
var ErrInvalidTargetID = errors.New("invalid target id")

// ReactionTarget identifies the content a reaction is attached to.
type ReactionTarget struct {
	Kind enum.TargetKind `json:"kind"`
	ID   string          `json:"id"`
}

// NewReactionTarget validates raw client input and builds a target.
func NewReactionTarget(kind, id string) (ReactionTarget, error) {
	targetKind, err := enum.TargetKindString(kind)
	if err != nil {
		return ReactionTarget{}, err
	}

	target := ReactionTarget{Kind: targetKind, ID: strings.TrimSpace(id)}
	if err := target.Validate(); err != nil {
		return ReactionTarget{}, err
	}

	return target, nil
}

// Validate checks the kind and id of the target.
func (t ReactionTarget) Validate() error {
	if !t.Kind.IsATargetKind() {
		return fmt.Errorf("%w: %q", enum.ErrInvalidTargetKind, t.Kind)
	}

	if t.ID == "" || len(t.ID) > MaxTargetIDLength {
		return fmt.Errorf("%w: length must be between 1 and %d", ErrInvalidTargetID, MaxTargetIDLength)
	}

	return nil
}

// Key returns the "kind:id" form used in bulk query responses.
func (t ReactionTarget) Key() string {
	return string(t.Kind) + ":" + t.ID
}

// ReactionEvent is a single entry of the append-only reaction log.
// The latest event per target, fingerprint and emoji is the current state.
type ReactionEvent struct {
	bun.BaseModel `bun:"table:reaction_events,alias:re"`

	Seq         int64               `bun:",pk,autoincrement"                           json:"seq"`
	ID          uuid.UUID           `bun:",type:uuid,notnull,unique"                   json:"id"`
	TargetKind  enum.TargetKind     `bun:",notnull"                                    json:"targetKind"`
	TargetID    string              `bun:",notnull"                                    json:"targetId"`
	Emoji       string              `bun:",notnull"                                    json:"emoji"`
	Fingerprint string              `bun:",notnull"                                    json:"fingerprint"`
	Action      enum.ReactionAction `bun:",notnull"                                    json:"action"`
	CreatedAt   time.Time           `bun:",nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// Target returns the target the event belongs to.
func (e *ReactionEvent) Target() ReactionTarget {
	return ReactionTarget{Kind: e.TargetKind, ID: e.TargetID}
}

// ReactionAggregate is one grouped row produced for reconciliation.
type ReactionAggregate struct {
	TargetKind enum.TargetKind `bun:"target_kind"`
	TargetID   string          `bun:"target_id"`
	Emoji      string          `bun:"emoji"`
	Count      int             `bun:"count"`
}

// Target returns the target the row belongs to.
func (a ReactionAggregate) Target() ReactionTarget {
	return ReactionTarget{Kind: a.TargetKind, ID: a.TargetID}
}

// ReactionCounts maps an emoji to the number of fingerprints reacting with it.
type ReactionCounts map[string]int

// Normalize returns a copy holding every palette emoji, with absent entries
// set to zero. Emoji outside the palette are kept and negatives are clamped.
func (c ReactionCounts) Normalize(palette []string) ReactionCounts {
	out := make(ReactionCounts, len(palette)+len(c))
	for _, emoji := range palette {
		out[emoji] = 0
	}

	for emoji, count := range c {
		out[emoji] = max(0, count)
	}

	return out
}

// Apply mutates the count of one emoji for the given action.
func (c ReactionCounts) Apply(emoji string, action enum.ReactionAction) {
	switch action {
	case enum.ReactionActionAdd:
		c[emoji]++
	case enum.ReactionActionRemove:
		c[emoji] = max(0, c[emoji]-1)
	}
}
