package enum

import (
	"errors"
	"fmt"
)

// ErrInvalidTargetKind indicates a target kind outside the supported set.
var ErrInvalidTargetKind = errors.New("invalid target kind")

// TargetKind identifies the kind of content a reaction is attached to.
type TargetKind string

const (
	// TargetKindArticle is a published article.
	TargetKindArticle TargetKind = "article"
	// TargetKindChat is a single chat message.
	TargetKindChat TargetKind = "chat"
	// TargetKindNowPlaying is a now-playing track entry.
	TargetKindNowPlaying TargetKind = "nowplaying"
)

// TargetKindValues returns every supported target kind.
func TargetKindValues() []TargetKind {
	return []TargetKind{TargetKindArticle, TargetKindChat, TargetKindNowPlaying}
}

// TargetKindString parses a raw kind as received from clients.
func TargetKindString(s string) (TargetKind, error) {
	kind := TargetKind(s)
	if !kind.IsATargetKind() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTargetKind, s)
	}

	return kind, nil
}

// IsATargetKind reports whether the kind is one of the supported values.
func (k TargetKind) IsATargetKind() bool {
	switch k {
	case TargetKindArticle, TargetKindChat, TargetKindNowPlaying:
		return true
	}

	return false
}

func (k TargetKind) String() string {
	return string(k)
}
