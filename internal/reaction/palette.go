package reaction

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/robalyx/reactor/internal/database/types"
	"github.com/robalyx/reactor/internal/setup/config"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmojiRequired indicates a request without an emoji.
	ErrEmojiRequired = errors.New("emoji is required")
	// ErrEmojiNotAllowed indicates an emoji outside the configured palette.
	ErrEmojiNotAllowed = errors.New("emoji is not allowed")
)

// Palette is the ordered set of emoji callers may react with.
type Palette struct {
	emojis  []string
	allowed map[string]int
}

// NewPalette normalizes and de-duplicates the configured emoji, keeping the
// first occurrence order. An empty result falls back to the default palette.
func NewPalette(emojis []string) *Palette {
	palette := &Palette{allowed: make(map[string]int)}

	for _, raw := range emojis {
		emoji := normalizeEmoji(raw)
		if emoji == "" {
			continue
		}

		if _, exists := palette.allowed[emoji]; exists {
			continue
		}

		palette.allowed[emoji] = len(palette.emojis)
		palette.emojis = append(palette.emojis, emoji)
	}

	if len(palette.emojis) == 0 {
		return NewPalette(config.DefaultEmojis)
	}

	return palette
}

// Emojis returns a copy of the palette in display order.
func (p *Palette) Emojis() []string {
	return slices.Clone(p.emojis)
}

// Resolve normalizes a raw emoji and checks it against the palette.
func (p *Palette) Resolve(raw string) (string, error) {
	emoji := normalizeEmoji(raw)
	if emoji == "" {
		return "", ErrEmojiRequired
	}

	if _, ok := p.allowed[emoji]; !ok {
		return "", fmt.Errorf("%w: %q", ErrEmojiNotAllowed, emoji)
	}

	return emoji, nil
}

// Normalize fills in every palette emoji with an explicit zero.
func (p *Palette) Normalize(counts types.ReactionCounts) types.ReactionCounts {
	return counts.Normalize(p.emojis)
}

// Sort orders emoji by palette position, then lexically for unknown ones.
func (p *Palette) Sort(emojis []string) {
	slices.SortFunc(emojis, func(a, b string) int {
		ia, okA := p.allowed[a]
		ib, okB := p.allowed[b]

		switch {
		case okA && okB:
			return ia - ib
		case okA:
			return -1
		case okB:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
}

func normalizeEmoji(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}
