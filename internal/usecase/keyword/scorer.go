// Package keyword scores entities by case-insensitive text matching. It is
// the search path when no vector backend is configured.
package keyword

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
)

// Tier is the strength of a text match.
type Tier int

// Match tiers, weakest first.
const (
	TierNone Tier = iota
	TierSubstring
	TierWord
	TierPrefix
	TierExact
)

func (t Tier) String() string {
	switch t {
	case TierSubstring:
		return "substring"
	case TierWord:
		return "word"
	case TierPrefix:
		return "prefix"
	case TierExact:
		return "exact"
	default:
		return "none"
	}
}

// Weights configures keyword scores: a base per kind plus a bonus for the
// best tier matched.
type Weights struct {
	Base      map[entity.Kind]float64
	Exact     float64
	Prefix    float64
	Word      float64
	Substring float64
}

// DefaultWeights returns the stock weights.
func DefaultWeights() Weights {
	return Weights{
		Base: map[entity.Kind]float64{
			entity.Verse:       50,
			entity.Situation:   40,
			entity.PrayerPoint: 35,
			entity.Place:       30,
			entity.Profession:  25,
			entity.Name:        20,
		},
		Exact:     400,
		Prefix:    300,
		Word:      200,
		Substring: 100,
	}
}

// Validate checks that a stronger tier always outranks a weaker one whatever
// the kinds involved: Exact > Prefix > Word > Substring > 0, and every gap
// between adjacent tiers exceeds the spread of base scores.
func (w Weights) Validate() error {
	if len(w.Base) == 0 {
		return errors.New("keyword base scores are required")
	}
	lo, hi := 0.0, 0.0
	first := true
	for _, k := range entity.Kinds() {
		b, ok := w.Base[k]
		if !ok {
			return fmt.Errorf("keyword base score for %q is required", k)
		}
		if b < 0 {
			return fmt.Errorf("keyword base score for %q must not be negative", k)
		}
		if first {
			lo, hi, first = b, b, false
			continue
		}
		lo, hi = min(lo, b), max(hi, b)
	}
	for k := range w.Base {
		if !k.IsValid() {
			return fmt.Errorf("keyword base score for unknown kind %q", k)
		}
	}

	spread := hi - lo
	steps := []struct {
		name         string
		upper, lower float64
	}{
		{"exact-prefix", w.Exact, w.Prefix},
		{"prefix-word", w.Prefix, w.Word},
		{"word-substring", w.Word, w.Substring},
		{"substring", w.Substring, 0},
	}
	for _, s := range steps {
		if gap := s.upper - s.lower; gap <= spread {
			return fmt.Errorf("keyword %s gap %.2f must exceed base spread %.2f", s.name, gap, spread)
		}
	}
	return nil
}

func (w Weights) bonus(t Tier) float64 {
	switch t {
	case TierExact:
		return w.Exact
	case TierPrefix:
		return w.Prefix
	case TierWord:
		return w.Word
	case TierSubstring:
		return w.Substring
	default:
		return 0
	}
}

// Scorer computes keyword scores. It is immutable and safe for concurrent use.
type Scorer struct {
	w Weights
}

// NewScorer validates w and returns a scorer.
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{w: w}, nil
}

// Query is a prepared search term.
type Query struct {
	text string
	// Word boundaries are required only on sides that end in a word rune.
	boundLeft, boundRight bool
}

// Prepare normalizes q for repeated matching.
func Prepare(q string) Query {
	text := entity.Fold(q)
	first, _ := utf8.DecodeRuneInString(text)
	last, _ := utf8.DecodeLastRuneInString(text)
	return Query{
		text:       text,
		boundLeft:  text != "" && entity.IsWordRune(first),
		boundRight: text != "" && entity.IsWordRune(last),
	}
}

// Text returns the normalized query text.
func (q Query) Text() string { return q.text }

// Match returns the best tier of q over fields.
func (q Query) Match(fields ...string) Tier {
	if q.text == "" {
		return TierNone
	}
	best := TierNone
	for _, f := range fields {
		if t := q.matchOne(entity.Fold(f)); t > best {
			best = t
			if best == TierExact {
				break
			}
		}
	}
	return best
}

func (q Query) matchOne(f string) Tier {
	switch {
	case f == "":
		return TierNone
	case f == q.text:
		return TierExact
	case strings.HasPrefix(f, q.text):
		return TierPrefix
	case q.matchWord(f):
		return TierWord
	case strings.Contains(f, q.text):
		return TierSubstring
	default:
		return TierNone
	}
}

// matchWord reports whether q occurs in f as a whole word.
func (q Query) matchWord(f string) bool {
	for from := 0; from <= len(f)-len(q.text); {
		i := strings.Index(f[from:], q.text)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(q.text)
		if q.boundaryAt(f, start, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(f[start:])
		from = start + size
	}
	return false
}

func (q Query) boundaryAt(f string, start, end int) bool {
	if q.boundLeft && start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(f[:start]); entity.IsWordRune(r) {
			return false
		}
	}
	if q.boundRight && end < len(f) {
		if r, _ := utf8.DecodeRuneInString(f[end:]); entity.IsWordRune(r) {
			return false
		}
	}
	return true
}

// Score returns base(kind) plus the bonus of the best tier over the entity's
// title, description and body. ok is false when nothing matches.
func (s *Scorer) Score(q Query, e *entity.Entity) (float64, Tier, bool) {
	t := q.Match(e.Title, e.Description, e.Body)
	if t == TierNone {
		return 0, TierNone, false
	}
	return s.w.Base[e.Kind] + s.w.bonus(t), t, true
}
