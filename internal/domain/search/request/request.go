package request

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/versefind/internal/domain"
)

// Default search parameter limits.
const (
	DefaultMinQueryLength = 3
	DefaultMaxQueryLength = 300
	DefaultK              = 10
	DefaultMaxK           = 20
)

// Limits bounds a search request. Zero values fall back to the defaults above.
type Limits struct {
	MinQueryLength int
	MaxQueryLength int
	DefaultK       int
	MaxK           int
	// DefaultModel is used when the request names no model.
	DefaultModel string
	// Models lists accepted model ids. Empty means only DefaultModel.
	Models []string
}

func (l Limits) withDefaults() Limits {
	if l.MinQueryLength <= 0 {
		l.MinQueryLength = DefaultMinQueryLength
	}
	if l.MaxQueryLength <= 0 {
		l.MaxQueryLength = DefaultMaxQueryLength
	}
	if l.MaxK <= 0 {
		l.MaxK = DefaultMaxK
	}
	if l.DefaultK <= 0 {
		l.DefaultK = DefaultK
	}
	if l.DefaultK > l.MaxK {
		l.DefaultK = l.MaxK
	}
	return l
}

func (l Limits) accepts(model string) bool {
	if len(l.Models) == 0 {
		return model == l.DefaultModel
	}
	for _, m := range l.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Request is a validated search query.
type Request struct {
	text    string
	k       int
	model   string
	clamped bool
}

// New validates and normalizes search parameters.
// k == nil selects the default; k < 1 is rejected; k above MaxK is clamped.
func New(text string, k *int, model string, limits Limits) (Request, error) {
	lim := limits.withDefaults()

	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n < lim.MinQueryLength {
		return Request{}, domain.NewValidationError("q",
			fmt.Sprintf("must be at least %d characters", lim.MinQueryLength))
	}
	if n > lim.MaxQueryLength {
		return Request{}, domain.NewValidationError("q",
			fmt.Sprintf("must be at most %d characters", lim.MaxQueryLength))
	}

	topK := lim.DefaultK
	clamped := false
	if k != nil {
		if *k < 1 {
			return Request{}, domain.NewValidationError("k", "must be a positive integer")
		}
		topK = *k
		if topK > lim.MaxK {
			topK = lim.MaxK
			clamped = true
		}
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = lim.DefaultModel
	}
	if !lim.accepts(model) {
		return Request{}, domain.NewValidationError("model", fmt.Sprintf("unsupported model %q", model))
	}

	return Request{text: text, k: topK, model: model, clamped: clamped}, nil
}

// Text returns the trimmed query text.
func (r *Request) Text() string { return r.text }

// K returns the number of results to return.
func (r *Request) K() int { return r.k }

// Model returns the embedding model id.
func (r *Request) Model() string { return r.model }

// Clamped reports whether the requested k exceeded MaxK.
func (r *Request) Clamped() bool { return r.clamped }
