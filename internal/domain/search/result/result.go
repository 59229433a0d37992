package result

import (
	"strings"
	"unicode"

	"github.com/kailas-cloud/versefind/internal/domain/entity"
)

// Result is a single search hit joined to its display fields.
type Result struct {
	entityID string
	kind     entity.Kind
	title    string
	text     string
	slug     string
	url      string
	score    float64
}

// New creates a search result.
func New(entityID string, kind entity.Kind, title, text, slug, url string, score float64) Result {
	return Result{
		entityID: entityID, kind: kind,
		title: title, text: text, slug: slug, url: url,
		score: score,
	}
}

// EntityID returns the stable entity identifier.
func (r *Result) EntityID() string { return r.entityID }

// Kind returns the entity kind.
func (r *Result) Kind() entity.Kind { return r.kind }

// Title returns the display title.
func (r *Result) Title() string { return r.title }

// Text returns the display snippet.
func (r *Result) Text() string { return r.text }

// Slug returns the entity slug.
func (r *Result) Slug() string { return r.slug }

// URL returns the canonical entity URL.
func (r *Result) URL() string { return r.url }

// Score returns the relevance score.
func (r *Result) Score() float64 { return r.score }

// SnippetMaxRunes bounds the text returned with a result.
const SnippetMaxRunes = 240

// Snippet picks the display text: description when present, else body,
// cut at SnippetMaxRunes runes with a trailing ellipsis.
func Snippet(description, body string) string {
	s := strings.TrimSpace(description)
	if s == "" {
		s = strings.TrimSpace(body)
	}
	r := []rune(s)
	if len(r) <= SnippetMaxRunes {
		return s
	}
	return strings.TrimRightFunc(string(r[:SnippetMaxRunes]), unicode.IsSpace) + "…"
}
