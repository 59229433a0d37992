package entity

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/kailas-cloud/versefind/internal/domain"
)

// Kind is a content entity type.
type Kind string

// Supported entity kinds.
const (
	Verse       Kind = "verse"
	Situation   Kind = "situation"
	PrayerPoint Kind = "prayer-point"
	Place       Kind = "place"
	Profession  Kind = "profession"
	Name        Kind = "name"
)

var allKinds = []Kind{Verse, Situation, PrayerPoint, Place, Profession, Name}

// Kinds returns every supported kind in canonical order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// IsValid reports whether k is a supported kind.
func (k Kind) IsValid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSpace(s))
	if !k.IsValid() {
		return "", fmt.Errorf("%q: %w", s, domain.ErrUnknownKind)
	}
	return k, nil
}

// ParseKinds validates a list of kind names. An empty list means all kinds.
func ParseKinds(names []string) ([]Kind, error) {
	if len(names) == 0 {
		return Kinds(), nil
	}
	seen := make(map[Kind]bool, len(names))
	out := make([]Kind, 0, len(names))
	for _, n := range names {
		k, err := ParseKind(n)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out, nil
}

// Entity is a searchable content record owned by the content store.
// For verses ID is the numeric verse id.
type Entity struct {
	Kind        Kind
	ID          string
	Slug        string
	Title       string
	Description string
	Body        string
	URL         string
	Published   bool
	UpdatedAt   time.Time
}

// ItemID returns the index key "{kind}:{entityId}".
func (e *Entity) ItemID() string { return ItemID(e.Kind, e.ID) }

// SearchText returns the canonical text embedded for this entity.
func (e *Entity) SearchText() string { return SearchText(e.Title, e.Description, e.Body) }

// ItemID builds the index key for an entity.
func ItemID(kind Kind, entityID string) string {
	return string(kind) + ":" + entityID
}

// ParseItemID splits an index key back into kind and entity id.
func ParseItemID(id string) (Kind, string, error) {
	kindPart, entityID, ok := strings.Cut(id, ":")
	if !ok || entityID == "" {
		return "", "", fmt.Errorf("malformed item id %q", id)
	}
	k, err := ParseKind(kindPart)
	if err != nil {
		return "", "", err
	}
	return k, entityID, nil
}

// SearchText joins title, description and body with single spaces,
// skipping blank fields. Fields are trimmed, inner whitespace is kept.
func SearchText(title, description, body string) string {
	parts := make([]string, 0, 3)
	for _, f := range []string{title, description, body} {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

// Fold returns s trimmed and lowercased with Unicode case mapping. Keyword
// matching compares folded forms only.
func Fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// IsWordRune reports whether r is part of a word: a letter, a digit or '_'.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Words folds s, replaces every run of non-word runes with one space and pads
// the result with a space on each side, so " w " is a whole-word pattern.
// It returns "" when s has no word runes.
func Words(s string) string {
	fields := strings.FieldsFunc(Fold(s), func(r rune) bool { return !IsWordRune(r) })
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}
