package mode

// Mode names the score scale of a search response.
type Mode string

// Search mode constants.
const (
	// Vector scores are cosine similarities in [-1, 1].
	Vector Mode = "vector"
	// Keyword scores are base-plus-tier heuristics.
	Keyword Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Vector || m == Keyword
}
