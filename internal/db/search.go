package db

// TagFilter restricts a query to documents whose TAG field holds one of Values.
type TagFilter struct {
	Field  string
	Values []string
}

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// VectorField is the indexed vector attribute (default "vector").
	VectorField  string
	Filters      []TagFilter
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// For KNN queries Score is the cosine similarity 1 - distance.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
