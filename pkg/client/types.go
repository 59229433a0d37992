package client

// SearchResponse is a ranked result list.
type SearchResponse struct {
	Query   string   `json:"query"`
	Model   string   `json:"model"`
	K       int      `json:"k"`
	Mode    string   `json:"mode"` // "vector" or "keyword"
	Results []Result `json:"results"`
}

// Result is a single search hit.
type Result struct {
	EntityID string  `json:"entity_id"`
	Kind     string  `json:"kind"`
	Slug     string  `json:"slug"`
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"/"disabled"
}

type errorBody struct {
	Error string `json:"error"`
}
