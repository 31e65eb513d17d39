package models

// Recommendation is one ranked match. Callers hydrate full records in slice
// order and must not re-sort by score.
type Recommendation struct {
	EntityID int64   `json:"entity_id"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// RecommendResponse wraps a ranked list with the query that produced it.
type RecommendResponse struct {
	QueryID    int64 `json:"query_id"`
	QueryKind  Kind  `json:"query_kind"`
	TargetKind Kind  `json:"target_kind"`
	// Clustered is false when the target corpus was too small to partition
	// and every eligible entity was ranked linearly.
	Clustered bool             `json:"clustered"`
	Results   []Recommendation `json:"results"`
	QueryTime int64            `json:"query_time_ms"`
}
