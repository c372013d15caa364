package models

// RankedResult is a single search hit. Created per query, never persisted.
type RankedResult struct {
	ID         string  `json:"id"`
	DisplayURL string  `json:"displayUrl"`
	Score      float64 `json:"score"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []*RankedResult `json:"results"`
	QueryTime int64           `json:"query_time_ms"`
}

// ErrorResponse is the body returned for any failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse reports liveness and whether the store connection is established.
// MongoStatus mirrors StoreStatus for clients that read the legacy field.
type HealthResponse struct {
	Status      string `json:"status"`
	StoreStatus string `json:"storeStatus"`
	MongoStatus string `json:"mongoStatus"`
	StoreType   string `json:"storeType"`
}

// StatusResponse is the shape of GET /api/status.
type StatusResponse struct {
	Items      int64  `json:"items"`
	StoreType  string `json:"store_type"`
	Dimensions int    `json:"dimensions,omitempty"`
	PushDown   bool   `json:"push_down"`
	DiskUsage  int64  `json:"disk_usage_bytes,omitempty"`
	Breaker    string `json:"breaker,omitempty"`
}
