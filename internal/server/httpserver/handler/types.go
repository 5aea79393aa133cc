package handler

import "github.com/yndnr/sightingdb-go/internal/core/domain"

// MessageResponse is the status envelope used for writes, deletes and
// errors. Code is empty on success.
type MessageResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StatsResponse is the JSON view of one record.
type StatsResponse struct {
	Value       string  `json:"value"`
	Count       uint64  `json:"count"`
	ShadowCount *uint64 `json:"shadow_count,omitempty"`
	FirstSeen   *int64  `json:"first_seen,omitempty"`
	LastSeen    *int64  `json:"last_seen,omitempty"`
}

func newStatsResponse(st domain.Stats) StatsResponse {
	return StatsResponse{
		Value:       domain.EncodeValue(st.Value),
		Count:       st.Count,
		ShadowCount: st.ShadowCount,
		FirstSeen:   st.FirstSeen,
		LastSeen:    st.LastSeen,
	}
}

// ItemsResponse wraps namespace listings and bulk read results.
type ItemsResponse struct {
	Items []any `json:"items"`
}

// BulkWriteRequest is the body of POST /wb.
type BulkWriteRequest struct {
	Items []BulkWriteItem `json:"items"`
}

// BulkWriteItem is one sighting of a bulk write. Timestamp is unix
// seconds; zero or absent means now.
type BulkWriteItem struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// BulkWriteResponse reports the outcome of every item of a bulk write,
// in request order. Skipped items carried an empty value.
type BulkWriteResponse struct {
	Message string            `json:"message"`
	Written int               `json:"written"`
	Failed  int               `json:"failed"`
	Skipped int               `json:"skipped"`
	Items   []MessageResponse `json:"items"`
}

// BulkReadRequest is the body of POST /rb and /rbs.
type BulkReadRequest struct {
	Items []BulkReadItem `json:"items"`
}

// BulkReadItem is one lookup of a bulk read.
type BulkReadItem struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
	NoShadow  bool   `json:"noshadow,omitempty"`
}

// DeleteResponse is the body of a delete.
type DeleteResponse struct {
	Message string `json:"message"`
	Deleted bool   `json:"deleted"`
}

// GrantsResponse lists the prefixes held by one API key.
type GrantsResponse struct {
	Key   string   `json:"key"`
	Read  []string `json:"read"`
	Write []string `json:"write"`
}

// KeysResponse lists the bound API keys.
type KeysResponse struct {
	Keys []string `json:"keys"`
}
