package security

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the uniform error envelope for the ledger API.
// Error holds a stable machine code such as "unbalanced_entry" or
// "count_already_in_progress", never free-form text.
type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// WriteJSONError writes the envelope with the request's correlation id.
func WriteJSONError(w http.ResponseWriter, r *http.Request, status int, code string) {
	cid := CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(CorrelationIDHeader, cid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:         code,
		CorrelationID: cid,
	})
}
