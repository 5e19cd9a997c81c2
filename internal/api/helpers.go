package api

import (
	"encoding/json"
	"net/http"

	"github.com/vytor/lexisync/internal/errors"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a single JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewBadRequestError("malformed request body: " + err.Error())
	}
	return nil
}

type qualityRequest struct {
	Quality *int `json:"quality"`
}

func (q qualityRequest) value() (int, error) {
	if q.Quality == nil {
		return 0, errors.NewValidationError("quality", "required")
	}
	return *q.Quality, nil
}
