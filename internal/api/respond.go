package api

import (
	"encoding/json"
	"net/http"

	"github.com/falconmind/clustercenter/pkg/errs"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps an errs.Kind to an HTTP status and writes a uniform
// error body. Errors not tagged with a Kind are treated as Fatal.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	switch errs.KindOf(err) {
	case errs.Validation:
		status = http.StatusBadRequest
		code = "VALIDATION"
	case errs.InvalidState:
		status = http.StatusConflict
		code = "INVALID_STATE"
	case errs.NotFound:
		status = http.StatusNotFound
		code = "NOT_FOUND"
	case errs.CapacityExhausted:
		status = http.StatusServiceUnavailable
		code = "CAPACITY_EXHAUSTED"
	case errs.Transient:
		status = http.StatusServiceUnavailable
		code = "TRANSIENT"
	case errs.Fatal:
		status = http.StatusInternalServerError
		code = "FATAL"
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.NewValidation("MALFORMED_BODY", err.Error())
	}
	return nil
}
