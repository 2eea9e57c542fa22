package api

import (
	"encoding/json"
	"net/http"
)

const (
	codeNotFound              = "not_found"
	codeMethodNotAllowed      = "method_not_allowed"
	codeInvalidRequestBody    = "invalid_request_body"
	codeNameTooShort          = "name_too_short"
	codeInvalidCoordinates    = "invalid_coordinates"
	codeCoordinatesOutOfRange = "coordinates_out_of_range"
	codeZonePassed            = "zone_passed"
	codeInvalidBedtime        = "invalid_bedtime"
	codeRateLimited           = "rate_limited"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
