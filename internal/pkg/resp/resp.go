/*
Package resp provides helpers for sending the backend's JSON responses.

Success responses carry the bare payload. Failures carry the `{"detail": ...}`
envelope with the HTTP status taken from the error taxonomy, which is exactly
what the client's REST layer parses back out.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"lobbyhub/internal/pkg/errs"
	"lobbyhub/internal/pkg/logx"
)

// errorBody is the failure envelope.
type errorBody struct {
	Detail string `json:"detail"`
}

// RespondJSON sets the content type and sends the JSON payload.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends the payload with HTTP 200. A nil payload sends 204.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	RespondJSON(w, r, http.StatusOK, data)
}

// RespondCreated sends the payload with HTTP 201.
func RespondCreated(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusCreated, data)
}

// RespondError sends the failure envelope for a custom error.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	status := customErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	RespondJSON(w, r, status, errorBody{Detail: customErr.Message})
}
