/*
Package req provides helpers for HTTP request parsing and data binding.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"lobbyhub/internal/pkg/errs"
)

// MaxBodyBytes bounds the request body size (1 MB). Chat payloads are small.
const MaxBodyBytes int64 = 1 << 20

// BindJSON binds the JSON request body to the destination struct dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewErrorWithMessage(errs.ErrInvalidParams, "Content-Type must be application/json.")
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return errs.NewErrorWithMessage(errs.ErrInvalidParams, "Request body is not valid JSON.")
	}

	if decoder.More() {
		return errs.NewErrorWithMessage(errs.ErrInvalidParams, "Unexpected extra content in request body.")
	}

	return nil
}
