package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophaudio/internal/common"
)

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", common.BearerScheme)
	writeDetail(w, http.StatusUnauthorized, detail)
}

// statusFor maps a service error to a status code and client-facing detail.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "Uploaded file is too large"
	case errors.Is(err, common.ErrDuplicateIdentity):
		return http.StatusBadRequest, "Email already registered"
	case errors.Is(err, common.ErrNoAudioTrack):
		return http.StatusBadRequest, "The video has no audio track"
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect email or password"
	case errors.Is(err, common.ErrTokenInvalid), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "Could not validate credentials"
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound, "File not found"
	case errors.Is(err, common.ErrConversionFailed):
		// the reason can carry converter output and paths; it is only logged
		return http.StatusInternalServerError, "Conversion failed"
	case errors.Is(err, common.ErrStorageWriteFailed):
		return http.StatusInternalServerError, "Could not store the converted audio"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			"request_id", getRequestID(r.Context()),
			"path", r.URL.Path,
			"error", err)
	}
	if status == http.StatusUnauthorized {
		writeUnauthorized(w, detail)
		return
	}
	writeDetail(w, status, detail)
}
