package httpapi

import (
	"errors"
	"net/http"

	"github.com/halladj/vtc-sahra/internal/apperr"
	"github.com/halladj/vtc-sahra/internal/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:            http.StatusNotFound,
	apperr.KindUnauthorized:        http.StatusForbidden,
	apperr.KindConflict:            http.StatusConflict,
	apperr.KindInvalidInput:        http.StatusBadRequest,
	apperr.KindInsufficientBalance: http.StatusPaymentRequired,
	apperr.KindInternal:            http.StatusInternalServerError,
}

func statusFor(kind apperr.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	code := statusFor(kind)
	body := errorBody{Error: string(kind), Message: err.Error()}

	var typed *apperr.Error
	if code == http.StatusInternalServerError {
		logging.FromContext(r.Context(), s.logger).Error("request_failed", "error", err)
		body.Message = "internal error"
	} else if errors.As(err, &typed) && typed.Msg != "" {
		body.Message = typed.Msg
	}
	writeJSON(w, code, body)
}
