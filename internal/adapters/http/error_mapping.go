package httpadapter

import (
	"net/http"

	"github.com/kirillkom/paperflow/internal/core/domain"
)

var statusByCode = map[string]int{
	"INVALID_INPUT": http.StatusBadRequest,
	"UNAUTHORIZED":  http.StatusUnauthorized,
	"NOT_FOUND":     http.StatusNotFound,
	"INDEX_EMPTY":   http.StatusConflict,
	"UNAVAILABLE":   http.StatusServiceUnavailable,
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapErrorToHTTPStatus(err error) int {
	if status, ok := statusByCode[domain.ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func newErrorBody(err error) errorBody {
	return errorBody{Code: domain.ErrorCode(err), Message: err.Error()}
}
