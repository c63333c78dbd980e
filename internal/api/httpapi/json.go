package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/litperpro/litper/internal/models"
	"github.com/pkg/errors"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody читает JSON и прогоняет его через validator. Пустое тело допустимо, если allowEmpty.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		return errors.Wrap(err, "decode body")
	}
	if err := a.validate.Struct(dst); err != nil {
		return errors.Wrap(err, "validate body")
	}
	return nil
}

// writeOperation: ожидаемые ошибки очереди приходят в OperationResult, не в error.
func writeOperation(w http.ResponseWriter, res models.OperationResult) {
	switch {
	case res.Success:
		writeJSON(w, http.StatusOK, res)
	case strings.Contains(res.Error, "not found"):
		writeJSON(w, http.StatusNotFound, res)
	case strings.Contains(res.Error, "required"):
		writeJSON(w, http.StatusBadRequest, res)
	default:
		writeJSON(w, http.StatusConflict, res)
	}
}
