package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/services/rescue"
	"github.com/pkg/errors"
)

type bulkQueueRequest struct {
	Items []models.RescueInput `json:"items" validate:"required,min=1,max=500,dive"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type rescheduleRequest struct {
	At    time.Time `json:"at" validate:"required"`
	Notes string    `json:"notes" validate:"max=2000"`
}

func (a *API) addToQueue(w http.ResponseWriter, r *http.Request) {
	var in models.RescueInput
	if err := a.decodeBody(w, r, &in, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := a.rescue.AddToQueue(r.Context(), in)
	if errors.Is(err, rescue.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) addBulkToQueue(w http.ResponseWriter, r *http.Request) {
	var req bulkQueueRequest
	if err := a.decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.rescue.AddBulkToQueue(r.Context(), req.Items))
}

func (a *API) getQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := rescue.QueueFilter{
		Priority: models.RescuePriority(q.Get("priority")),
		Status:   models.RescueStatus(q.Get("status")),
	}
	if f.Priority != "" && !f.Priority.Valid() {
		writeError(w, http.StatusBadRequest, "invalid priority")
		return
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	n, ok := parseLimit(q.Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	f.Limit = n

	items := a.rescue.GetQueue(f)
	writeJSON(w, http.StatusOK, map[string]any{"total": len(items), "items": items})
}

func (a *API) getItem(w http.ResponseWriter, r *http.Request) {
	it, ok := a.rescue.GetItem(chi.URLParam(r, "number"))
	if !ok {
		writeError(w, http.StatusNotFound, "item not found in rescue queue")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *API) itemActivity(w http.ResponseWriter, r *http.Request) {
	if a.activity == nil {
		writeError(w, http.StatusNotImplemented, "activity log is not configured")
		return
	}
	limit, ok := parseLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	list, err := a.activity.ListRescueActivity(r.Context(), chi.URLParam(r, "number"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) sendWhatsApp(w http.ResponseWriter, r *http.Request) {
	writeOperation(w, a.rescue.SendWhatsApp(r.Context(), chi.URLParam(r, "number")))
}

func (a *API) bulkWhatsApp(w http.ResponseWriter, r *http.Request) {
	var priority *models.RescuePriority
	if raw := r.URL.Query().Get("priority"); raw != "" {
		p := models.RescuePriority(raw)
		if !p.Valid() {
			writeError(w, http.StatusBadRequest, "invalid priority")
			return
		}
		priority = &p
	}
	writeJSON(w, http.StatusOK, a.rescue.SendBulkWhatsApp(r.Context(), priority))
}

func (a *API) callScript(w http.ResponseWriter, r *http.Request) {
	script, res := a.rescue.GetCallScript(chi.URLParam(r, "number"))
	if !res.Success {
		writeOperation(w, res)
		return
	}
	writeJSON(w, http.StatusOK, script)
}

func (a *API) callPending(w http.ResponseWriter, r *http.Request) {
	writeOperation(w, a.rescue.MarkCallPending(r.Context(), chi.URLParam(r, "number")))
}

func (a *API) callCompleted(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := a.decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOperation(w, a.rescue.MarkCallCompleted(r.Context(), chi.URLParam(r, "number"), req.Notes))
}

func (a *API) recovered(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := a.decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOperation(w, a.rescue.MarkRecovered(r.Context(), chi.URLParam(r, "number"), req.Notes))
}

func (a *API) lost(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := a.decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOperation(w, a.rescue.MarkLost(r.Context(), chi.URLParam(r, "number"), req.Reason))
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := a.decodeBody(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOperation(w, a.rescue.Cancel(r.Context(), chi.URLParam(r, "number"), req.Reason))
}

func (a *API) reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := a.decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeOperation(w, a.rescue.Reschedule(r.Context(), chi.URLParam(r, "number"), req.At, req.Notes))
}

func (a *API) rescueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.rescue.GetStats())
}

func (a *API) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="cola_rescate.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(a.rescue.ExportQueueCSV()))
}

// parseLimit: пустое значение означает "без лимита" (0).
func parseLimit(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
