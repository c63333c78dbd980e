package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/litperpro/litper/internal/models"
)

type bulkTrackingRequest struct {
	TrackingNumbers []string `json:"tracking_numbers" validate:"required,min=1,max=100,dive,required,max=64"`
	MaxConcurrent   int      `json:"max_concurrent" validate:"min=0,max=100"`
}

type bulkTrackingResponse struct {
	Total      int                     `json:"total"`
	Successful int                     `json:"successful"`
	Failed     int                     `json:"failed"`
	Results    []models.TrackingResult `json:"results"`
}

func (a *API) getTracking(w http.ResponseWriter, r *http.Request) {
	tn := chi.URLParam(r, "number")

	var c models.CarrierType
	if raw := r.URL.Query().Get("carrier"); raw != "" {
		c = models.ParseCarrier(raw)
		if c == models.CarrierUnknown && !strings.EqualFold(raw, string(models.CarrierUnknown)) {
			writeError(w, http.StatusBadRequest, "unknown carrier "+raw)
			return
		}
	}

	useCache := true
	if raw := r.URL.Query().Get("use_cache"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "use_cache must be a boolean")
			return
		}
		useCache = v
	}

	writeJSON(w, http.StatusOK, a.tracking.GetTracking(r.Context(), tn, c, useCache))
}

func (a *API) bulkTracking(w http.ResponseWriter, r *http.Request) {
	var req bulkTrackingRequest
	if err := a.decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 || maxConcurrent > a.opts.BulkMaxConcurrent {
		maxConcurrent = a.opts.BulkMaxConcurrent
	}

	results := a.tracking.GetBulkTracking(r.Context(), req.TrackingNumbers, maxConcurrent)
	resp := bulkTrackingResponse{Total: len(results), Results: results}
	for _, res := range results {
		if res.Success {
			resp.Successful++
		} else {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) detectCarrier(w http.ResponseWriter, r *http.Request) {
	tn := chi.URLParam(r, "number")
	writeJSON(w, http.StatusOK, map[string]any{
		"tracking_number": tn,
		"carrier":         a.tracking.DetectCarrier(tn),
	})
}

func (a *API) clearCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"cleared": a.tracking.ClearCache(r.Context())})
}

func (a *API) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.tracking.GetCacheStats())
}

func (a *API) listCarriers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.tracking.Carriers())
}
