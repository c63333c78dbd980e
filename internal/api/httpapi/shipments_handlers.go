package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/litperpro/litper/internal/models"
	"github.com/litperpro/litper/internal/storage/pgstore"
	"github.com/pkg/errors"
)

type createShipmentsRequest struct {
	Items []models.ShipmentCreateInput `json:"items" validate:"required,min=1,max=10000,dive"`
}

func (a *API) createShipments(w http.ResponseWriter, r *http.Request) {
	var req createShipmentsRequest
	if err := a.decodeBody(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := a.shipments.CreateShipments(r.Context(), req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shipments": out})
}

func (a *API) getShipments(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id "+part)
			return
		}
		ids = append(ids, id)
	}

	out, err := a.shipments.GetShipmentsByIDs(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shipments": out})
}

func (a *API) shipmentEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	evs, err := a.shipments.ListShipmentEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (a *API) refreshShipment(w http.ResponseWriter, r *http.Request) {
	id, ok := shipmentID(w, r)
	if !ok {
		return
	}
	err := a.shipments.RefreshShipment(r.Context(), id)
	if errors.Is(err, pgstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "shipment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

func shipmentID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid shipment id")
		return 0, false
	}
	return id, true
}
