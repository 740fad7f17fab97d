package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"plotvault/core"
	"plotvault/storage"
)

// chartListing is the Redis cache entry for the full chart listing
type chartListing struct {
	Items []core.PlotlyDataset `json:"items"`
	Total int64                `json:"total"`
}

// invalidateChart drops a mutated chart from every cache layer
func (a *API) invalidateChart(r *http.Request, itemID int) {
	a.cache.InvalidateDataset(itemID)
	if a.redis != nil {
		if _, err := a.redis.DeletePrefix(r.Context(), core.CacheKeyDatasetListPrefix); err != nil {
			a.logger.Debugw("Failed to invalidate chart list cache", "error", err)
		}
	}
}

// handleListCharts godoc
//
//	@Summary		List Plotly charts
//	@Description	Returns every stored chart document, with the total count in X-Total-Count
//	@Tags			plotly
//	@Produce		json
//	@Success		200	{array}		core.PlotlyDataset
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/plotly/ [get]
func (a *API) handleListCharts(w http.ResponseWriter, r *http.Request) {
	cacheKey := core.GetDatasetListCacheKey(0, 0)
	if a.redis != nil {
		var cached chartListing
		if ok, cacheErr := a.redis.Get(r.Context(), cacheKey, &cached); cacheErr == nil && ok {
			w.Header().Set("X-Total-Count", strconv.FormatInt(cached.Total, 10))
			a.respondJSON(w, cached.Items, http.StatusOK)
			return
		}
	}

	charts, err := a.storage.ListCharts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}
	total, err := a.storage.CountCharts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	if a.redis != nil {
		if cacheErr := a.redis.Set(r.Context(), cacheKey, chartListing{Items: charts, Total: total}, a.config.Redis.CacheTTL); cacheErr != nil {
			a.logger.Debugw("Failed to cache chart listing", "error", cacheErr)
		}
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	a.respondJSON(w, charts, http.StatusOK)
}

// handleGetChart godoc
//
//	@Summary		Get a Plotly chart
//	@Description	Returns a single chart document by its item id
//	@Tags			plotly
//	@Produce		json
//	@Param			item_id	path	int	true	"Chart item id"
//	@Success		200	{object}	core.PlotlyDataset
//	@Failure		404	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/plotly/{item_id} [get]
func (a *API) handleGetChart(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.parseItemID(w, r)
	if !ok {
		return
	}

	if chart, hit := a.cache.GetDataset(itemID); hit {
		a.respondJSON(w, chart, http.StatusOK)
		return
	}

	chart, err := a.storage.GetChart(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Chart with ID %d not found", itemID), a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	a.cache.PutDataset(chart)
	a.respondJSON(w, chart, http.StatusOK)
}

// handleCreateChart godoc
//
//	@Summary		Create a Plotly chart
//	@Description	Validates the trace payload against the chart schema and stores the document
//	@Tags			plotly
//	@Accept			json
//	@Produce		json
//	@Param			chart	body	core.PlotlyCreate	true	"Chart payload"
//	@Success		200	{object}	SuccessResponse
//	@Failure		400	{object}	map[string]interface{}
//	@Failure		422	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/plotly/ [post]
func (a *API) handleCreateChart(w http.ResponseWriter, r *http.Request) {
	// Tolerant decode: Plotly payloads grow fields faster than this service
	// revs, so unknown fields pass through rather than 400
	var payload core.PlotlyCreate
	if err := a.decodeJSONBodyWithLimit(w, r, &payload, int64(a.config.API.JSONBodyLimit), false); err != nil {
		return
	}

	payload.Title = strings.TrimSpace(payload.Title)
	payload.Description = strings.TrimSpace(payload.Description)
	payload.ChartType = strings.TrimSpace(payload.ChartType)

	validate := validator.New()
	if err := validate.Struct(&payload); err != nil {
		a.writeValidationError(w, r, err)
		return
	}
	if err := payload.Validate(); err != nil {
		a.writeValidationError(w, r, err)
		return
	}

	payload.Data = core.SanitizeDocuments(payload.Data)
	if payload.Layout != nil {
		payload.Layout = core.SanitizeDocument(payload.Layout)
	}

	if err := core.ValidateTraces(payload.Data); err != nil {
		a.writeValidationError(w, r, err)
		return
	}

	chart := core.NewPlotlyDataset(&payload, time.Now().UTC())
	if err := a.storage.CreateChart(r.Context(), chart); err != nil {
		if errors.Is(err, storage.ErrDuplicateItemID) {
			writeDetail(w, http.StatusBadRequest, "Chart with generated ID already exists (race condition)", a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	a.invalidateChart(r, chart.ItemID)
	a.hub.BroadcastDatasetEvent(EventDatasetCreated, chart.ItemID)

	a.respondJSON(w, successResponse("Plotly chart created successfully", chart.ItemID, map[string]interface{}{
		"database_id": chart.ID,
	}), http.StatusOK)
}

// handleUpdateChart godoc
//
//	@Summary		Update a Plotly chart
//	@Description	Applies the provided fields to an existing chart document
//	@Tags			plotly
//	@Accept			json
//	@Produce		json
//	@Param			item_id	path	int					true	"Chart item id"
//	@Param			chart	body	core.PlotlyUpdate	true	"Fields to update"
//	@Success		200	{object}	SuccessResponse
//	@Failure		400	{object}	map[string]interface{}	"No changes were made"
//	@Failure		404	{object}	map[string]interface{}
//	@Failure		422	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/plotly/{item_id} [put]
func (a *API) handleUpdateChart(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.parseItemID(w, r)
	if !ok {
		return
	}

	var payload core.PlotlyUpdate
	if err := a.decodeJSONBodyWithLimit(w, r, &payload, int64(a.config.API.JSONBodyLimit), false); err != nil {
		return
	}

	if payload.Title != nil {
		trimmed := strings.TrimSpace(*payload.Title)
		payload.Title = &trimmed
	}
	if payload.Description != nil {
		trimmed := strings.TrimSpace(*payload.Description)
		payload.Description = &trimmed
	}
	if payload.ChartType != nil {
		trimmed := strings.TrimSpace(*payload.ChartType)
		payload.ChartType = &trimmed
	}

	validate := validator.New()
	if err := validate.Struct(&payload); err != nil {
		a.writeValidationError(w, r, err)
		return
	}
	if err := payload.Validate(); err != nil {
		a.writeValidationError(w, r, err)
		return
	}

	if payload.Data != nil {
		sanitized := core.SanitizeDocuments(*payload.Data)
		payload.Data = &sanitized
		if err := core.ValidateTraces(sanitized); err != nil {
			a.writeValidationError(w, r, err)
			return
		}
	}
	if payload.Layout != nil {
		sanitized := core.SanitizeDocument(*payload.Layout)
		payload.Layout = &sanitized
	}

	if err := a.storage.UpdateChart(r.Context(), itemID, payload.Changes()); err != nil {
		switch {
		case errors.Is(err, storage.ErrDatasetNotFound):
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Chart with ID %d not found", itemID), a.logger)
		case errors.Is(err, storage.ErrNoChanges):
			writeDetail(w, http.StatusBadRequest, "No changes were made", a.logger)
		default:
			writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		}
		return
	}

	a.invalidateChart(r, itemID)
	a.hub.BroadcastDatasetEvent(EventDatasetUpdated, itemID)

	a.respondJSON(w, successResponse("Plotly chart updated successfully", itemID, nil), http.StatusOK)
}

// handleDeleteChart godoc
//
//	@Summary		Delete a Plotly chart
//	@Description	Removes a chart document by its item id
//	@Tags			plotly
//	@Produce		json
//	@Param			item_id	path	int	true	"Chart item id"
//	@Success		200	{object}	SuccessResponse
//	@Failure		404	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/plotly/{item_id} [delete]
func (a *API) handleDeleteChart(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.parseItemID(w, r)
	if !ok {
		return
	}

	if err := a.storage.DeleteChart(r.Context(), itemID); err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Chart with ID %d not found", itemID), a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	a.invalidateChart(r, itemID)
	a.hub.BroadcastDatasetEvent(EventDatasetDeleted, itemID)

	a.respondJSON(w, successResponse("Plotly chart deleted successfully", itemID, nil), http.StatusOK)
}
