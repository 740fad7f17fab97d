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

// SuccessResponse is the mutation response envelope. item_id and data stay
// present (null when unset) so clients can destructure without guards.
type SuccessResponse struct {
	Message string                 `json:"message"`
	ItemID  *int                   `json:"item_id"`
	Data    map[string]interface{} `json:"data"`
}

func successResponse(message string, itemID int, data map[string]interface{}) SuccessResponse {
	return SuccessResponse{Message: message, ItemID: &itemID, Data: data}
}

// recordListing is the Redis cache entry for one list window
type recordListing struct {
	Items []core.SimpleRecord `json:"items"`
	Total int64               `json:"total"`
}

// invalidateRecord drops a mutated record from every cache layer
func (a *API) invalidateRecord(r *http.Request, itemID int) {
	a.cache.InvalidateRecord(itemID)
	if a.redis != nil {
		if _, err := a.redis.DeletePrefix(r.Context(), core.CacheKeyRecordListPrefix); err != nil {
			a.logger.Debugw("Failed to invalidate record list cache", "error", err)
		}
	}
}

// handleListRecords godoc
//
//	@Summary		List data records
//	@Description	Returns stored records ordered by insertion, with the total count in X-Total-Count
//	@Tags			data
//	@Produce		json
//	@Param			limit	query	int	false	"Maximum number of results (1-1000)"	minimum(1)	maximum(1000)	default(100)
//	@Param			skip	query	int	false	"Number of results to skip"	minimum(0)	default(0)
//	@Success		200	{array}		core.SimpleRecord
//	@Failure		422	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/data/ [get]
func (a *API) handleListRecords(w http.ResponseWriter, r *http.Request) {
	window, err := ParseListWindow(r)
	if err != nil {
		a.writeValidationError(w, r, err)
		return
	}

	// Redis-backed list cache absorbs dashboard polling; a miss or error
	// falls through to the store
	cacheKey := core.GetRecordListCacheKey(window.Limit, window.Skip)
	if a.redis != nil {
		var cached recordListing
		if ok, cacheErr := a.redis.Get(r.Context(), cacheKey, &cached); cacheErr == nil && ok {
			w.Header().Set("X-Total-Count", strconv.FormatInt(cached.Total, 10))
			a.respondJSON(w, cached.Items, http.StatusOK)
			return
		}
	}

	records, err := a.storage.ListRecords(r.Context(), window.Limit, window.Skip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}
	total, err := a.storage.CountRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	if a.redis != nil {
		if cacheErr := a.redis.Set(r.Context(), cacheKey, recordListing{Items: records, Total: total}, a.config.Redis.CacheTTL); cacheErr != nil {
			a.logger.Debugw("Failed to cache record listing", "error", cacheErr)
		}
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	a.respondJSON(w, records, http.StatusOK)
}

// handleGetRecord godoc
//
//	@Summary		Get a data record
//	@Description	Returns a single record by its item id
//	@Tags			data
//	@Produce		json
//	@Param			item_id	path	int	true	"Record item id"
//	@Success		200	{object}	core.SimpleRecord
//	@Failure		404	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/data/{item_id} [get]
func (a *API) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.parseItemID(w, r)
	if !ok {
		return
	}

	if rec, hit := a.cache.GetRecord(itemID); hit {
		a.respondJSON(w, rec, http.StatusOK)
		return
	}

	rec, err := a.storage.GetRecord(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Item with ID %d not found", itemID), a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	a.cache.PutRecord(rec)
	a.respondJSON(w, rec, http.StatusOK)
}

// handleCreateRecord godoc
//
//	@Summary		Create a data record
//	@Description	Stores a free-form record and returns the generated item id
//	@Tags			data
//	@Accept			json
//	@Produce		json
//	@Param			record	body	core.SimpleCreate	true	"Record payload"
//	@Success		200	{object}	SuccessResponse
//	@Failure		400	{object}	map[string]interface{}
//	@Failure		422	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/data/ [post]
func (a *API) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var payload core.SimpleCreate
	if err := a.decodeJSONBodyWithLimit(w, r, &payload, int64(a.config.API.JSONBodyLimit), true); err != nil {
		return
	}

	payload.Title = strings.TrimSpace(payload.Title)
	payload.Description = strings.TrimSpace(payload.Description)

	validate := validator.New()
	if err := validate.Struct(&payload); err != nil {
		a.writeValidationError(w, r, err)
		return
	}
	if err := payload.Validate(); err != nil {
		a.writeValidationError(w, r, err)
		return
	}

	payload.Data = core.SanitizeDocument(payload.Data)

	rec := core.NewSimpleRecord(&payload, time.Now().UTC())
	if err := a.storage.CreateRecord(r.Context(), rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateItemID) {
			writeDetail(w, http.StatusBadRequest, "Item with generated ID already exists (race condition)", a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	a.invalidateRecord(r, rec.ItemID)
	a.hub.BroadcastDatasetEvent(EventDatasetCreated, rec.ItemID)

	a.respondJSON(w, successResponse("Data created successfully", rec.ItemID, map[string]interface{}{
		"database_id": rec.ID,
	}), http.StatusOK)
}

// handleUpdateRecord godoc
//
//	@Summary		Update a data record
//	@Description	Applies the provided fields to an existing record
//	@Tags			data
//	@Accept			json
//	@Produce		json
//	@Param			item_id	path	int					true	"Record item id"
//	@Param			record	body	core.SimpleUpdate	true	"Fields to update"
//	@Success		200	{object}	SuccessResponse
//	@Failure		400	{object}	map[string]interface{}	"No changes were made"
//	@Failure		404	{object}	map[string]interface{}
//	@Failure		422	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/data/{item_id} [put]
func (a *API) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.parseItemID(w, r)
	if !ok {
		return
	}

	var payload core.SimpleUpdate
	if err := a.decodeJSONBodyWithLimit(w, r, &payload, int64(a.config.API.JSONBodyLimit), true); err != nil {
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
		sanitized := core.SanitizeDocument(*payload.Data)
		payload.Data = &sanitized
	}

	if err := a.storage.UpdateRecord(r.Context(), itemID, payload.Changes()); err != nil {
		switch {
		case errors.Is(err, storage.ErrDatasetNotFound):
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Item with ID %d not found", itemID), a.logger)
		case errors.Is(err, storage.ErrNoChanges):
			writeDetail(w, http.StatusBadRequest, "No changes were made", a.logger)
		default:
			writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		}
		return
	}

	a.invalidateRecord(r, itemID)
	a.hub.BroadcastDatasetEvent(EventDatasetUpdated, itemID)

	a.respondJSON(w, successResponse("Data updated successfully", itemID, nil), http.StatusOK)
}

// handleDeleteRecord godoc
//
//	@Summary		Delete a data record
//	@Description	Removes a record by its item id
//	@Tags			data
//	@Produce		json
//	@Param			item_id	path	int	true	"Record item id"
//	@Success		200	{object}	SuccessResponse
//	@Failure		404	{object}	map[string]interface{}
//	@Failure		500	{object}	map[string]interface{}
//	@Router			/data/{item_id} [delete]
func (a *API) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	itemID, ok := a.parseItemID(w, r)
	if !ok {
		return
	}

	if err := a.storage.DeleteRecord(r.Context(), itemID); err != nil {
		if errors.Is(err, storage.ErrDatasetNotFound) {
			writeDetail(w, http.StatusNotFound, fmt.Sprintf("Item with ID %d not found", itemID), a.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "Database error occurred", err, a.logger)
		return
	}

	a.invalidateRecord(r, itemID)
	a.hub.BroadcastDatasetEvent(EventDatasetDeleted, itemID)

	a.respondJSON(w, successResponse("Data deleted successfully", itemID, nil), http.StatusOK)
}
