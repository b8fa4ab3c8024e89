package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/editor"
	"alcyxob/setpad/internal/service"
)

// LogHandler serves training logs. Edits go through the editor registry
// and are written by the debounced auto-save.
type LogHandler struct {
	manager service.LogManager
	editors *editor.Registry
}

func NewLogHandler(manager service.LogManager, editors *editor.Registry) *LogHandler {
	return &LogHandler{manager: manager, editors: editors}
}

// --- Request/Response Structs ---

type TableResponse struct {
	Table         domain.LogRecord `json:"table"`
	Pending       bool             `json:"pending"`
	LastSaveError string           `json:"lastSaveError,omitempty"`
}

type ListTablesResponse struct {
	State  service.ListState   `json:"state"`
	Tables []domain.LogSummary `json:"tables"`
	Error  string              `json:"error,omitempty"`
}

type PatchTableRequest struct {
	TableName *string         `json:"tableName"`
	Date      *domain.LogDate `json:"date"`
}

type NamesResponse struct {
	Names []string `json:"names"`
}

func tableResponse(ed *editor.Editor, rec domain.LogRecord) TableResponse {
	resp := TableResponse{Table: rec, Pending: ed.Pending()}
	if err := ed.LastError(); err != nil {
		resp.LastSaveError = err.Error()
	}
	return resp
}

// --- Handler Methods ---

// ListTables godoc
// @Summary List training logs
// @Description Summaries of the user's logs, most recently opened first. State is "loaded", "empty" or "fetch_failed".
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ListTablesResponse
// @Failure 502 {object} ListTablesResponse "Logs could not be fetched"
// @Router /tables [get]
func (h *LogHandler) ListTables(c *gin.Context) {
	result := h.manager.List(c.Request.Context())
	resp := ListTablesResponse{State: result.State, Tables: result.Logs}
	if resp.Tables == nil {
		resp.Tables = []domain.LogSummary{}
	}
	if result.State == service.ListFetchFailed {
		resp.Error = fmt.Sprintf("Could not load your training logs: %v", result.Err)
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CreateTable godoc
// @Summary Create a training log
// @Description Creates and saves a new log with one empty exercise row, or with the rows of a workout template.
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Param template query string false "Template ID, see /templates"
// @Success 201 {object} TableResponse
// @Failure 400 {object} gin.H "Unknown template"
// @Failure 502 {object} gin.H "Save failed"
// @Router /tables [post]
func (h *LogHandler) CreateTable(c *gin.Context) {
	var (
		ed  *editor.Editor
		err error
	)
	if templateID := c.Query("template"); templateID != "" {
		ed, err = h.editors.CreateFromTemplate(c.Request.Context(), templateID)
	} else {
		ed, err = h.editors.Create(c.Request.Context())
	}
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tableResponse(ed, ed.Record()))
}

// GetTable godoc
// @Summary Open a training log
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Success 200 {object} TableResponse
// @Failure 404 {object} gin.H "Not found"
// @Router /tables/{id} [get]
func (h *LogHandler) GetTable(c *gin.Context) {
	ed, ok := h.open(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tableResponse(ed, ed.Record()))
}

// PutTable godoc
// @Summary Save a whole training log
// @Description Replaces the log with the request body and saves it immediately. The log is created if missing.
// @Tags Tables
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param table body domain.LogRecord true "Log"
// @Success 200 {object} TableResponse
// @Failure 400 {object} gin.H "Invalid body"
// @Failure 502 {object} gin.H "Save failed"
// @Router /tables/{id} [put]
func (h *LogHandler) PutTable(c *gin.Context) {
	var rec domain.LogRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid training log: %v", err))
		return
	}
	rec.ID = c.Param("id")

	saved, err := h.editors.Save(c.Request.Context(), rec)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, TableResponse{Table: saved})
}

// PatchTable godoc
// @Summary Rename or re-date a training log
// @Tags Tables
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param patch body PatchTableRequest true "Fields to change"
// @Success 200 {object} TableResponse
// @Router /tables/{id} [patch]
func (h *LogHandler) PatchTable(c *gin.Context) {
	var req PatchTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	ed, ok := h.open(c)
	if !ok {
		return
	}
	rec := ed.Record()
	if req.TableName != nil {
		rec = ed.Rename(*req.TableName)
	}
	if req.Date != nil {
		rec = ed.SetDate(*req.Date)
	}
	c.JSON(http.StatusOK, tableResponse(ed, rec))
}

// DeleteTable godoc
// @Summary Delete a training log
// @Description Drops unsaved edits and deletes the log remotely.
// @Tags Tables
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Success 204 "Deleted"
// @Failure 502 {object} gin.H "Delete failed"
// @Router /tables/{id} [delete]
func (h *LogHandler) DeleteTable(c *gin.Context) {
	if err := h.editors.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FlushTable godoc
// @Summary Save pending edits now
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Success 200 {object} TableResponse
// @Failure 502 {object} gin.H "Save failed"
// @Router /tables/{id}/flush [post]
func (h *LogHandler) FlushTable(c *gin.Context) {
	ed, ok := h.open(c)
	if !ok {
		return
	}
	if err := ed.Flush(c.Request.Context()); err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tableResponse(ed, ed.Record()))
}

// AddRow godoc
// @Summary Append an exercise row
// @Tags Rows
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Success 200 {object} TableResponse
// @Router /tables/{id}/rows [post]
func (h *LogHandler) AddRow(c *gin.Context) {
	ed, ok := h.open(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tableResponse(ed, ed.AddRow()))
}

// RemoveLastRow godoc
// @Summary Remove the last exercise row
// @Description The last remaining row is never removed.
// @Tags Rows
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Success 200 {object} TableResponse
// @Router /tables/{id}/rows/last [delete]
func (h *LogHandler) RemoveLastRow(c *gin.Context) {
	ed, ok := h.open(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tableResponse(ed, ed.RemoveLastRow()))
}

// UpdateRow godoc
// @Summary Update an exercise row
// @Description Merges the given fields into the row; omitted fields are unchanged.
// @Tags Rows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param index path int true "Row index"
// @Param patch body service.RowPatch true "Row fields"
// @Success 200 {object} TableResponse
// @Failure 400 {object} gin.H "Bad index or body"
// @Router /tables/{id}/rows/{index} [patch]
func (h *LogHandler) UpdateRow(c *gin.Context) {
	index, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	var patch service.RowPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}
	if patch.WeightUnit != nil && !patch.WeightUnit.Valid() {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Unknown weight unit %q", *patch.WeightUnit))
		return
	}
	h.editRow(c, func(ed *editor.Editor) (domain.LogRecord, error) {
		return ed.UpdateRow(index, patch)
	})
}

// ToggleRowUnit godoc
// @Summary Switch a row between lbs and kg
// @Tags Rows
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param index path int true "Row index"
// @Success 200 {object} TableResponse
// @Router /tables/{id}/rows/{index}/toggle-unit [post]
func (h *LogHandler) ToggleRowUnit(c *gin.Context) {
	index, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	h.editRow(c, func(ed *editor.Editor) (domain.LogRecord, error) {
		return ed.ToggleRowUnit(index)
	})
}

// AddSet godoc
// @Summary Append a set to a row
// @Tags Rows
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param index path int true "Row index"
// @Success 200 {object} TableResponse
// @Router /tables/{id}/rows/{index}/sets [post]
func (h *LogHandler) AddSet(c *gin.Context) {
	index, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	h.editRow(c, func(ed *editor.Editor) (domain.LogRecord, error) {
		return ed.AddSet(index)
	})
}

// RemoveSet godoc
// @Summary Remove a set from a row
// @Description A row always keeps at least one set.
// @Tags Rows
// @Produce json
// @Security BearerAuth
// @Param id path string true "Log ID"
// @Param index path int true "Row index"
// @Param set path int true "Set index"
// @Success 200 {object} TableResponse
// @Router /tables/{id}/rows/{index}/sets/{set} [delete]
func (h *LogHandler) RemoveSet(c *gin.Context) {
	index, ok := pathIndex(c, "index")
	if !ok {
		return
	}
	set, ok := pathIndex(c, "set")
	if !ok {
		return
	}
	h.editRow(c, func(ed *editor.Editor) (domain.LogRecord, error) {
		return ed.RemoveSet(index, set)
	})
}

// GetActive godoc
// @Summary Locally cached log
// @Description The log this user saved most recently, from the local cache.
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.LogRecord
// @Failure 404 {object} gin.H "Nothing cached"
// @Router /active [get]
func (h *LogHandler) GetActive(c *gin.Context) {
	rec, err := h.manager.RestoreActive(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if rec == nil {
		abortWithError(c, http.StatusNotFound, "No active training log")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// MuscleGroups godoc
// @Summary Muscle groups used in the user's logs
// @Tags Autocomplete
// @Produce json
// @Security BearerAuth
// @Success 200 {object} NamesResponse
// @Router /autocomplete/muscle-groups [get]
func (h *LogHandler) MuscleGroups(c *gin.Context) {
	h.names(c, h.manager.UniqueMuscleGroups)
}

// Exercises godoc
// @Summary Exercises used in the user's logs
// @Tags Autocomplete
// @Produce json
// @Security BearerAuth
// @Param muscleGroup query string false "Only exercises logged under this muscle group"
// @Success 200 {object} NamesResponse
// @Router /autocomplete/exercises [get]
func (h *LogHandler) Exercises(c *gin.Context) {
	if group := c.Query("muscleGroup"); group != "" {
		h.names(c, func(ctx context.Context) ([]string, error) {
			return h.manager.ExercisesForMuscleGroup(ctx, group)
		})
		return
	}
	h.names(c, h.manager.UniqueExercises)
}

type TemplatesResponse struct {
	Templates []service.TemplateSummary `json:"templates"`
}

// Templates godoc
// @Summary Workout templates
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TemplatesResponse
// @Router /templates [get]
func (h *LogHandler) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, TemplatesResponse{Templates: h.manager.Templates()})
}

// Search godoc
// @Summary Search training logs
// @Description Loose match on names, exercises, muscle groups, notes, dates and set values. Dates are inclusive ISO dates.
// @Tags Tables
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search term"
// @Param muscleGroup query string false "Only logs with a row in this muscle group"
// @Param from query string false "Earliest log date"
// @Param to query string false "Latest log date"
// @Success 200 {object} service.SearchResult
// @Failure 400 {object} gin.H "Bad query"
// @Router /search [get]
func (h *LogHandler) Search(c *gin.Context) {
	var q service.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid search query: %v", err))
		return
	}
	res, err := h.manager.Search(c.Request.Context(), q)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- Helpers ---

func (h *LogHandler) open(c *gin.Context) (*editor.Editor, bool) {
	ed, err := h.editors.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return nil, false
	}
	return ed, true
}

func (h *LogHandler) editRow(c *gin.Context, edit func(*editor.Editor) (domain.LogRecord, error)) {
	ed, ok := h.open(c)
	if !ok {
		return
	}
	rec, err := edit(ed)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tableResponse(ed, rec))
}

func (h *LogHandler) names(c *gin.Context, fetch func(context.Context) ([]string, error)) {
	names, err := fetch(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, NamesResponse{Names: names})
}

func pathIndex(c *gin.Context, name string) (int, bool) {
	i, err := strconv.Atoi(c.Param(name))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid %s: %q", name, c.Param(name)))
		return 0, false
	}
	return i, true
}
