package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"alcyxob/setpad/internal/coach"
)

const maxImportSize = 10 << 20

// CoachHandler proxies AI insights and bulk imports to the coaching service.
type CoachHandler struct {
	client *coach.Client
}

func NewCoachHandler(client *coach.Client) *CoachHandler {
	return &CoachHandler{client: client}
}

type InsightsResponse struct {
	coach.AnalysisResult
	CacheAgeMs int64 `json:"cacheAgeMs,omitempty"`
}

// Insights godoc
// @Summary AI workout analysis
// @Description Cached per user. A fresh analysis can be requested at most every 30 seconds unless refresh is set.
// @Tags Insights
// @Produce json
// @Security BearerAuth
// @Param refresh query bool false "Skip the cache"
// @Success 200 {object} InsightsResponse
// @Failure 429 {object} gin.H "Requested too recently"
// @Failure 502 {object} gin.H "Coaching service failed"
// @Router /insights [get]
func (h *CoachHandler) Insights(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	res, err := h.client.WorkoutAnalysis(c.Request.Context(), caller(c, user.ID), refresh)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, InsightsResponse{AnalysisResult: *res, CacheAgeMs: res.CacheAge.Milliseconds()})
}

// Import godoc
// @Summary Import a workout file
// @Description Uploads a file for server-side parsing into training logs.
// @Tags Insights
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Workout export"
// @Param context formData string false "Notes that help the parser"
// @Success 200 {object} coach.ImportResult
// @Failure 400 {object} gin.H "Missing or empty file"
// @Failure 502 {object} gin.H "Import failed"
// @Router /import [post]
func (h *CoachHandler) Import(c *gin.Context) {
	user, err := currentUser(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	header, err := c.FormFile("file")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("A file is required: %v", err))
		return
	}
	file, err := header.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Could not read upload: %v", err))
		return
	}
	defer file.Close()

	res, err := h.client.Import(c.Request.Context(), caller(c, user.ID), header.Filename, file, c.PostForm("context"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	// Imported logs change what the analysis would say.
	h.client.ForgetAnalysis(user.ID)
	c.JSON(http.StatusOK, res)
}

// caller forwards the request's own bearer token to the coaching service.
func caller(c *gin.Context, userID string) coach.Caller {
	return coach.Caller{UserID: userID, Token: c.GetString(ContextTokenKey)}
}
