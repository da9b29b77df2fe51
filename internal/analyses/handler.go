package analyses

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"feedback-backend/internal/ingest"
	"feedback-backend/internal/shared/server/respond"
	"feedback-backend/internal/wordcloud"
)

const maxUploadBytes = 10 << 20 // per file

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc           *Service
	renderLimiter *renderLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:           svc,
		renderLimiter: newRenderLimiter(renderLimitWindow, nil),
	}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.createAnalysis)
	rg.POST("/analyses/upload", h.uploadAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.DELETE("/analyses/:id", h.deleteAnalysis)
	rg.POST("/analyses/:id/retry-failed-summaries", h.retryFailedSummaries)
	rg.GET("/analyses/:id/export.csv", h.exportCSV)
	rg.GET("/analyses/:id/wordcloud", h.wordCloud)
}

type createRequest struct {
	Name           string   `json:"name"`
	Items          []string `json:"items"`
	SentimentModel string   `json:"sentiment_model"`
	SummaryModel   string   `json:"summary_model"`
}

func (h *Handler) createAnalysis(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	h.startAnalysis(c, CreateInput{
		Name:           req.Name,
		Items:          req.Items,
		SentimentModel: req.SentimentModel,
		SummaryModel:   req.SummaryModel,
	})
}

func (h *Handler) uploadAnalysis(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid multipart form", nil)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "no files uploaded", nil)
		return
	}

	names := make([]string, 0, len(files))
	contents := make([][]byte, 0, len(files))
	for _, fh := range files {
		if fh.Size > maxUploadBytes {
			respond.Error(c, http.StatusRequestEntityTooLarge, "validation_error", "file too large: "+fh.Filename, nil)
			return
		}
		f, err := fh.Open()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "cannot read file: "+fh.Filename, nil)
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
		f.Close()
		if err != nil {
			respond.Error(c, http.StatusBadRequest, "validation_error", "cannot read file: "+fh.Filename, nil)
			return
		}
		names = append(names, fh.Filename)
		contents = append(contents, data)
	}

	items, err := ingest.ParseFiles(names, contents)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}

	name := c.PostForm("name")
	if name == "" && len(names) == 1 {
		name = strings.TrimSuffix(names[0], filepathExt(names[0]))
	}
	h.startAnalysis(c, CreateInput{
		Name:           name,
		Items:          texts,
		SentimentModel: c.PostForm("sentiment_model"),
		SummaryModel:   c.PostForm("summary_model"),
	})
}

func (h *Handler) startAnalysis(c *gin.Context, in CreateInput) {
	ctx := WithJobID(c.Request.Context(), c.GetString("requestId"))
	analysis, err := h.Svc.Create(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create analysis", nil)
		}
		return
	}
	respond.JSON(c, http.StatusCreated, analysis)
}

func (h *Handler) getAnalysis(c *gin.Context) {
	analysisID := c.Param("id")
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 0)

	snap, err := h.Svc.Get(c.Request.Context(), analysisID, offset, limit)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, ErrValidation):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, snap)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	analyses, err := h.Svc.List(c.Request.Context(), limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"analyses": analyses})
}

func (h *Handler) deleteAnalysis(c *gin.Context) {
	err := h.Svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to delete analysis", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) retryFailedSummaries(c *gin.Context) {
	ctx := WithJobID(c.Request.Context(), c.GetString("requestId"))
	reset, err := h.Svc.RetryFailedSummaries(ctx, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, ErrNothingToRetry):
			respond.JSON(c, http.StatusOK, gin.H{"status": "nothing_to_retry"})
		case errors.Is(err, ErrRetryInProgress):
			respond.Error(c, http.StatusConflict, "already_in_progress", "summarization already in progress", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to retry summaries", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"status":       "retry_started",
		"failed_count": reset,
	})
}

func (h *Handler) exportCSV(c *gin.Context) {
	snap, err := h.Svc.Get(c.Request.Context(), c.Param("id"), 0, 0)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export analysis", nil)
		}
		return
	}
	data, err := ExportCSV(snap)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to export analysis", nil)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+ExportFileName(snap.Analysis)+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func (h *Handler) wordCloud(c *gin.Context) {
	analysisID := c.Param("id")
	if !h.renderLimiter.Allow(analysisID) {
		c.Header("Retry-After", strconv.Itoa(h.renderLimiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "word cloud recently rendered, retry later", nil)
		return
	}
	img, contentType, err := h.Svc.RenderWordCloud(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		case errors.Is(err, wordcloud.ErrNoText):
			respond.Error(c, http.StatusUnprocessableEntity, "no_text", "analysis has no text to render", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to render word cloud", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"image": "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(img),
	})
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func filepathExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx != -1 {
		return name[idx:]
	}
	return ""
}
