package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/studyshelf/catalogbot/internal/catalog"
)

// CatalogHandler serves read-only views of the catalog. Nothing here counts
// as a download.
type CatalogHandler struct {
	service *catalog.Service
	logger  *slog.Logger
}

type SubjectView struct {
	catalog.Subject
	Topics []catalog.Topic `json:"topics"`
}

type ListSubjectsResponse struct {
	Items []SubjectView `json:"items"`
}

// MaterialView is a material as exposed over HTTP. The platform file
// reference stays private to the bot.
type MaterialView struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	FileName   string    `json:"file_name"`
	UploadedBy int64     `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	Downloads  int64     `json:"downloads_count"`
}

type HitView struct {
	Material    MaterialView `json:"material"`
	SubjectID   int64        `json:"subject_id"`
	SubjectName string       `json:"subject_name"`
	TopicName   string       `json:"topic_name"`
}

type HitsResponse struct {
	Items []HitView `json:"items"`
}

func NewCatalogHandler(log *slog.Logger, service *catalog.Service) *CatalogHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogHandler{service: service, logger: log.With(slog.String("handler", "catalog"))}
}

func (h *CatalogHandler) Register(e *echo.Echo) {
	group := e.Group("/catalog")
	group.GET("/subjects", h.ListSubjects)
	group.GET("/search", h.Search)
	group.GET("/stats", h.Stats)
}

// ListSubjects godoc
// @Summary List subjects with their topics
// @Tags catalog
// @Success 200 {object} ListSubjectsResponse
// @Failure 500 {object} map[string]string
// @Router /catalog/subjects [get]
func (h *CatalogHandler) ListSubjects(c echo.Context) error {
	ctx := c.Request().Context()
	subjects, err := h.service.Subjects(ctx)
	if err != nil {
		return h.internalError(err)
	}
	items := make([]SubjectView, 0, len(subjects))
	for _, s := range subjects {
		topics, err := h.service.Topics(ctx, s.ID)
		if err != nil {
			return h.internalError(err)
		}
		if topics == nil {
			topics = []catalog.Topic{}
		}
		items = append(items, SubjectView{Subject: s, Topics: topics})
	}
	return c.JSON(http.StatusOK, ListSubjectsResponse{Items: items})
}

// Search godoc
// @Summary Search materials by topic, subject or file name
// @Tags catalog
// @Param q query string true "Substring to match"
// @Success 200 {object} HitsResponse
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /catalog/search [get]
func (h *CatalogHandler) Search(c echo.Context) error {
	hits, err := h.service.Search(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		if errors.Is(err, catalog.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, "q is required")
		}
		return h.internalError(err)
	}
	return c.JSON(http.StatusOK, hitsResponse(hits))
}

// Stats godoc
// @Summary Most downloaded materials
// @Tags catalog
// @Param limit query int false "Number of entries (default 10, max 100)"
// @Success 200 {object} HitsResponse
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /catalog/stats [get]
func (h *CatalogHandler) Stats(c echo.Context) error {
	limit := catalog.DefaultTopLimit
	if s := strings.TrimSpace(c.QueryParam("limit")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	hits, err := h.service.TopDownloads(c.Request().Context(), limit)
	if err != nil {
		return h.internalError(err)
	}
	return c.JSON(http.StatusOK, hitsResponse(hits))
}

func (h *CatalogHandler) internalError(err error) error {
	h.logger.Error("catalog query failed", slog.Any("error", err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func hitsResponse(hits []catalog.SearchHit) HitsResponse {
	items := make([]HitView, 0, len(hits))
	for _, hit := range hits {
		m := hit.Material
		items = append(items, HitView{
			Material: MaterialView{
				ID:         m.ID,
				TopicID:    m.TopicID,
				FileName:   m.FileName,
				UploadedBy: m.UploadedBy,
				UploadedAt: m.UploadedAt,
				Downloads:  m.Downloads,
			},
			SubjectID:   hit.SubjectID,
			SubjectName: hit.SubjectName,
			TopicName:   hit.TopicName,
		})
	}
	return HitsResponse{Items: items}
}
