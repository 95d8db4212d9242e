package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingHandler struct {
	pinger Pinger
	logger *slog.Logger
}

func NewPingHandler(log *slog.Logger, pinger Pinger) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{pinger: pinger, logger: log.With(slog.String("handler", "ping"))}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
}

// Ping godoc
// @Summary Liveness and store check
// @Tags ops
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	if h.pinger != nil {
		if err := h.pinger.Ping(c.Request().Context()); err != nil {
			h.logger.Warn("store ping failed", slog.Any("error", err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
