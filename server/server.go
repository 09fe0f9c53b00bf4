// Package server exposes crawl status, recent recommendations and metrics over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/aluiziolira/go-scrape-discogs/scraper"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProgressSource reports the state of the running crawl.
type ProgressSource interface {
	Progress() scraper.Progress
}

// EventSource yields the most recent recommendations, oldest first.
type EventSource interface {
	Recent() []models.EnrichedListing
}

// Server serves the status routes on addr.
type Server struct {
	app  *fiber.App
	addr string
}

// New builds the status app. gatherer may be nil to disable /metrics.
func New(addr string, progress ProgressSource, events EventSource, gatherer prometheus.Gatherer) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				slog.Error("status request failed",
					slog.String("path", c.Path()),
					slog.Any("error", err),
				)
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(progress.Progress())
	})

	app.Get("/events", func(c *fiber.Ctx) error {
		events := events.Recent()
		if limit := c.QueryInt("limit", 0); limit < 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be positive")
		} else if limit > 0 && limit < len(events) {
			events = events[len(events)-limit:]
		}
		return c.JSON(fiber.Map{
			"run_id": progress.Progress().RunID,
			"count":  len(events),
			"events": events,
		})
	})

	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{app: app, addr: addr}
}

// App exposes the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("status server listening", slog.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown stops the listener and waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
