package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/queryviz/queryviz/internal/datafile"
	"github.com/queryviz/queryviz/internal/logger"
)

func (s *Server) healthHandler(c *fiber.Ctx) error {
	uptime := time.Since(s.startTime)
	return c.JSON(fiber.Map{
		"status":     "ok",
		"version":    s.version,
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     uptime.String(),
		"uptime_sec": uptime.Seconds(),
	})
}

func streamSummary(df *datafile.DataFile) fiber.Map {
	schedule := "once"
	if !df.Once() {
		schedule = df.Interval().String()
	}
	return fiber.Map{
		"name":        df.Name(),
		"description": df.Description(),
		"filename":    df.Filename(),
		"schedule":    schedule,
		"columns":     df.Columns(),
		"points":      df.PointCount(),
		"open":        df.IsOpen(),
		"exists":      df.Exists(),
	}
}

func (s *Server) streamsHandler(c *fiber.Ctx) error {
	var streams []fiber.Map
	for _, name := range s.files.Names() {
		streams = append(streams, streamSummary(s.files.Get(name)))
	}
	return c.JSON(fiber.Map{
		"count":   len(streams),
		"streams": streams,
	})
}

func (s *Server) streamHandler(c *fiber.Ctx) error {
	name := c.Params("name")
	df := s.files.Get(name)
	if df == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "stream not found",
		})
	}

	summary := streamSummary(df)
	summary["recent"] = df.Buffer()
	return c.JSON(summary)
}

func (s *Server) connectionsHandler(c *fiber.Ctx) error {
	statuses := s.manager.Statuses()
	connections := make([]fiber.Map, 0, len(statuses))
	for _, name := range s.manager.Names() {
		connections = append(connections, fiber.Map{
			"name":   name,
			"status": statuses[name],
		})
	}
	return c.JSON(fiber.Map{
		"count":       len(connections),
		"connections": connections,
	})
}

func (s *Server) chartsHandler(c *fiber.Ctx) error {
	charts := make([]fiber.Map, 0, len(s.generators))
	for _, g := range s.generators {
		charts = append(charts, fiber.Map{
			"title": g.Title(),
			"file":  g.OutputFile(),
			"url":   "/output/" + g.OutputFile(),
		})
	}
	return c.JSON(fiber.Map{
		"count":  len(charts),
		"charts": charts,
	})
}

func (s *Server) logsHandler(c *fiber.Ctx) error {
	limit := 100
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	level := c.Query("level")

	entries := logger.GetBuffer().Recent(limit)
	if entries == nil {
		entries = []logger.Entry{}
	}
	if level != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return c.JSON(fiber.Map{
		"count": len(entries),
		"limit": limit,
		"logs":  entries,
	})
}
