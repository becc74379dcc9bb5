package web

import (
	"github.com/gofiber/fiber/v2"
)

// handleStatus returns the current narrator state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

// handleGetAnnouncements returns the recent announcements, oldest first.
// ?limit=n returns only the last n.
func (s *Server) handleGetAnnouncements(c *fiber.Ctx) error {
	s.announcementsMu.RLock()
	defer s.announcementsMu.RUnlock()

	out := s.announcements
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return c.JSON(out)
}

// handleGetLogs returns recent log entries.
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleHealth reports liveness and connected clients.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"camera_clients": s.cameraHub.ClientCount(),
		"status_clients": s.statusHub.ClientCount(),
	})
}
