package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spatialvcs/go-spatialvcs/pkg/scanstore"
	"github.com/spatialvcs/go-spatialvcs/pkg/tracking"
)

// handleRoot reports service health, the connected probes, and hub
// traffic stats.
func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":    "spatialvcs",
		"status":     "ok",
		"mode":       string(s.engine.Mode()),
		"probes":     s.probes.ProbeInfos(),
		"stats":      s.probes.GetStats(),
		"dashboards": s.dashboards.ClientCount(),
	})
}

// handleListScans lists all recorded scans.
func (s *Server) handleListScans(c *fiber.Ctx) error {
	scans, err := s.store.ListScans()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"scans": scans,
		"count": len(scans),
	})
}

// handleScanMemory returns a scan and its stored object set.
func (s *Server) handleScanMemory(c *fiber.Ctx) error {
	scanID := c.Params("scan_id")

	scan, err := s.store.GetScan(scanID)
	if err != nil {
		return scanError(c, scanID, err)
	}
	dets, err := s.store.Detections(scanID)
	if err != nil {
		return scanError(c, scanID, err)
	}

	return c.JSON(fiber.Map{
		"scan":    scan,
		"objects": dets,
	})
}

// handleScanReference returns the diff reference built from a scan,
// keyed by canonical label. Watch clients running a local engine use
// this to diff without holding server mode.
func (s *Server) handleScanReference(c *fiber.Ctx) error {
	scanID := c.Params("scan_id")

	ref, err := s.store.LoadReference(c.Context(), scanID)
	if err != nil {
		return scanError(c, scanID, err)
	}

	return c.JSON(fiber.Map{
		"scan_id":   scanID,
		"reference": ref,
	})
}

// LiveDiffRequest is the body for POST /spatial/livediff/start.
type LiveDiffRequest struct {
	ScanID     string  `json:"scan_id"`
	ThresholdM float64 `json:"threshold_m"`
}

// handleLiveDiffStart loads the reference scan and switches the engine
// to active diffing.
func (s *Server) handleLiveDiffStart(c *fiber.Ctx) error {
	var req LiveDiffRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ThresholdM == 0 {
		req.ThresholdM = tracking.DefaultThresholdMeters
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.engine.StartDiff(ctx, req.ScanID, req.ThresholdM)
	switch {
	case errors.Is(err, tracking.ErrNoScanSelected):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, scanstore.ErrScanNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, tracking.ErrStaleReference):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"mode":           string(s.engine.Mode()),
		"reference_scan": s.engine.ReferenceScan(),
	})
}

// handleLiveDiffStop switches the engine back to idle.
func (s *Server) handleLiveDiffStop(c *fiber.Ctx) error {
	s.engine.StopDiff()
	return c.JSON(fiber.Map{
		"mode": string(s.engine.Mode()),
	})
}

// handleLiveDiffStatus reports the current diff state.
func (s *Server) handleLiveDiffStatus(c *fiber.Ctx) error {
	resp := fiber.Map{
		"mode":           string(s.engine.Mode()),
		"reference_scan": s.engine.ReferenceScan(),
	}

	if result, ok := s.engine.LastResult(); ok {
		resp["summary"] = result.Summary
		resp["events"] = result.Events
	}
	if s.engine.Mode() == tracking.ModeActive {
		resp["trails"] = s.engine.Trajectories(time.Now())
	}

	return c.JSON(resp)
}

// scanError maps store errors onto HTTP statuses.
func scanError(c *fiber.Ctx, scanID string, err error) error {
	if errors.Is(err, scanstore.ErrScanNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "scan not found: " + scanID})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
