package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/postpilot/autopilot/internal/queue"
	"github.com/postpilot/autopilot/internal/service"
	"github.com/postpilot/autopilot/internal/transfer"
)

const maxBulkCount = 20

type AutoPilotHandler struct {
	in          service.IngestionService
	AsynqClient *asynq.Client
}

func NewAutoPilotHandler(in service.IngestionService, asynqClient *asynq.Client) *AutoPilotHandler {
	return &AutoPilotHandler{in: in, AsynqClient: asynqClient}
}

// DiscoverMedia registers one synced file and queues it for analysis.
func (h *AutoPilotHandler) DiscoverMedia(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.MediaDiscovery
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	uploadedAt := time.Now()
	if req.UploadedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.UploadedAt)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "uploaded_at must be RFC3339",
			})
		}
		uploadedAt = parsed
	}

	itemID, err := h.in.Discover(c.Context(), userID, req.SourceURI, req.FileSize, uploadedAt)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := queue.EnqueueAnalyze(h.AsynqClient, queue.AnalyzeMediaPayload{MediaItemID: itemID}); err != nil {
		slog.Info(err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"media_item_id": itemID})
}

// BulkGenerate queues on-demand topic generation.
func (h *AutoPilotHandler) BulkGenerate(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.BulkGeneration
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	if req.Count <= 0 || req.Count > maxBulkCount {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "count must be between 1 and 20",
		})
	}
	if len(req.Topics) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "at least one topic is required",
		})
	}

	autoSchedule := req.AutoSchedule
	queued := 0
	for i := 0; i < req.Count; i++ {
		payload := queue.GeneratePostPayload{
			UserID:              userID,
			Topic:               req.Topics[i%len(req.Topics)],
			ImageCount:          req.ImageCount,
			ConfidenceThreshold: req.ConfidenceThreshold,
			AutoSchedule:        &autoSchedule,
		}
		if err := queue.EnqueueGenerate(h.AsynqClient, payload, 0); err != nil {
			slog.Info(err.Error())
			continue
		}
		queued++
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"queued": queued})
}
