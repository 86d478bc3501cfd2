package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postpilot/autopilot/internal/models"
	"github.com/postpilot/autopilot/internal/repository"
)

// MediaHandler exposes the ingestion, grouping and review views: every item
// and group with its current state and failure reason, and the posts waiting
// on a human.
type MediaHandler struct {
	mi repository.MediaItemRepository
	mg repository.MediaGroupRepository
	pr repository.PostRepository
}

func NewMediaHandler(mi repository.MediaItemRepository, mg repository.MediaGroupRepository, pr repository.PostRepository) *MediaHandler {
	return &MediaHandler{mi: mi, mg: mg, pr: pr}
}

func (h *MediaHandler) ListMedia(c *fiber.Ctx) error {
	userId := GetUserID(c)

	items, err := h.mi.ListByUserID(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list media items",
		})
	}

	return c.Status(fiber.StatusOK).JSON(items)
}

func (h *MediaHandler) ListGroups(c *fiber.Ctx) error {
	userId := GetUserID(c)
	status := c.Query("status", string(models.GroupStatusPending))

	groups, err := h.mg.ListByStatus(c.Context(), userId, models.MediaGroupStatus(status))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list media groups",
		})
	}

	return c.Status(fiber.StatusOK).JSON(groups)
}

func (h *MediaHandler) ListReviewPosts(c *fiber.Ctx) error {
	userId := GetUserID(c)

	posts, err := h.pr.ListByStatus(c.Context(), userId, models.PostStatusDraft, models.PostStatusPendingApproval)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}
