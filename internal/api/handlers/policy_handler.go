package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postpilot/autopilot/internal/service"
	"github.com/postpilot/autopilot/internal/transfer"
)

type PolicyHandler struct {
	s service.PolicyService
}

func NewPolicyHandler(service service.PolicyService) *PolicyHandler {
	return &PolicyHandler{s: service}
}

func (h *PolicyHandler) GetPolicy(c *fiber.Ctx) error {
	userId := GetUserID(c)

	policy, err := h.s.GetPolicy(c.Context(), userId)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to find policy for given user",
		})
	}

	return c.JSON(policy)
}

func (h *PolicyHandler) UpdatePolicy(c *fiber.Ctx) error {
	userId := GetUserID(c)

	var update transfer.PolicyUpdate
	err := c.BodyParser(&update)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse json",
		})
	}

	err = h.s.UpdatePolicy(c.Context(), userId, update)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
