package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/DragosMatei/KeyGate/internal/pkg/jobqueue"
)

// HandleQueueStats reports the background queue's depth and per-status
// counters so operators can spot a stalled audit pipeline.
func HandleQueueStats(c *fiber.Ctx) error {
	queue := jobqueue.GetManager().GetQueue()
	ctx := c.UserContext()

	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		return internalError(c, "Failed to read queue stats.")
	}
	pending, err := queue.GetQueueSize(ctx)
	if err != nil {
		return internalError(c, "Failed to read queue size.")
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		return internalError(c, "Failed to read processing size.")
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"stats":      stats,
	})
}
