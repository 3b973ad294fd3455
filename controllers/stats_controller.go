package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"taskfolio/middleware"
	"taskfolio/services"
	"taskfolio/utils"
)

type StatsController struct {
	Stats *services.StatsService
	Now   func() time.Time
}

func NewStatsController(stats *services.StatsService) *StatsController {
	return &StatsController{Stats: stats, Now: time.Now}
}

func (sc *StatsController) GetPersonalStats(c *fiber.Ctx) error {
	stats, err := sc.Stats.Personal(c.UserContext(), middleware.CurrentUser(c).ID, sc.Now())
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(stats)
}

func (sc *StatsController) GetFolderInsights(c *fiber.Ctx) error {
	insights, err := sc.Stats.FolderInsights(c.UserContext(), middleware.CurrentUser(c).ID, sc.Now())
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(insights)
}
