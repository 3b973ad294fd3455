package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskfolio/middleware"
	"taskfolio/services"
	"taskfolio/utils"
)

type TaskController struct {
	Tasks  *services.TaskService
	Logger *logrus.Entry
}

func NewTaskController(tasks *services.TaskService, logger *logrus.Entry) *TaskController {
	return &TaskController{Tasks: tasks, Logger: logger}
}

// GetTasks lists tasks in ?folder_id=, every visible task with
// ?scope=visible, or otherwise the caller's own tasks.
func (tc *TaskController) GetTasks(c *fiber.Ctx) error {
	userID := middleware.CurrentUser(c).ID
	ctx := c.UserContext()

	if c.Query("scope") == "visible" {
		tasks, err := tc.Tasks.ListVisible(ctx, userID)
		if err != nil {
			return utils.ErrorResponse(c, err)
		}
		return c.JSON(tasks)
	}

	var folderID *uint
	if raw := c.Query("folder_id"); raw != "" {
		id := utils.ParseUint(raw)
		if id == 0 {
			return utils.ErrorResponse(c, utils.InvalidArgument("Invalid folder ID"))
		}
		folderID = &id
	}

	tasks, err := tc.Tasks.List(ctx, userID, folderID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(tasks)
}

func (tc *TaskController) GetTask(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	task, err := tc.Tasks.Get(c.UserContext(), middleware.CurrentUser(c).ID, id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(task)
}

func (tc *TaskController) CreateTask(c *fiber.Ctx) error {
	var input services.CreateTaskInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	task, err := tc.Tasks.Create(c.UserContext(), middleware.CurrentUser(c).ID, input)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(task)
}

func (tc *TaskController) UpdateTask(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	var patch services.TaskPatch
	if err := c.BodyParser(&patch); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	task, err := tc.Tasks.Update(c.UserContext(), middleware.CurrentUser(c).ID, id, patch)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(task)
}

func (tc *TaskController) DeleteTask(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	if err := tc.Tasks.Delete(c.UserContext(), middleware.CurrentUser(c).ID, id); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "Task deleted successfully"})
}
