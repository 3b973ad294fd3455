package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskfolio/middleware"
	"taskfolio/services"
	"taskfolio/utils"
)

type FolderController struct {
	Folders *services.FolderService
	Logger  *logrus.Entry
}

func NewFolderController(folders *services.FolderService, logger *logrus.Entry) *FolderController {
	return &FolderController{Folders: folders, Logger: logger}
}

func (fc *FolderController) CreateFolder(c *fiber.Ctx) error {
	var input services.CreateFolderInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	folder, err := fc.Folders.Create(c.UserContext(), middleware.CurrentUser(c).ID, input)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(folder)
}

// GetFolders lists the caller's own folders, or every readable folder with
// ?scope=visible.
func (fc *FolderController) GetFolders(c *fiber.Ctx) error {
	userID := middleware.CurrentUser(c).ID
	list := fc.Folders.ListMine
	if c.Query("scope") == "visible" {
		list = fc.Folders.ListVisible
	}

	folders, err := list(c.UserContext(), userID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folders)
}

func (fc *FolderController) GetFolder(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	folder, err := fc.Folders.Get(c.UserContext(), middleware.CurrentUser(c).ID, id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folder)
}

func (fc *FolderController) UpdateFolder(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	var input services.UpdateFolderInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	folder, err := fc.Folders.Update(c.UserContext(), middleware.CurrentUser(c).ID, id, input)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folder)
}

func (fc *FolderController) DeleteFolder(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	if err := fc.Folders.Delete(c.UserContext(), middleware.CurrentUser(c).ID, id); err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"message": "Folder and all its tasks deleted successfully"})
}

func (fc *FolderController) ShareFolder(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	var input services.ShareInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	folder, err := fc.Folders.Share(c.UserContext(), middleware.CurrentUser(c).ID, id, input)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folder)
}

func (fc *FolderController) RemoveShare(c *fiber.Ctx) error {
	folderID, err := utils.ParamID(c, "folderId")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	userID, err := utils.ParamID(c, "userId")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	folder, err := fc.Folders.Revoke(c.UserContext(), middleware.CurrentUser(c).ID, folderID, userID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folder)
}

func (fc *FolderController) GetSharedFolders(c *fiber.Ctx) error {
	folders, err := fc.Folders.ListSharedWithMe(c.UserContext(), middleware.CurrentUser(c).ID)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folders)
}

func (fc *FolderController) GetSharedFolder(c *fiber.Ctx) error {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		return utils.ErrorResponse(c, err)
	}

	folder, err := fc.Folders.GetSharedDetail(c.UserContext(), middleware.CurrentUser(c).ID, id)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(folder)
}
