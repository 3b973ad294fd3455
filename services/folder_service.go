package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskfolio/models"
	"taskfolio/utils"
)

type CreateFolderInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// UpdateFolderInput carries a partial update; nil fields are left alone.
type UpdateFolderInput struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	Color    *string `json:"color" validate:"omitempty,hexcolor"`
	IsPinned *bool   `json:"is_pinned"`
}

// ShareInput names the grantee by email or by user id.
type ShareInput struct {
	Email       string `json:"email" validate:"omitempty,mailbox"`
	UserID      uint   `json:"user_id"`
	AccessLevel string `json:"access_level"`
}

type FolderService struct {
	db     *gorm.DB
	locks  *keyedMutex
	notify notifier
	logger *logrus.Entry
}

func NewFolderService(db *gorm.DB, hub Broadcaster, logger *logrus.Entry) *FolderService {
	return &FolderService{
		db:     db,
		locks:  newKeyedMutex(),
		notify: notifier{hub: hub, logger: logger},
		logger: logger,
	}
}

// Create adds a folder owned by ownerID.
func (s *FolderService) Create(ctx context.Context, ownerID uint, in CreateFolderInput) (models.FolderView, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := utils.ValidateStruct(in); err != nil {
		return models.FolderView{}, err
	}
	if in.Color == "" {
		in.Color = models.DefaultFolderColor
	}

	folder := models.Folder{Name: in.Name, Color: in.Color, UserID: ownerID}
	db := s.db.WithContext(ctx)
	if err := db.Create(&folder).Error; err != nil {
		return models.FolderView{}, utils.Internal("create folder", err)
	}

	s.logger.WithFields(logrus.Fields{"folder_id": folder.ID, "user_id": ownerID}).Info("folder created")
	return folderView(db, folder, ownerID)
}

// ListMine returns the folders ownerID owns, pinned first, newest first.
func (s *FolderService) ListMine(ctx context.Context, ownerID uint) ([]models.FolderView, error) {
	db := s.db.WithContext(ctx)
	var folders []models.Folder
	if err := db.Where("user_id = ?", ownerID).
		Order("is_pinned DESC, created_at DESC, id DESC").
		Find(&folders).Error; err != nil {
		return nil, utils.Internal("list folders", err)
	}
	if err := attachShares(db, folders); err != nil {
		return nil, err
	}
	return folderViews(db, folders, ownerID)
}

// Get returns a folder to its owner.
func (s *FolderService) Get(ctx context.Context, ownerID, folderID uint) (models.FolderView, error) {
	db := s.db.WithContext(ctx)
	folder, err := findFolder(db, folderID, lockNone)
	if err != nil {
		return models.FolderView{}, err
	}
	if !folder.IsOwner(ownerID) {
		return models.FolderView{}, utils.Forbidden("Not authorized to access this folder")
	}
	return folderView(db, *folder, ownerID)
}

// Update changes name, color or pin state. Only the owner may do it.
func (s *FolderService) Update(ctx context.Context, ownerID, folderID uint, in UpdateFolderInput) (models.FolderView, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return models.FolderView{}, utils.InvalidArgument("Folder name cannot be empty")
		}
		in.Name = &name
	}
	if err := utils.ValidateStruct(in); err != nil {
		return models.FolderView{}, err
	}

	var view models.FolderView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := findFolder(tx, folderID, lockUpdate)
		if err != nil {
			return err
		}
		if !folder.IsOwner(ownerID) {
			return utils.Forbidden("Not authorized to update this folder")
		}

		if in.Name != nil {
			folder.Name = *in.Name
		}
		if in.Color != nil && *in.Color != "" {
			folder.Color = *in.Color
		}
		if in.IsPinned != nil {
			folder.IsPinned = *in.IsPinned
		}
		folder.UpdatedAt = time.Now()
		if err := tx.Model(&models.Folder{ID: folder.ID}).Updates(map[string]interface{}{
			"name":       folder.Name,
			"color":      folder.Color,
			"is_pinned":  folder.IsPinned,
			"updated_at": folder.UpdatedAt,
		}).Error; err != nil {
			return utils.Internal("update folder", err)
		}

		view, err = folderView(tx, *folder, ownerID)
		return err
	})
	return view, err
}

// Delete removes a folder with its tasks and shares, then closes the
// folder's realtime channel.
func (s *FolderService) Delete(ctx context.Context, ownerID, folderID uint) error {
	unlock := s.locks.Lock(folderID)
	defer unlock()

	var removedTasks int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := findFolder(tx, folderID, lockUpdate)
		if err != nil {
			return err
		}
		if !folder.IsOwner(ownerID) {
			return utils.Forbidden("Not authorized to delete this folder")
		}

		res := tx.Where("folder_id = ?", folderID).Delete(&models.Task{})
		if res.Error != nil {
			return utils.Internal("delete folder tasks", res.Error)
		}
		removedTasks = res.RowsAffected
		if err := tx.Where("folder_id = ?", folderID).Delete(&models.FolderShare{}).Error; err != nil {
			return utils.Internal("delete folder shares", err)
		}
		if err := tx.Delete(&models.Folder{}, folderID).Error; err != nil {
			return utils.Internal("delete folder", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify.closeFolder(folderID)
	s.logger.WithFields(logrus.Fields{
		"folder_id": folderID,
		"user_id":   ownerID,
		"tasks":     removedTasks,
	}).Info("folder deleted")
	return nil
}

// Share grants a user view or edit access. Grants on one folder are
// serialized so the grantee list never holds the same user twice.
func (s *FolderService) Share(ctx context.Context, ownerID, folderID uint, in ShareInput) (models.FolderView, error) {
	in.Email = models.NormalizeEmail(in.Email)
	if in.Email == "" && in.UserID == 0 {
		return models.FolderView{}, utils.InvalidArgument("Email is required")
	}
	if err := utils.ValidateStruct(in); err != nil {
		return models.FolderView{}, err
	}
	level := models.ParseAccessLevel(in.AccessLevel)

	unlock := s.locks.Lock(folderID)
	defer unlock()

	var (
		view    models.FolderView
		grantee models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := findFolder(tx, folderID, lockUpdate)
		if err != nil {
			return err
		}
		if !folder.IsOwner(ownerID) {
			return utils.Forbidden("Not authorized to share this folder")
		}

		grantee, err = findGrantee(tx, in)
		if err != nil {
			return err
		}
		if grantee.ID == ownerID {
			return utils.InvalidArgument("Cannot share with yourself")
		}
		if _, ok := folder.Grant(grantee.ID); ok {
			return utils.Conflict("Folder already shared with this user")
		}

		share := models.FolderShare{
			FolderID:    folder.ID,
			UserID:      grantee.ID,
			AccessLevel: level,
			SharedAt:    time.Now(),
		}
		if err := tx.Create(&share).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.Conflict("Folder already shared with this user")
			}
			return utils.Internal("create folder share", err)
		}
		folder.SharedWith = append(folder.SharedWith, share)
		if err := touchFolder(tx, folder); err != nil {
			return err
		}

		view, err = folderView(tx, *folder, ownerID)
		return err
	})
	if err != nil {
		return models.FolderView{}, err
	}

	utils.LogEvent("folder_shared", map[string]interface{}{
		"folder_id":    folderID,
		"owner_id":     ownerID,
		"grantee_id":   grantee.ID,
		"access_level": level,
	})
	return view, nil
}

func findGrantee(tx *gorm.DB, in ShareInput) (models.User, error) {
	var user models.User
	q := tx
	if in.UserID != 0 {
		q = q.Where("id = ?", in.UserID)
	} else {
		q = q.Where("email = ?", in.Email)
	}
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, utils.NotFound("User not found")
		}
		return models.User{}, utils.Internal("load grantee", err)
	}
	return user, nil
}

// Revoke removes granteeID from the folder. Revoking a user who holds no
// grant succeeds without changes. Live sessions of the grantee are evicted
// from the folder channel.
func (s *FolderService) Revoke(ctx context.Context, ownerID, folderID, granteeID uint) (models.FolderView, error) {
	unlock := s.locks.Lock(folderID)
	defer unlock()

	var (
		view    models.FolderView
		revoked bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := findFolder(tx, folderID, lockUpdate)
		if err != nil {
			return err
		}
		if !folder.IsOwner(ownerID) {
			return utils.Forbidden("Not authorized to modify sharing for this folder")
		}

		if _, ok := folder.Grant(granteeID); ok {
			if err := tx.Where("folder_id = ? AND user_id = ?", folderID, granteeID).
				Delete(&models.FolderShare{}).Error; err != nil {
				return utils.Internal("delete folder share", err)
			}
			kept := folder.SharedWith[:0]
			for _, sh := range folder.SharedWith {
				if sh.UserID != granteeID {
					kept = append(kept, sh)
				}
			}
			folder.SharedWith = kept
			if err := touchFolder(tx, folder); err != nil {
				return err
			}
			revoked = true
		}

		view, err = folderView(tx, *folder, ownerID)
		return err
	})
	if err != nil {
		return models.FolderView{}, err
	}

	if revoked {
		s.notify.evict(folderID, granteeID)
		utils.LogEvent("folder_unshared", map[string]interface{}{
			"folder_id":  folderID,
			"owner_id":   ownerID,
			"grantee_id": granteeID,
		})
	}
	return view, nil
}

// ListSharedWithMe returns folders other users have shared with userID.
func (s *FolderService) ListSharedWithMe(ctx context.Context, userID uint) ([]models.FolderView, error) {
	db := s.db.WithContext(ctx)
	var folders []models.Folder
	if err := db.Where("id IN (?)", db.Model(&models.FolderShare{}).Select("folder_id").Where("user_id = ?", userID)).
		Order("is_pinned DESC, created_at DESC, id DESC").
		Find(&folders).Error; err != nil {
		return nil, utils.Internal("list shared folders", err)
	}
	if err := attachShares(db, folders); err != nil {
		return nil, err
	}
	return folderViews(db, folders, userID)
}

// GetSharedDetail returns a folder to its owner or any grantee.
func (s *FolderService) GetSharedDetail(ctx context.Context, userID, folderID uint) (models.FolderView, error) {
	db := s.db.WithContext(ctx)
	folder, err := findFolder(db, folderID, lockNone)
	if err != nil {
		return models.FolderView{}, err
	}
	if !folder.CanRead(userID) {
		return models.FolderView{}, utils.Forbidden("Not authorized to access this folder")
	}
	return folderView(db, *folder, userID)
}

// ListVisible returns every folder userID can read: owned ones first, then
// those shared with them.
func (s *FolderService) ListVisible(ctx context.Context, userID uint) ([]models.FolderView, error) {
	owned, err := s.ListMine(ctx, userID)
	if err != nil {
		return nil, err
	}
	shared, err := s.ListSharedWithMe(ctx, userID)
	if err != nil {
		return nil, err
	}
	return append(owned, shared...), nil
}

func touchFolder(tx *gorm.DB, folder *models.Folder) error {
	folder.UpdatedAt = time.Now()
	if err := tx.Model(&models.Folder{ID: folder.ID}).Update("updated_at", folder.UpdatedAt).Error; err != nil {
		return utils.Internal("touch folder", err)
	}
	return nil
}
