package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"taskfolio/models"
	"taskfolio/realtime"
	"taskfolio/utils"
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required,min=6"`
}

type UpdateProfileInput struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" validate:"omitempty,mailbox"`
}

var errInvalidCredentials = utils.Unauthorized("Invalid credentials")

type AccountService struct {
	db     *gorm.DB
	notify notifier
	logger *logrus.Entry
}

func NewAccountService(db *gorm.DB, hub Broadcaster, logger *logrus.Entry) *AccountService {
	return &AccountService{
		db:     db,
		notify: notifier{hub: hub, logger: logger},
		logger: logger,
	}
}

// Register creates an account. Email and username are unique.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = models.NormalizeEmail(in.Email)
	if err := utils.ValidateStruct(in); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, utils.Internal("hash password", err)
	}

	user := models.User{Username: in.Username, Email: in.Email, PasswordHash: string(hash)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).
			Where("email = ? OR username = ?", in.Email, in.Username).
			Count(&count).Error; err != nil {
			return utils.Internal("check existing user", err)
		}
		if count > 0 {
			return utils.Conflict("User already exists")
		}
		if err := tx.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.Conflict("User already exists")
			}
			return utils.Internal("create user", err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, err
	}

	utils.LogEvent("user_registered", map[string]interface{}{"user_id": user.ID})
	return user, nil
}

// Authenticate checks an email/password pair. Unknown emails and wrong
// passwords produce the same error.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, errInvalidCredentials
	}
	if err != nil {
		return models.User{}, utils.Internal("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return models.User{}, errInvalidCredentials
	}
	return user, nil
}

func (s *AccountService) Get(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, utils.NotFound("User not found")
		}
		return models.User{}, utils.Internal("load user", err)
	}
	return user, nil
}

// UpdateProfile changes username and/or email, keeping both unique.
func (s *AccountService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (models.User, error) {
	if in.Username != nil {
		v := strings.TrimSpace(*in.Username)
		in.Username = &v
	}
	if in.Email != nil {
		v := models.NormalizeEmail(*in.Email)
		in.Email = &v
	}
	if err := utils.ValidateStruct(in); err != nil {
		return models.User{}, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("User not found")
			}
			return utils.Internal("load user", err)
		}

		if in.Username != nil && *in.Username != "" && *in.Username != user.Username {
			if taken, err := exists(tx, "username = ? AND id <> ?", *in.Username, userID); err != nil {
				return err
			} else if taken {
				return utils.Conflict("Username already taken")
			}
			user.Username = *in.Username
		}
		if in.Email != nil && *in.Email != "" && *in.Email != user.Email {
			if taken, err := exists(tx, "email = ? AND id <> ?", *in.Email, userID); err != nil {
				return err
			} else if taken {
				return utils.Conflict("Email already in use")
			}
			user.Email = *in.Email
		}

		if err := tx.Save(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return utils.Conflict("Username or email already in use")
			}
			return utils.Internal("save user", err)
		}
		return nil
	})
	return user, err
}

func exists(tx *gorm.DB, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := tx.Model(&models.User{}).Where(query, args...).Count(&count).Error; err != nil {
		return false, utils.Internal("check user uniqueness", err)
	}
	return count > 0, nil
}

// ChangePassword replaces the password and bumps the token version, which
// invalidates every token issued before.
func (s *AccountService) ChangePassword(ctx context.Context, userID uint, current, next string) (models.User, error) {
	if len(next) < 6 {
		return models.User{}, utils.InvalidArgument("Password must be at least 6 characters")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("User not found")
			}
			return utils.Internal("load user", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
			return utils.Unauthorized("Current password is incorrect")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
		if err != nil {
			return utils.Internal("hash password", err)
		}
		user.PasswordHash = string(hash)
		user.TokenVersion++
		if err := tx.Save(&user).Error; err != nil {
			return utils.Internal("save user", err)
		}
		return nil
	})
	return user, err
}

// DeleteAccount removes the user with everything they own: tasks they
// created or that live in their folders, shares on their folders and grants
// to them, then their folders and the account itself.
func (s *AccountService) DeleteAccount(ctx context.Context, userID uint) error {
	var (
		ownedIDs   []uint
		grantedIDs []uint
		foreign    []models.Task
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("User not found")
			}
			return utils.Internal("load user", err)
		}

		if err := tx.Model(&models.Folder{}).Where("user_id = ?", userID).Pluck("id", &ownedIDs).Error; err != nil {
			return utils.Internal("load owned folders", err)
		}
		if err := tx.Model(&models.FolderShare{}).Where("user_id = ?", userID).Pluck("folder_id", &grantedIDs).Error; err != nil {
			return utils.Internal("load granted folders", err)
		}

		// Tasks the user created in folders someone else owns.
		q := tx.Where("user_id = ?", userID)
		if len(ownedIDs) > 0 {
			q = q.Where("folder_id NOT IN ?", ownedIDs)
		}
		if err := q.Find(&foreign).Error; err != nil {
			return utils.Internal("load foreign tasks", err)
		}

		tasks := tx.Where("user_id = ?", userID)
		shares := tx.Where("user_id = ?", userID)
		if len(ownedIDs) > 0 {
			tasks = tasks.Or("folder_id IN ?", ownedIDs)
			shares = shares.Or("folder_id IN ?", ownedIDs)
		}
		if err := tasks.Delete(&models.Task{}).Error; err != nil {
			return utils.Internal("delete tasks", err)
		}
		if err := shares.Delete(&models.FolderShare{}).Error; err != nil {
			return utils.Internal("delete shares", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.Folder{}).Error; err != nil {
			return utils.Internal("delete folders", err)
		}
		if err := tx.Delete(&models.User{}, userID).Error; err != nil {
			return utils.Internal("delete user", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range ownedIDs {
		s.notify.closeFolder(id)
	}
	for _, id := range grantedIDs {
		s.notify.evict(id, userID)
	}
	for _, t := range foreign {
		s.notify.publish(t.FolderID, realtime.Deleted(t.ID))
	}
	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"folders": len(ownedIDs),
	}).Info("account deleted")
	return nil
}
