// Package services holds the domain operations behind the HTTP and
// websocket surfaces. Every check-then-write sequence runs inside one
// database transaction.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskfolio/models"
	"taskfolio/realtime"
	"taskfolio/utils"
)

// lockMode selects the row lock taken when loading a folder inside a
// transaction. SQLite ignores row locks; Postgres honours them.
type lockMode int

const (
	lockNone lockMode = iota
	// lockShare blocks a concurrent revoke or delete until commit.
	lockShare
	// lockUpdate serializes sharing changes on the folder.
	lockUpdate
)

// findFolder loads a folder with its share list in grant order.
func findFolder(tx *gorm.DB, id uint, mode lockMode) (*models.Folder, error) {
	q := tx
	switch mode {
	case lockShare:
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	case lockUpdate:
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var folder models.Folder
	if err := q.First(&folder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Folder not found")
		}
		return nil, utils.Internal("load folder", err)
	}
	if err := tx.Where("folder_id = ?", id).Order("shared_at ASC, id ASC").Find(&folder.SharedWith).Error; err != nil {
		return nil, utils.Internal("load folder shares", err)
	}
	return &folder, nil
}

// loadUsers fetches the users with the given ids keyed by id.
func loadUsers(tx *gorm.DB, ids []uint) (map[uint]models.User, error) {
	users := make(map[uint]models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	var rows []models.User
	if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, utils.Internal("load users", err)
	}
	for _, u := range rows {
		users[u.ID] = u
	}
	return users, nil
}

// folderViews resolves owner and grantee profiles for a batch of folders.
func folderViews(tx *gorm.DB, folders []models.Folder, viewerID uint) ([]models.FolderView, error) {
	seen := make(map[uint]struct{})
	var ids []uint
	add := func(id uint) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, f := range folders {
		add(f.UserID)
		for _, s := range f.SharedWith {
			add(s.UserID)
		}
	}

	users, err := loadUsers(tx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]models.FolderView, 0, len(folders))
	for _, f := range folders {
		views = append(views, models.NewFolderView(f, users, viewerID))
	}
	return views, nil
}

func folderView(tx *gorm.DB, folder models.Folder, viewerID uint) (models.FolderView, error) {
	views, err := folderViews(tx, []models.Folder{folder}, viewerID)
	if err != nil {
		return models.FolderView{}, err
	}
	return views[0], nil
}

// attachShares loads the share lists of several folders in one query.
func attachShares(tx *gorm.DB, folders []models.Folder) error {
	if len(folders) == 0 {
		return nil
	}
	ids := make([]uint, len(folders))
	for i, f := range folders {
		ids[i] = f.ID
	}
	var shares []models.FolderShare
	if err := tx.Where("folder_id IN ?", ids).Order("shared_at ASC, id ASC").Find(&shares).Error; err != nil {
		return utils.Internal("load folder shares", err)
	}
	byFolder := make(map[uint][]models.FolderShare, len(folders))
	for _, s := range shares {
		byFolder[s.FolderID] = append(byFolder[s.FolderID], s)
	}
	for i := range folders {
		folders[i].SharedWith = byFolder[folders[i].ID]
	}
	return nil
}

// Access answers read/write questions against the current share state.
type Access struct {
	db *gorm.DB
}

func NewAccess(db *gorm.DB) *Access {
	return &Access{db: db}
}

var _ realtime.AccessChecker = (*Access)(nil)

// CanReadFolder returns nil when userID is the owner or a grantee of the folder.
func (a *Access) CanReadFolder(ctx context.Context, userID, folderID uint) error {
	folder, err := findFolder(a.db.WithContext(ctx), folderID, lockNone)
	if err != nil {
		return err
	}
	if !folder.CanRead(userID) {
		return utils.Forbidden("Not authorized to access this folder")
	}
	return nil
}

// CanWriteFolder returns nil when userID is the owner or holds edit access.
func (a *Access) CanWriteFolder(ctx context.Context, userID, folderID uint) error {
	folder, err := findFolder(a.db.WithContext(ctx), folderID, lockNone)
	if err != nil {
		return err
	}
	if !folder.CanWrite(userID) {
		return utils.Forbidden("Not authorized to modify this folder")
	}
	return nil
}
