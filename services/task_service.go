package services

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"taskfolio/models"
	"taskfolio/realtime"
	"taskfolio/utils"
)

type CreateTaskInput struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	FolderID    uint                `json:"folder_id"`
	Priority    string              `json:"priority"`
	DueDate     models.NullableTime `json:"due_date"`
}

// TaskPatch is a partial update. DueDate tells an omitted field apart from
// an explicit null, which clears the date.
type TaskPatch struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Priority    *string             `json:"priority"`
	Completed   *bool               `json:"completed"`
	DueDate     models.NullableTime `json:"due_date"`
	FolderID    *uint               `json:"folder_id"`
}

// UserTasks pairs a user with their pending tasks for reminder delivery.
type UserTasks struct {
	User  models.User
	Tasks []models.Task
}

type TaskService struct {
	db     *gorm.DB
	notify notifier
	logger *logrus.Entry
}

func NewTaskService(db *gorm.DB, hub Broadcaster, logger *logrus.Entry) *TaskService {
	return &TaskService{
		db:     db,
		notify: notifier{hub: hub, logger: logger},
		logger: logger,
	}
}

// List returns tasks in folderID when the actor can read it, or the actor's
// own tasks when folderID is nil.
func (s *TaskService) List(ctx context.Context, actorID uint, folderID *uint) ([]models.Task, error) {
	db := s.db.WithContext(ctx)
	q := db.Order("id ASC")
	if folderID != nil {
		folder, err := findFolder(db, *folderID, lockNone)
		if err != nil {
			return nil, err
		}
		if !folder.CanRead(actorID) {
			return nil, utils.Forbidden("Not authorized to access this folder")
		}
		q = q.Where("folder_id = ?", folder.ID)
	} else {
		q = q.Where("user_id = ?", actorID)
	}

	var tasks []models.Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, utils.Internal("list tasks", err)
	}
	models.SortTasks(tasks)
	return tasks, nil
}

// ListVisible returns every task the actor can see: tasks in folders they
// own or were granted, plus tasks they created elsewhere.
func (s *TaskService) ListVisible(ctx context.Context, actorID uint) ([]models.Task, error) {
	db := s.db.WithContext(ctx)
	owned := db.Model(&models.Folder{}).Select("id").Where("user_id = ?", actorID)
	shared := db.Model(&models.FolderShare{}).Select("folder_id").Where("user_id = ?", actorID)

	var tasks []models.Task
	if err := db.Where("folder_id IN (?) OR folder_id IN (?) OR user_id = ?", owned, shared, actorID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, utils.Internal("list visible tasks", err)
	}
	models.SortTasks(tasks)
	return tasks, nil
}

// Get returns a task to its creator or to anyone who can read its folder.
func (s *TaskService) Get(ctx context.Context, actorID, taskID uint) (models.Task, error) {
	db := s.db.WithContext(ctx)
	task, err := findTask(db, taskID, false)
	if err != nil {
		return models.Task{}, err
	}
	folder, err := findFolder(db, task.FolderID, lockNone)
	if err != nil {
		return models.Task{}, err
	}
	if task.UserID != actorID && !folder.CanRead(actorID) {
		return models.Task{}, utils.Forbidden("Not authorized to access this task")
	}
	return *task, nil
}

// Create adds a task to a folder the actor can write to and publishes it to
// the folder channel.
func (s *TaskService) Create(ctx context.Context, actorID uint, in CreateTaskInput) (models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" || in.FolderID == 0 {
		return models.Task{}, utils.InvalidArgument("Title and folder ID are required")
	}
	priority, err := parsePriority(in.Priority)
	if err != nil {
		return models.Task{}, err
	}

	task := models.Task{
		Title:       in.Title,
		Description: in.Description,
		UserID:      actorID,
		FolderID:    in.FolderID,
		Priority:    priority,
		DueDate:     in.DueDate.Value,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := findFolder(tx, in.FolderID, lockShare)
		if err != nil {
			return err
		}
		if !folder.CanWrite(actorID) {
			return utils.Forbidden("Not authorized to add tasks to this folder")
		}
		if err := tx.Create(&task).Error; err != nil {
			return utils.Internal("create task", err)
		}
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	s.notify.publish(task.FolderID, realtime.Created(task))
	s.logger.WithFields(logrus.Fields{"task_id": task.ID, "folder_id": task.FolderID, "user_id": actorID}).Info("task created")
	return task, nil
}

// Update applies a patch. The creator or anyone with write access to the
// task's folder may update it; moving it also requires write access to the
// destination folder.
func (s *TaskService) Update(ctx context.Context, actorID, taskID uint, patch TaskPatch) (models.Task, error) {
	var (
		task     *models.Task
		fromID   uint
		priority models.Priority
	)
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return models.Task{}, utils.InvalidArgument("Title cannot be empty")
		}
		patch.Title = &title
	}
	if patch.Priority != nil {
		p, err := parsePriority(*patch.Priority)
		if err != nil {
			return models.Task{}, err
		}
		priority = p
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		task, err = findTask(tx, taskID, true)
		if err != nil {
			return err
		}
		folder, err := findFolder(tx, task.FolderID, lockShare)
		if err != nil {
			return err
		}
		if task.UserID != actorID && !folder.CanWrite(actorID) {
			return utils.Forbidden("Not authorized to update this task")
		}
		fromID = task.FolderID

		if patch.FolderID != nil && *patch.FolderID != task.FolderID {
			dest, err := findFolder(tx, *patch.FolderID, lockShare)
			if err != nil {
				return err
			}
			if !dest.CanWrite(actorID) {
				return utils.Forbidden("Not authorized to move task to this folder")
			}
			task.FolderID = dest.ID
		}
		if patch.Title != nil {
			task.Title = *patch.Title
		}
		if patch.Description != nil {
			task.Description = *patch.Description
		}
		if patch.Priority != nil {
			task.Priority = priority
		}
		if patch.Completed != nil {
			task.Completed = *patch.Completed
		}
		if patch.DueDate.Set {
			task.DueDate = patch.DueDate.Value
		}

		if err := tx.Save(task).Error; err != nil {
			return utils.Internal("save task", err)
		}
		return nil
	})
	if err != nil {
		return models.Task{}, err
	}

	if task.FolderID != fromID {
		s.notify.publish(fromID, realtime.Deleted(task.ID))
	}
	s.notify.publish(task.FolderID, realtime.Updated(*task))
	return *task, nil
}

// Delete removes a task. The creator or anyone with write access to the
// folder may delete it.
func (s *TaskService) Delete(ctx context.Context, actorID, taskID uint) error {
	var folderID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := findTask(tx, taskID, true)
		if err != nil {
			return err
		}
		folder, err := findFolder(tx, task.FolderID, lockShare)
		if err != nil {
			return err
		}
		if task.UserID != actorID && !folder.CanWrite(actorID) {
			return utils.Forbidden("Not authorized to delete this task")
		}
		if err := tx.Delete(&models.Task{}, task.ID).Error; err != nil {
			return utils.Internal("delete task", err)
		}
		folderID = task.FolderID
		return nil
	})
	if err != nil {
		return err
	}

	s.notify.publish(folderID, realtime.Deleted(taskID))
	s.logger.WithFields(logrus.Fields{"task_id": taskID, "folder_id": folderID, "user_id": actorID}).Info("task deleted")
	return nil
}

// PendingByUser groups every incomplete task under its creator. Users with
// no pending tasks are absent from the result.
func (s *TaskService) PendingByUser(ctx context.Context) ([]UserTasks, error) {
	db := s.db.WithContext(ctx)
	var tasks []models.Task
	if err := db.Where("completed = ?", false).Order("user_id ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, utils.Internal("load pending tasks", err)
	}

	var ids []uint
	grouped := make(map[uint][]models.Task)
	for _, t := range tasks {
		if _, ok := grouped[t.UserID]; !ok {
			ids = append(ids, t.UserID)
		}
		grouped[t.UserID] = append(grouped[t.UserID], t)
	}
	users, err := loadUsers(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]UserTasks, 0, len(ids))
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			continue
		}
		pending := grouped[id]
		models.SortTasks(pending)
		out = append(out, UserTasks{User: u, Tasks: pending})
	}
	return out, nil
}

func findTask(tx *gorm.DB, id uint, forUpdate bool) (*models.Task, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var task models.Task
	if err := q.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("Task not found")
		}
		return nil, utils.Internal("load task", err)
	}
	return &task, nil
}

// parsePriority defaults an empty value to medium.
func parsePriority(s string) (models.Priority, error) {
	if s == "" {
		return models.PriorityMedium, nil
	}
	p := models.Priority(strings.ToLower(s))
	if !p.Valid() {
		return "", utils.InvalidArgument("Priority must be one of low, medium, high")
	}
	return p, nil
}
