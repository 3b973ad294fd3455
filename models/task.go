package models

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work bound to exactly one folder. UserID is the creator,
// which differs from the folder owner when a shared editor adds the task.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	UserID      uint       `gorm:"not null;index" json:"user_id"`
	FolderID    uint       `gorm:"not null;index" json:"folder_id"`
	Priority    Priority   `gorm:"type:varchar(8);not null;default:'medium'" json:"priority"`
	Completed   bool       `gorm:"default:false;index" json:"completed"`
	DueDate     *time.Time `gorm:"index" json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SortTasks orders incomplete tasks before completed ones, then by due date
// ascending with undated tasks last. Ties fall back to id.
func SortTasks(tasks []Task) {
	slices.SortStableFunc(tasks, compareTasks)
}

func compareTasks(a, b Task) int {
	if a.Completed != b.Completed {
		if !a.Completed {
			return -1
		}
		return 1
	}
	switch {
	case a.DueDate == nil && b.DueDate != nil:
		return 1
	case a.DueDate != nil && b.DueDate == nil:
		return -1
	case a.DueDate != nil && b.DueDate != nil:
		if c := a.DueDate.Compare(*b.DueDate); c != 0 {
			return c
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// NullableTime distinguishes a JSON field that was omitted from one that was
// explicitly set to null. Set is true whenever the key was present.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *NullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		n.Value = nil
		return nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	n.Value = &t
	return nil
}

func (n NullableTime) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// SetTime returns a NullableTime carrying t (nil clears).
func SetTime(t *time.Time) NullableTime {
	return NullableTime{Set: true, Value: t}
}

// ParseDate accepts RFC 3339 timestamps and bare YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
