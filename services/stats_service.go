package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"taskfolio/models"
	"taskfolio/utils"
)

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type WeekCount struct {
	Week  string `json:"week"`
	Count int    `json:"count"`
}

type PersonalStats struct {
	DailyCompletions      []DayCount  `json:"daily_completions"`
	WeeklyCompletions     []WeekCount `json:"weekly_completions"`
	TotalCompleted        int         `json:"total_completed"`
	AverageCompletionTime string      `json:"average_completion_time"`
	MostProductiveDay     *DayCount   `json:"most_productive_day"`
}

type FolderInsight struct {
	FolderID       uint   `json:"folder_id"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
	CompletionRate int    `json:"completion_rate"`
	OverdueTasks   int    `json:"overdue_tasks"`
}

// StatsService derives productivity figures from completed tasks. A task's
// completion time is taken from its last update.
type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// Personal summarizes userID's completed tasks relative to now: the last 7
// days, the last 4 weeks starting Monday, the average time from creation to
// completion and the busiest day in the last 30 days.
func (s *StatsService) Personal(ctx context.Context, userID uint, now time.Time) (PersonalStats, error) {
	var done []models.Task
	if err := s.db.WithContext(ctx).
		Select("id", "created_at", "updated_at").
		Where("user_id = ? AND completed = ?", userID, true).
		Order("updated_at ASC").
		Find(&done).Error; err != nil {
		return PersonalStats{}, utils.Internal("load completed tasks", err)
	}

	loc := now.Location()
	today := midnight(now)
	perDay := make(map[string]int)
	var total time.Duration
	for _, t := range done {
		perDay[t.UpdatedAt.In(loc).Format(time.DateOnly)]++
		total += t.UpdatedAt.Sub(t.CreatedAt)
	}

	stats := PersonalStats{
		DailyCompletions:  make([]DayCount, 0, 7),
		WeeklyCompletions: make([]WeekCount, 0, 4),
		TotalCompleted:    len(done),
	}

	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(time.DateOnly)
		stats.DailyCompletions = append(stats.DailyCompletions, DayCount{Date: day, Count: perDay[day]})
	}

	for i := 3; i >= 0; i-- {
		start := weekStart(today.AddDate(0, 0, -7*i))
		end := start.AddDate(0, 0, 7)
		count := 0
		for _, t := range done {
			at := t.UpdatedAt.In(loc)
			if !at.Before(start) && at.Before(end) {
				count++
			}
		}
		stats.WeeklyCompletions = append(stats.WeeklyCompletions, WeekCount{Week: start.Format(time.DateOnly), Count: count})
	}

	if len(done) > 0 {
		stats.AverageCompletionTime = formatDuration(total / time.Duration(len(done)))
	} else {
		stats.AverageCompletionTime = formatDuration(0)
	}

	// Ties go to the earliest day.
	for i := 29; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(time.DateOnly)
		if n := perDay[day]; n > 0 && (stats.MostProductiveDay == nil || n > stats.MostProductiveDay.Count) {
			stats.MostProductiveDay = &DayCount{Date: day, Count: n}
		}
	}
	return stats, nil
}

// FolderInsights reports progress for each folder ownerID owns. A task is
// overdue when it is incomplete and due before tomorrow.
func (s *StatsService) FolderInsights(ctx context.Context, ownerID uint, now time.Time) ([]FolderInsight, error) {
	db := s.db.WithContext(ctx)
	var folders []models.Folder
	if err := db.Where("user_id = ?", ownerID).Order("is_pinned DESC, created_at DESC, id DESC").Find(&folders).Error; err != nil {
		return nil, utils.Internal("load folders", err)
	}
	if len(folders) == 0 {
		return []FolderInsight{}, nil
	}

	ids := make([]uint, len(folders))
	for i, f := range folders {
		ids[i] = f.ID
	}
	var tasks []models.Task
	if err := db.Select("id", "folder_id", "completed", "due_date").Where("folder_id IN ?", ids).Find(&tasks).Error; err != nil {
		return nil, utils.Internal("load folder tasks", err)
	}

	tomorrow := midnight(now).AddDate(0, 0, 1)
	byFolder := make(map[uint]*FolderInsight, len(folders))
	out := make([]FolderInsight, len(folders))
	for i, f := range folders {
		out[i] = FolderInsight{FolderID: f.ID, Name: f.Name, Color: f.Color}
		byFolder[f.ID] = &out[i]
	}
	for _, t := range tasks {
		in := byFolder[t.FolderID]
		in.TotalTasks++
		if t.Completed {
			in.CompletedTasks++
		} else if t.DueDate != nil && t.DueDate.Before(tomorrow) {
			in.OverdueTasks++
		}
	}
	for i := range out {
		if out[i].TotalTasks > 0 {
			out[i].CompletionRate = int(math.Round(float64(out[i].CompletedTasks) / float64(out[i].TotalTasks) * 100))
		}
	}
	return out, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// weekStart returns the Monday on or before day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return midnight(day).AddDate(0, 0, -offset)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%dh %dm %ds", h, m, sec)
}
