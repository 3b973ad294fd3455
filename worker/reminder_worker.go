package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"taskfolio/services"
	"taskfolio/utils"
)

const reminderLockKey = "reminders:lock"

// ReminderWorker emails every user a digest of their incomplete tasks once
// per interval. With Redis configured, instances share a lock so only one
// of them sends per interval.
type ReminderWorker struct {
	Tasks    *services.TaskService
	Mailer   utils.Mailer
	Redis    *redis.Client
	Interval time.Duration
	Logger   *logrus.Entry
}

func NewReminderWorker(tasks *services.TaskService, mailer utils.Mailer, rdb *redis.Client, interval time.Duration, logger *logrus.Entry) *ReminderWorker {
	return &ReminderWorker{
		Tasks:    tasks,
		Mailer:   mailer,
		Redis:    rdb,
		Interval: interval,
		Logger:   logger,
	}
}

func (rw *ReminderWorker) Start(ctx context.Context) {
	rw.Logger.WithField("interval", rw.Interval.String()).Info("Reminder worker started")

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Info("Reminder worker shutting down...")
			return
		case <-ticker.C:
			if _, err := rw.RunOnce(ctx); err != nil {
				utils.LogError("reminder_run_failed", err, nil)
			}
		}
	}
}

// RunOnce sends one reminder per user with pending tasks and returns how
// many were delivered. A failed send is logged and the run continues.
func (rw *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	acquired, err := rw.acquireLock(ctx)
	if err != nil {
		return 0, err
	}
	if !acquired {
		rw.Logger.Debug("Another instance holds the reminder lock, skipping")
		return 0, nil
	}

	pending, err := rw.Tasks.PendingByUser(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		email, err := utils.RenderReminder(p.User, p.Tasks)
		if err != nil {
			utils.LogError("reminder_render_failed", err, map[string]interface{}{"user_id": p.User.ID})
			continue
		}
		if err := rw.Mailer.Send(email); err != nil {
			utils.LogError("reminder_send_failed", err, map[string]interface{}{
				"user_id": p.User.ID,
				"tasks":   len(p.Tasks),
			})
			continue
		}
		sent++
	}

	rw.Logger.WithFields(logrus.Fields{"users": len(pending), "sent": sent}).Info("Reminder run completed")
	return sent, nil
}

func (rw *ReminderWorker) acquireLock(ctx context.Context) (bool, error) {
	if rw.Redis == nil {
		return true, nil
	}
	ttl := rw.Interval / 2
	if ttl < time.Second {
		ttl = time.Second
	}
	host, _ := os.Hostname()
	ok, err := rw.Redis.SetNX(ctx, reminderLockKey, fmt.Sprintf("%s:%d", host, os.Getpid()), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire reminder lock: %w", err)
	}
	return ok, nil
}
