package services

import (
	"github.com/sirupsen/logrus"

	"taskfolio/realtime"
)

// Broadcaster is the realtime side of a mutation. *realtime.Hub satisfies it.
type Broadcaster interface {
	Publish(folderID uint, ev realtime.TaskEvent) int
	EvictUser(folderID, userID uint)
	CloseFolder(folderID uint)
}

var _ Broadcaster = (*realtime.Hub)(nil)

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(uint, realtime.TaskEvent) int { return 0 }
func (NopBroadcaster) EvictUser(uint, uint)                 {}
func (NopBroadcaster) CloseFolder(uint)                     {}

// notifier runs broadcasts after a commit. Propagation is best effort: a
// panic in a subscriber path is logged and never reaches the caller.
type notifier struct {
	hub    Broadcaster
	logger *logrus.Entry
}

func (n notifier) run(op string, fields logrus.Fields, fn func(Broadcaster)) {
	if n.hub == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.WithFields(fields).WithField("panic", r).Errorf("%s broadcast failed", op)
		}
	}()
	fn(n.hub)
}

func (n notifier) publish(folderID uint, ev realtime.TaskEvent) {
	n.run("publish", logrus.Fields{"folder_id": folderID, "action": ev.Action}, func(b Broadcaster) {
		delivered := b.Publish(folderID, ev)
		n.logger.WithFields(logrus.Fields{
			"folder_id": folderID,
			"action":    ev.Action,
			"delivered": delivered,
		}).Debug("task event published")
	})
}

func (n notifier) evict(folderID, userID uint) {
	n.run("evict", logrus.Fields{"folder_id": folderID, "user_id": userID}, func(b Broadcaster) {
		b.EvictUser(folderID, userID)
	})
}

func (n notifier) closeFolder(folderID uint) {
	n.run("close", logrus.Fields{"folder_id": folderID}, func(b Broadcaster) {
		b.CloseFolder(folderID)
	})
}
