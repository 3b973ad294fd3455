package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"taskfolio/utils"
)

const defaultQueueSize = 64

var errAccessChanged = utils.Conflict("Folder access changed, try joining again")

// AccessChecker decides whether userID may observe folderID. It returns nil
// when allowed and a NotFound/Forbidden error otherwise.
type AccessChecker interface {
	CanReadFolder(ctx context.Context, userID, folderID uint) error
}

// Session is one live client connection. Messages for it are queued in
// publish order and drained by the connection's writer.
type Session struct {
	ID     string
	UserID uint

	out     chan Message
	folders map[uint]struct{}
	closed  bool
}

// Messages returns the outbound queue. It is closed when the session is.
func (s *Session) Messages() <-chan Message {
	return s.out
}

// Hub fans task events out to the sessions joined to a folder channel. It is
// single-process; every send happens under mu so per-folder order matches
// the order Publish was called.
type Hub struct {
	access    AccessChecker
	logger    *logrus.Entry
	queueSize int

	mu       sync.Mutex
	channels map[uint]map[*Session]struct{}
	// gens bumps whenever access to a folder shrinks, so a Join whose read
	// check raced with a revoke can tell and check again.
	gens map[uint]uint64
}

func NewHub(access AccessChecker, logger *logrus.Entry) *Hub {
	return &Hub{
		access:    access,
		logger:    logger,
		queueSize: defaultQueueSize,
		channels:  make(map[uint]map[*Session]struct{}),
		gens:      make(map[uint]uint64),
	}
}

func (h *Hub) NewSession(userID uint) *Session {
	return &Session{
		ID:      uuid.NewString(),
		UserID:  userID,
		out:     make(chan Message, h.queueSize),
		folders: make(map[uint]struct{}),
	}
}

// Join subscribes s to folderID after checking that its user can read the
// folder. Joining a folder twice is a no-op. If access to the folder keeps
// changing while the check runs, Join gives up with a Conflict error and
// the session stays out.
func (h *Hub) Join(ctx context.Context, s *Session, folderID uint) error {
	const maxAttempts = 3
	for attempt := 0; ; attempt++ {
		h.mu.Lock()
		gen := h.gens[folderID]
		h.mu.Unlock()

		if err := h.access.CanReadFolder(ctx, s.UserID, folderID); err != nil {
			return err
		}

		h.mu.Lock()
		if h.gens[folderID] != gen {
			h.mu.Unlock()
			if attempt+1 < maxAttempts {
				continue
			}
			return errAccessChanged
		}
		if s.closed {
			h.mu.Unlock()
			return nil
		}
		subs := h.channels[folderID]
		if subs == nil {
			subs = make(map[*Session]struct{})
			h.channels[folderID] = subs
		}
		subs[s] = struct{}{}
		s.folders[folderID] = struct{}{}
		h.mu.Unlock()

		h.logger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"user_id":    s.UserID,
			"folder_id":  folderID,
		}).Debug("session joined folder")
		return nil
	}
}

// Leave unsubscribes s from folderID; leaving a folder it never joined is a no-op.
func (h *Hub) Leave(s *Session, folderID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s, folderID)
}

// Close drops s from every channel and closes its queue.
func (h *Hub) Close(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	for folderID := range s.folders {
		h.removeLocked(s, folderID)
	}
	s.closed = true
	close(s.out)
}

// Publish delivers ev to every session joined to folderID and returns how
// many sessions it was queued for. A session with a full queue misses it.
func (h *Hub) Publish(folderID uint, ev TaskEvent) int {
	msg := Message{Event: EventTaskUpdated, FolderID: folderID, Data: &ev}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for s := range h.channels[folderID] {
		if h.sendLocked(s, msg) {
			delivered++
		}
	}
	return delivered
}

// Reply queues a direct message to one session, such as a join error.
func (h *Hub) Reply(s *Session, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(s, msg)
}

// EvictUser removes every session of userID from folderID.
func (h *Hub) EvictUser(folderID, userID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gens[folderID]++
	for s := range h.channels[folderID] {
		if s.UserID == userID {
			h.removeLocked(s, folderID)
			h.sendLocked(s, Message{Event: EventLeft, FolderID: folderID})
		}
	}
}

// CloseFolder removes all sessions from folderID, used when it is deleted.
func (h *Hub) CloseFolder(folderID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gens[folderID]++
	for s := range h.channels[folderID] {
		h.removeLocked(s, folderID)
		h.sendLocked(s, Message{Event: EventLeft, FolderID: folderID})
	}
}

// Subscribers reports how many sessions are joined to folderID.
func (h *Hub) Subscribers(folderID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[folderID])
}

func (h *Hub) removeLocked(s *Session, folderID uint) {
	delete(s.folders, folderID)
	subs, ok := h.channels[folderID]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.channels, folderID)
	}
}

func (h *Hub) sendLocked(s *Session, msg Message) bool {
	if s.closed {
		return false
	}
	select {
	case s.out <- msg:
		return true
	default:
		h.logger.WithFields(logrus.Fields{
			"session_id": s.ID,
			"event":      msg.Event,
			"folder_id":  msg.FolderID,
		}).Warn("session queue full, dropping message")
		return false
	}
}
