package services

import (
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"taskfolio/realtime"
	"taskfolio/testutil"
)

type published struct {
	FolderID uint
	Event    realtime.TaskEvent
}

// recorder captures broadcasts instead of delivering them.
type recorder struct {
	mu        sync.Mutex
	published []published
	evicted   [][2]uint
	closed    []uint
}

func (r *recorder) Publish(folderID uint, ev realtime.TaskEvent) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, published{FolderID: folderID, Event: ev})
	return 0
}

func (r *recorder) EvictUser(folderID, userID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, [2]uint{folderID, userID})
}

func (r *recorder) CloseFolder(folderID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, folderID)
}

// panicky fails every broadcast to prove mutations do not depend on them.
type panicky struct{}

func (panicky) Publish(uint, realtime.TaskEvent) int { panic("subscriber exploded") }
func (panicky) EvictUser(uint, uint)                 { panic("subscriber exploded") }
func (panicky) CloseFolder(uint)                     { panic("subscriber exploded") }

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	db      *gorm.DB
	rec     *recorder
	access  *Access
	folders *FolderService
	tasks   *TaskService
	account *AccountService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	rec := &recorder{}
	return &fixture{
		db:      db,
		rec:     rec,
		access:  NewAccess(db),
		folders: NewFolderService(db, rec, quietLogger()),
		tasks:   NewTaskService(db, rec, quietLogger()),
		account: NewAccountService(db, rec, quietLogger()),
	}
}
