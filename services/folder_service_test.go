package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskfolio/models"
	"taskfolio/testutil"
	"taskfolio/utils"
)

func TestCreateFolderDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")

	view, err := f.folders.Create(ctx, owner.ID, CreateFolderInput{Name: "  Work  "})
	require.NoError(t, err)
	assert.Equal(t, "Work", view.Name)
	assert.Equal(t, models.DefaultFolderColor, view.Color)
	assert.Equal(t, "owner", view.Role)
	assert.Equal(t, owner.Username, view.Owner.Username)
	assert.Empty(t, view.SharedWith)

	_, err = f.folders.Create(ctx, owner.ID, CreateFolderInput{Name: "   "})
	assert.True(t, utils.IsKind(err, utils.KindInvalidArgument))

	_, err = f.folders.Create(ctx, owner.ID, CreateFolderInput{Name: "x", Color: "blue"})
	assert.True(t, utils.IsKind(err, utils.KindInvalidArgument))
}

func TestListMineOrdersPinnedThenNewest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	other := testutil.CreateUser(t, f.db, "other")

	a, err := f.folders.Create(ctx, owner.ID, CreateFolderInput{Name: "a"})
	require.NoError(t, err)
	_, err = f.folders.Create(ctx, owner.ID, CreateFolderInput{Name: "b"})
	require.NoError(t, err)
	_, err = f.folders.Create(ctx, owner.ID, CreateFolderInput{Name: "c"})
	require.NoError(t, err)
	_, err = f.folders.Create(ctx, other.ID, CreateFolderInput{Name: "not mine"})
	require.NoError(t, err)

	pinned := true
	_, err = f.folders.Update(ctx, owner.ID, a.ID, UpdateFolderInput{IsPinned: &pinned})
	require.NoError(t, err)

	list, err := f.folders.ListMine(ctx, owner.ID)
	require.NoError(t, err)
	var names []string
	for _, v := range list {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"a", "c", "b"}, names)
}

func TestUpdateFolderIsOwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	editor := testutil.CreateUser(t, f.db, "editor")
	folder := testutil.CreateFolder(t, f.db, owner.ID, "Home")
	_, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: editor.Email, AccessLevel: "edit"})
	require.NoError(t, err)

	name := "Renamed"
	_, err = f.folders.Update(ctx, editor.ID, folder.ID, UpdateFolderInput{Name: &name})
	assert.True(t, utils.IsKind(err, utils.KindForbidden))

	empty := " "
	_, err = f.folders.Update(ctx, owner.ID, folder.ID, UpdateFolderInput{Name: &empty})
	assert.True(t, utils.IsKind(err, utils.KindInvalidArgument))

	color := "#ff0000"
	view, err := f.folders.Update(ctx, owner.ID, folder.ID, UpdateFolderInput{Name: &name, Color: &color})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", view.Name)
	assert.Equal(t, "#ff0000", view.Color)
	require.Len(t, view.SharedWith, 1, "updates keep the grantee list")

	_, err = f.folders.Update(ctx, owner.ID, 9999, UpdateFolderInput{Name: &name})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}

func TestShareGrantsAccessByLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	viewer := testutil.CreateUser(t, f.db, "viewer")
	editor := testutil.CreateUser(t, f.db, "editor")
	stranger := testutil.CreateUser(t, f.db, "stranger")
	folder := testutil.CreateFolder(t, f.db, owner.ID, "Shared")

	_, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: "  VIEWER@example.com "})
	require.NoError(t, err)
	view, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{UserID: editor.ID, AccessLevel: "edit"})
	require.NoError(t, err)

	require.Len(t, view.SharedWith, 2)
	assert.Equal(t, viewer.ID, view.SharedWith[0].User.ID)
	assert.Equal(t, models.AccessView, view.SharedWith[0].AccessLevel)
	assert.Equal(t, editor.Email, view.SharedWith[1].User.Email)
	assert.Equal(t, models.AccessEdit, view.SharedWith[1].AccessLevel)

	assert.NoError(t, f.access.CanReadFolder(ctx, viewer.ID, folder.ID))
	assert.NoError(t, f.access.CanReadFolder(ctx, editor.ID, folder.ID))
	assert.True(t, utils.IsKind(f.access.CanReadFolder(ctx, stranger.ID, folder.ID), utils.KindForbidden))

	assert.True(t, utils.IsKind(f.access.CanWriteFolder(ctx, viewer.ID, folder.ID), utils.KindForbidden))
	assert.NoError(t, f.access.CanWriteFolder(ctx, editor.ID, folder.ID))
	assert.NoError(t, f.access.CanWriteFolder(ctx, owner.ID, folder.ID))
	assert.True(t, utils.IsKind(f.access.CanReadFolder(ctx, owner.ID, 4242), utils.KindNotFound))
}

func TestSharePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	friend := testutil.CreateUser(t, f.db, "friend")
	folder := testutil.CreateFolder(t, f.db, owner.ID, "Shared")

	cases := []struct {
		name   string
		actor  uint
		folder uint
		in     ShareInput
		kind   utils.ErrorKind
	}{
		{"missing grantee", owner.ID, folder.ID, ShareInput{}, utils.KindInvalidArgument},
		{"malformed email", owner.ID, folder.ID, ShareInput{Email: "not-an-email"}, utils.KindInvalidArgument},
		{"unknown folder", owner.ID, 9999, ShareInput{Email: friend.Email}, utils.KindNotFound},
		{"not the owner", friend.ID, folder.ID, ShareInput{Email: owner.Email}, utils.KindForbidden},
		{"unknown user", owner.ID, folder.ID, ShareInput{Email: "ghost@example.com"}, utils.KindNotFound},
		{"self share", owner.ID, folder.ID, ShareInput{Email: owner.Email}, utils.KindInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.folders.Share(ctx, tc.actor, tc.folder, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, utils.KindOf(err))
		})
	}

	_, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: friend.Email})
	require.NoError(t, err)
	_, err = f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: friend.Email, AccessLevel: "edit"})
	assert.True(t, utils.IsKind(err, utils.KindConflict))
	assert.Equal(t, "Folder already shared with this user", utils.PublicMessage(err))
}

func TestConcurrentSharesKeepOneGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	friend := testutil.CreateUser(t, f.db, "friend")
	folder := testutil.CreateFolder(t, f.db, owner.ID, "Race")

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: friend.Email})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case utils.IsKind(err, utils.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)

	var count int64
	require.NoError(t, f.db.Model(&models.FolderShare{}).Where("folder_id = ?", folder.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	friend := testutil.CreateUser(t, f.db, "friend")
	bystander := testutil.CreateUser(t, f.db, "bystander")
	folder := testutil.CreateFolder(t, f.db, owner.ID, "Shared")
	_, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: friend.Email, AccessLevel: "edit"})
	require.NoError(t, err)

	t.Run("non grantee is a no-op", func(t *testing.T) {
		view, err := f.folders.Revoke(ctx, owner.ID, folder.ID, bystander.ID)
		require.NoError(t, err)
		assert.Len(t, view.SharedWith, 1)
		assert.Empty(t, f.rec.evicted)
	})

	t.Run("only the owner may revoke", func(t *testing.T) {
		_, err := f.folders.Revoke(ctx, friend.ID, folder.ID, friend.ID)
		assert.True(t, utils.IsKind(err, utils.KindForbidden))
	})

	t.Run("grantee loses access and is evicted", func(t *testing.T) {
		view, err := f.folders.Revoke(ctx, owner.ID, folder.ID, friend.ID)
		require.NoError(t, err)
		assert.Empty(t, view.SharedWith)
		assert.Equal(t, [][2]uint{{folder.ID, friend.ID}}, f.rec.evicted)
		assert.True(t, utils.IsKind(f.access.CanReadFolder(ctx, friend.ID, folder.ID), utils.KindForbidden))

		_, err = f.folders.Revoke(ctx, owner.ID, folder.ID, friend.ID)
		require.NoError(t, err)
		assert.Len(t, f.rec.evicted, 1)
	})

	t.Run("unknown folder", func(t *testing.T) {
		_, err := f.folders.Revoke(ctx, owner.ID, 9999, friend.ID)
		assert.True(t, utils.IsKind(err, utils.KindNotFound))
	})
}

func TestDeleteFolderCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, f.db, "owner")
	editor := testutil.CreateUser(t, f.db, "editor")
	folder := testutil.CreateFolder(t, f.db, owner.ID, "Doomed")
	keep := testutil.CreateFolder(t, f.db, owner.ID, "Keep")
	_, err := f.folders.Share(ctx, owner.ID, folder.ID, ShareInput{Email: editor.Email, AccessLevel: "edit"})
	require.NoError(t, err)

	mine, err := f.tasks.Create(ctx, owner.ID, CreateTaskInput{Title: "one", FolderID: folder.ID})
	require.NoError(t, err)
	_, err = f.tasks.Create(ctx, editor.ID, CreateTaskInput{Title: "two", FolderID: folder.ID})
	require.NoError(t, err)
	kept, err := f.tasks.Create(ctx, owner.ID, CreateTaskInput{Title: "three", FolderID: keep.ID})
	require.NoError(t, err)

	err = f.folders.Delete(ctx, editor.ID, folder.ID)
	assert.True(t, utils.IsKind(err, utils.KindForbidden))

	require.NoError(t, f.folders.Delete(ctx, owner.ID, folder.ID))
	assert.Equal(t, []uint{folder.ID}, f.rec.closed)

	_, err = f.folders.Get(ctx, owner.ID, folder.ID)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	_, err = f.tasks.Get(ctx, owner.ID, mine.ID)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	_, err = f.tasks.List(ctx, owner.ID, &folder.ID)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	_, err = f.tasks.Create(ctx, owner.ID, CreateTaskInput{Title: "late", FolderID: folder.ID})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
	assert.True(t, utils.IsKind(f.folders.Delete(ctx, owner.ID, folder.ID), utils.KindNotFound))

	var shares, tasks int64
	require.NoError(t, f.db.Model(&models.FolderShare{}).Where("folder_id = ?", folder.ID).Count(&shares).Error)
	require.NoError(t, f.db.Model(&models.Task{}).Where("folder_id = ?", folder.ID).Count(&tasks).Error)
	assert.Zero(t, shares)
	assert.Zero(t, tasks)

	got, err := f.tasks.Get(ctx, owner.ID, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "three", got.Title)
}

func TestSharedFolderQueries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.db, "alice")
	bob := testutil.CreateUser(t, f.db, "bob")
	carol := testutil.CreateUser(t, f.db, "carol")

	aliceFolder := testutil.CreateFolder(t, f.db, alice.ID, "Alice's")
	bobFolder := testutil.CreateFolder(t, f.db, bob.ID, "Bob's")
	_ = testutil.CreateFolder(t, f.db, carol.ID, "Carol's")
	_, err := f.folders.Share(ctx, alice.ID, aliceFolder.ID, ShareInput{Email: bob.Email, AccessLevel: "edit"})
	require.NoError(t, err)

	shared, err := f.folders.ListSharedWithMe(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, aliceFolder.ID, shared[0].ID)
	assert.Equal(t, "edit", shared[0].Role)
	assert.Equal(t, alice.Username, shared[0].Owner.Username)

	visible, err := f.folders.ListVisible(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, bobFolder.ID, visible[0].ID)
	assert.Equal(t, aliceFolder.ID, visible[1].ID)

	detail, err := f.folders.GetSharedDetail(ctx, bob.ID, aliceFolder.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice's", detail.Name)

	_, err = f.folders.GetSharedDetail(ctx, carol.ID, aliceFolder.ID)
	assert.True(t, utils.IsKind(err, utils.KindForbidden))

	_, err = f.folders.Get(ctx, bob.ID, aliceFolder.ID)
	assert.True(t, utils.IsKind(err, utils.KindForbidden), "plain get is owner only")

	none, err := f.folders.ListSharedWithMe(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}
