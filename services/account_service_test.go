package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskfolio/models"
	"taskfolio/realtime"
	"taskfolio/testutil"
	"taskfolio/utils"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.account.Register(ctx, RegisterInput{Username: "ada", Email: " Ada@Example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "secret1", user.PasswordHash)

	_, err = f.account.Register(ctx, RegisterInput{Username: "other", Email: "ada@example.com", Password: "secret1"})
	assert.True(t, utils.IsKind(err, utils.KindConflict))
	_, err = f.account.Register(ctx, RegisterInput{Username: "ada", Email: "new@example.com", Password: "secret1"})
	assert.True(t, utils.IsKind(err, utils.KindConflict))
	_, err = f.account.Register(ctx, RegisterInput{Username: "bo", Email: "bad", Password: "x"})
	assert.True(t, utils.IsKind(err, utils.KindInvalidArgument))

	got, err := f.account.Authenticate(ctx, "ADA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = f.account.Authenticate(ctx, "ada@example.com", "wrong")
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))
	_, err = f.account.Authenticate(ctx, "nobody@example.com", "secret1")
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))
}

func TestUpdateProfileKeepsIdentityUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := testutil.CreateUser(t, f.db, "ada")
	_ = testutil.CreateUser(t, f.db, "bob")

	_, err := f.account.UpdateProfile(ctx, ada.ID, UpdateProfileInput{Username: utils.Pointer("bob")})
	assert.True(t, utils.IsKind(err, utils.KindConflict))
	_, err = f.account.UpdateProfile(ctx, ada.ID, UpdateProfileInput{Email: utils.Pointer("BOB@example.com")})
	assert.True(t, utils.IsKind(err, utils.KindConflict))

	user, err := f.account.UpdateProfile(ctx, ada.ID, UpdateProfileInput{
		Username: utils.Pointer("lovelace"),
		Email:    utils.Pointer("Lovelace@Example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "lovelace", user.Username)
	assert.Equal(t, "lovelace@example.com", user.Email)

	_, err = f.account.UpdateProfile(ctx, 999, UpdateProfileInput{})
	assert.True(t, utils.IsKind(err, utils.KindNotFound))
}

func TestChangePasswordBumpsTokenVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user, err := f.account.Register(ctx, RegisterInput{Username: "ada", Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = f.account.ChangePassword(ctx, user.ID, "wrong", "secret2")
	assert.True(t, utils.IsKind(err, utils.KindUnauthorized))
	_, err = f.account.ChangePassword(ctx, user.ID, "secret1", "short")
	assert.True(t, utils.IsKind(err, utils.KindInvalidArgument))

	updated, err := f.account.ChangePassword(ctx, user.ID, "secret1", "secret2")
	require.NoError(t, err)
	assert.Equal(t, user.TokenVersion+1, updated.TokenVersion)

	_, err = f.account.Authenticate(ctx, "ada@example.com", "secret2")
	assert.NoError(t, err)
}

func TestDeleteAccountCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ada := testutil.CreateUser(t, f.db, "ada")
	bob := testutil.CreateUser(t, f.db, "bob")
	adaFolder := testutil.CreateFolder(t, f.db, ada.ID, "Ada's")
	bobFolder := testutil.CreateFolder(t, f.db, bob.ID, "Bob's")

	_, err := f.folders.Share(ctx, ada.ID, adaFolder.ID, ShareInput{Email: bob.Email, AccessLevel: "edit"})
	require.NoError(t, err)
	_, err = f.folders.Share(ctx, bob.ID, bobFolder.ID, ShareInput{Email: ada.Email, AccessLevel: "edit"})
	require.NoError(t, err)

	_, err = f.tasks.Create(ctx, bob.ID, CreateTaskInput{Title: "bob in ada's", FolderID: adaFolder.ID})
	require.NoError(t, err)
	adaInBob, err := f.tasks.Create(ctx, ada.ID, CreateTaskInput{Title: "ada in bob's", FolderID: bobFolder.ID})
	require.NoError(t, err)
	bobsOwn, err := f.tasks.Create(ctx, bob.ID, CreateTaskInput{Title: "bob's own", FolderID: bobFolder.ID})
	require.NoError(t, err)
	f.rec.published = nil

	require.NoError(t, f.account.DeleteAccount(ctx, ada.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", ada.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Model(&models.Folder{}).Where("user_id = ?", ada.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Model(&models.FolderShare{}).Count(&count).Error)
	assert.Zero(t, count, "shares on ada's folders and grants to ada are gone")

	remaining, err := f.tasks.List(ctx, bob.ID, &bobFolder.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, bobsOwn.ID, remaining[0].ID)
	bobs, err := f.tasks.List(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.Len(t, bobs, 1, "bob's task inside ada's folder went with the folder")

	assert.Equal(t, []uint{adaFolder.ID}, f.rec.closed)
	assert.Equal(t, [][2]uint{{bobFolder.ID, ada.ID}}, f.rec.evicted)
	require.Len(t, f.rec.published, 1)
	assert.Equal(t, published{FolderID: bobFolder.ID, Event: realtime.Deleted(adaInBob.ID)}, f.rec.published[0])

	assert.True(t, utils.IsKind(f.account.DeleteAccount(ctx, ada.ID), utils.KindNotFound))
}
