package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store) *User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), "admin", "$2a$12$fakehash")
	require.NoError(t, err)
	return user
}

func TestUserLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	user := createTestUser(t, s)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "admin", user.Username)

	count, err = s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	found, err := s.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = s.UserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	// Usernames are unique.
	_, err = s.CreateUser(ctx, "admin", "other")
	assert.Error(t, err)
}

func TestInstanceCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)

	inst := &Instance{
		UserID:               user.ID,
		Label:                "Home Server",
		URL:                  "http://localhost:8080",
		QbtUsername:          "admin",
		QbtPasswordEncrypted: "enc:v1:abc",
	}
	require.NoError(t, s.CreateInstance(ctx, inst))
	require.NotZero(t, inst.ID)

	found, err := s.Instance(ctx, inst.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Home Server", found.Label)
	assert.Equal(t, "admin", found.QbtUsername)
	assert.False(t, found.SkipAuth)

	// Ownership scoping: another user cannot see it.
	_, err = s.Instance(ctx, inst.ID, user.ID+1)
	assert.ErrorIs(t, err, ErrNotFound)

	inst.Label = "Renamed"
	inst.SkipAuth = true
	inst.QbtUsername = ""
	inst.QbtPasswordEncrypted = ""
	require.NoError(t, s.UpdateInstance(ctx, inst))

	found, err = s.Instance(ctx, inst.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", found.Label)
	assert.True(t, found.SkipAuth)
	assert.Empty(t, found.QbtUsername)

	list, err := s.ListInstances(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteInstance(ctx, inst.ID, user.ID))
	assert.ErrorIs(t, s.DeleteInstance(ctx, inst.ID, user.ID), ErrNotFound)
}

func TestQbtInstancesView(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)

	require.NoError(t, s.CreateInstance(ctx, &Instance{
		UserID: user.ID, Label: "A", URL: "http://a:8080",
		QbtUsername: "u", QbtPasswordEncrypted: "enc:v1:x",
	}))
	require.NoError(t, s.CreateInstance(ctx, &Instance{
		UserID: user.ID, Label: "B", URL: "http://b:8080", SkipAuth: true,
	}))

	views, err := s.QbtInstances(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "http://a:8080", views[0].URL)
	assert.Equal(t, "enc:v1:x", views[0].PasswordEncrypted)
	assert.True(t, views[1].SkipAuth)
	assert.Empty(t, views[1].Username)
}

func TestIntegrationCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)

	integ := &Integration{
		UserID:          user.ID,
		Type:            "prowlarr",
		Label:           "My Indexer",
		URL:             "http://localhost:9696",
		APIKeyEncrypted: "enc:v1:key",
	}
	require.NoError(t, s.CreateIntegration(ctx, integ))

	list, err := s.ListIntegrations(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "prowlarr", list[0].Type)

	integ.Label = "Renamed"
	require.NoError(t, s.UpdateIntegration(ctx, integ))

	found, err := s.Integration(ctx, integ.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", found.Label)

	require.NoError(t, s.DeleteIntegration(ctx, integ.ID, user.ID))
	_, err = s.Integration(ctx, integ.ID, user.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWebSessionExpiry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s)

	require.NoError(t, s.CreateWebSession(ctx, "live", user.ID, time.Now().Add(time.Hour)))
	require.NoError(t, s.CreateWebSession(ctx, "dead", user.ID, time.Now().Add(-time.Hour)))

	ws, err := s.WebSession(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, user.ID, ws.UserID)

	_, err = s.WebSession(ctx, "dead")
	assert.ErrorIs(t, err, ErrNotFound)

	removed, err := s.DeleteExpiredWebSessions(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	require.NoError(t, s.DeleteWebSession(ctx, "live"))
	_, err = s.WebSession(ctx, "live")
	assert.ErrorIs(t, err, ErrNotFound)
}
