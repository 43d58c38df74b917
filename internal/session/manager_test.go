package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory TokenStore for tests.
type memoryStore struct {
	token  string
	setErr error
}

func (s *memoryStore) Get() (string, error) {
	if s.token == "" {
		return "", errors.New("not found")
	}
	return s.token, nil
}

func (s *memoryStore) Set(token string) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.token = token
	return nil
}

func (s *memoryStore) Delete() error {
	s.token = ""
	return nil
}

func TestRestoresTokenFromStore(t *testing.T) {
	m := NewManager(&memoryStore{token: "stored-token"})

	assert.True(t, m.LoggedIn())
	assert.Equal(t, "stored-token", m.Token())
}

func TestSignInPersistsAndBroadcasts(t *testing.T) {
	store := &memoryStore{}
	m := NewManager(store)
	ch := m.Subscribe()

	require.NoError(t, m.SignIn("fresh-token"))

	assert.Equal(t, "fresh-token", store.token)
	assert.True(t, m.LoggedIn())

	select {
	case c := <-ch:
		assert.True(t, c.LoggedIn)
	case <-time.After(time.Second):
		t.Fatal("no sign-in broadcast")
	}
}

func TestSignInStoreFailureLeavesSignedOut(t *testing.T) {
	store := &memoryStore{setErr: errors.New("keyring locked")}
	m := NewManager(store)

	require.Error(t, m.SignIn("token"))
	assert.False(t, m.LoggedIn())
}

func TestSignOutDropsStoredToken(t *testing.T) {
	store := &memoryStore{token: "stored-token"}
	m := NewManager(store)
	ch := m.Subscribe()

	m.SignOut()

	assert.False(t, m.LoggedIn())
	assert.Empty(t, store.token)

	select {
	case c := <-ch:
		assert.False(t, c.LoggedIn)
	case <-time.After(time.Second):
		t.Fatal("no sign-out broadcast")
	}
}

func TestExpireKeepsStoredToken(t *testing.T) {
	store := &memoryStore{token: "stored-token"}
	m := NewManager(store)

	m.Expire()

	// The in-memory session ends but the keyring copy stays, so the
	// user can re-authenticate by pasting a new token without the old
	// one being silently reused.
	assert.False(t, m.LoggedIn())
	assert.Equal(t, "stored-token", store.token)
}

func TestTokenReplacementDoesNotRebroadcast(t *testing.T) {
	m := NewManager(&memoryStore{token: "old"})
	ch := m.Subscribe()

	require.NoError(t, m.SignIn("new"))

	select {
	case <-ch:
		t.Fatal("replacing a token is not a signed-in transition")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Equal(t, "new", m.Token())
}
