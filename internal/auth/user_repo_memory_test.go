package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepo(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)

	repo, err := NewMemoryUserRepo(Credentials{Username: "Root", PasswordHash: hash, IsAdmin: true})
	require.NoError(t, err)

	u, err := repo.GetUserByUsername("ROOT")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), u.ID)
	assert.Equal(t, "Root", u.Username, "регистр имени сохраняется")

	_, err = repo.CreateUser("root", hash, false)
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = repo.CreateUser("  ", hash, false)
	assert.ErrorIs(t, err, ErrEmptyCredentials)

	second, err := repo.CreateUser("viewer", hash, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, []string{"Root", "viewer"}, repo.Usernames())

	_, err = repo.GetUserByUsername("ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestValidateCredentials(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	repo, err := NewMemoryUserRepo(Credentials{Username: "root", PasswordHash: hash})
	require.NoError(t, err)

	u, err := repo.ValidateCredentials("Root", "secret1")
	require.NoError(t, err)
	assert.False(t, u.LastLogin.IsZero(), "время входа обновлено")

	_, err = repo.ValidateCredentials("root", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = repo.ValidateCredentials("ghost", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "неизвестное имя неотличимо от неверного пароля")
}

func TestSeedRejectsDuplicates(t *testing.T) {
	_, err := NewMemoryUserRepo(
		Credentials{Username: "a", PasswordHash: "x"},
		Credentials{Username: "A", PasswordHash: "y"},
	)
	assert.ErrorIs(t, err, ErrUserExists)
}
