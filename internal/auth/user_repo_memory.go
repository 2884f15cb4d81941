package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrEmptyCredentials имя или хеш пароля не заданы
var ErrEmptyCredentials = errors.New("empty username or password hash")

// MemoryUserRepo операторы REST API в памяти процесса. Учётные записи
// приходят из секции api.admins и из /api/admin/register; ID начинаются с 1.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[string]*User
	nextID uint64
}

// NewMemoryUserRepo создаёт репозиторий с начальными учётными записями
func NewMemoryUserRepo(seed ...Credentials) (*MemoryUserRepo, error) {
	repo := &MemoryUserRepo{users: make(map[string]*User), nextID: 1}
	for _, c := range seed {
		if _, err := repo.CreateUser(c.Username, c.PasswordHash, c.IsAdmin); err != nil {
			return nil, fmt.Errorf("seed operator %q: %w", c.Username, err)
		}
	}
	return repo, nil
}

// GetUserByUsername ищет оператора без учёта регистра
func (r *MemoryUserRepo) GetUserByUsername(username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if user, ok := r.users[normalize(username)]; ok {
		return user, nil
	}
	return nil, ErrUserNotFound
}

// CreateUser добавляет оператора; имя сохраняется в исходном регистре
func (r *MemoryUserRepo) CreateUser(username string, passwordHash string, isAdmin bool) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return nil, ErrEmptyCredentials
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := normalize(username)
	if _, exists := r.users[k]; exists {
		return nil, ErrUserExists
	}

	user := &User{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		IsAdmin:      isAdmin,
	}
	r.nextID++
	r.users[k] = user
	return user, nil
}

// ValidateCredentials проверяет пароль и обновляет время входа.
// Неизвестное имя и неверный пароль неразличимы для вызывающего.
func (r *MemoryUserRepo) ValidateCredentials(username, password string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[normalize(username)]
	if !ok || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	user.LastLogin = time.Now()
	return user, nil
}

// Usernames имена операторов по алфавиту
func (r *MemoryUserRepo) Usernames() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.Username)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
