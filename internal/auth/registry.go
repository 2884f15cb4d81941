package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/logging"
)

var (
	// ErrServerFull в пуле не осталось свободных идентификаторов
	ErrServerFull = errors.New("server is full")
	// ErrUnknownUser пользователь не найден
	ErrUnknownUser = errors.New("unknown user")
)

// PresenceRecorder хранит время последнего появления игроков
type PresenceRecorder interface {
	RecordPresence(ctx context.Context, username string, at time.Time) error
	LastSeen(ctx context.Context, username string) (time.Time, error)
}

// Registry глобальное состояние идентичности, которое ядро только
// запрашивает и изменяет через эти вызовы.
type Registry interface {
	ClaimID() (int, error)
	ClaimReservedID() (int, error)
	ReleaseID(id int)
	RecordPresence(username string)

	GlobalRank(username string) authz.Rank
	SetRank(username string, rank authz.Rank)

	IsBanned(username string) bool
	BanReason(username string) string
	Ban(username, reason string)
	Unban(username string)

	IsIPBanned(ip string) bool
	IPBanReason(ip string) string
	IPBan(ip, reason string)
	IPUnban(ip string)

	IsSpectator(username string) bool
	SetSpectator(username string, spectator bool)

	IsSilenced(username string) bool
	Silence(username string, silenced bool)
}

// MemoryRegistry реализация Registry в памяти процесса.
// Идентификаторы 0..max-1 обычные, max..max+reserved-1 резервные для Helper+.
type MemoryRegistry struct {
	mu         sync.RWMutex
	max        int
	reserved   int
	used       map[int]struct{}
	ranks      map[string]authz.Rank
	bans       map[string]string
	ipBans     map[string]string
	spectators map[string]struct{}
	silenced   map[string]struct{}
	presence   PresenceRecorder
	logger     *logging.Logger
}

// NewMemoryRegistry создаёт реестр с пулом на max игроков и reserved резервных мест.
// presence может быть nil.
func NewMemoryRegistry(max, reserved int, presence PresenceRecorder) *MemoryRegistry {
	return &MemoryRegistry{
		max:        max,
		reserved:   reserved,
		used:       make(map[int]struct{}),
		ranks:      make(map[string]authz.Rank),
		bans:       make(map[string]string),
		ipBans:     make(map[string]string),
		spectators: make(map[string]struct{}),
		silenced:   make(map[string]struct{}),
		presence:   presence,
		logger:     logging.GetServerLogger(),
	}
}

func (r *MemoryRegistry) claimIn(from, to int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := from; id < to; id++ {
		if _, taken := r.used[id]; !taken {
			r.used[id] = struct{}{}
			return id, nil
		}
	}
	return -1, ErrServerFull
}

// ClaimID выдаёт наименьший свободный обычный идентификатор
func (r *MemoryRegistry) ClaimID() (int, error) {
	return r.claimIn(0, r.max)
}

// ClaimReservedID выдаёт идентификатор из резерва (сначала пробует обычный пул)
func (r *MemoryRegistry) ClaimReservedID() (int, error) {
	if id, err := r.claimIn(0, r.max); err == nil {
		return id, nil
	}
	return r.claimIn(r.max, r.max+r.reserved)
}

// ReleaseID освобождает идентификатор; отрицательные значения игнорируются
func (r *MemoryRegistry) ReleaseID(id int) {
	if id < 0 {
		return
	}
	r.mu.Lock()
	delete(r.used, id)
	r.mu.Unlock()
}

// InUse число занятых идентификаторов
func (r *MemoryRegistry) InUse() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.used)
}

// RecordPresence отмечает время появления; ошибки хранилища только логируются
func (r *MemoryRegistry) RecordPresence(username string) {
	if r.presence == nil || username == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.presence.RecordPresence(ctx, key(username), time.Now()); err != nil {
		r.logger.Warn("Не удалось записать присутствие %s: %v", username, err)
	}
}

// LastSeen время последнего появления
func (r *MemoryRegistry) LastSeen(ctx context.Context, username string) (time.Time, error) {
	if r.presence == nil {
		return time.Time{}, ErrUnknownUser
	}
	return r.presence.LastSeen(ctx, key(username))
}

func (r *MemoryRegistry) GlobalRank(username string) authz.Rank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ranks[key(username)]
}

// SetRank задаёт глобальный ранг. Ранги мира (WorldOwner/Op/Builder) и
// Guest снимают глобальную запись.
func (r *MemoryRegistry) SetRank(username string, rank authz.Rank) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rank.Global() {
		r.ranks[key(username)] = rank
	} else {
		delete(r.ranks, key(username))
	}
}

func (r *MemoryRegistry) IsBanned(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bans[key(username)]
	return ok
}

func (r *MemoryRegistry) BanReason(username string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bans[key(username)]
}

func (r *MemoryRegistry) Ban(username, reason string) {
	r.mu.Lock()
	r.bans[key(username)] = reason
	r.mu.Unlock()
}

func (r *MemoryRegistry) Unban(username string) {
	r.mu.Lock()
	delete(r.bans, key(username))
	r.mu.Unlock()
}

func (r *MemoryRegistry) IsIPBanned(ip string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ipBans[ip]
	return ok
}

func (r *MemoryRegistry) IPBanReason(ip string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ipBans[ip]
}

func (r *MemoryRegistry) IPBan(ip, reason string) {
	r.mu.Lock()
	r.ipBans[ip] = reason
	r.mu.Unlock()
}

func (r *MemoryRegistry) IPUnban(ip string) {
	r.mu.Lock()
	delete(r.ipBans, ip)
	r.mu.Unlock()
}

func (r *MemoryRegistry) IsSpectator(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.spectators[key(username)]
	return ok
}

func (r *MemoryRegistry) SetSpectator(username string, spectator bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spectator {
		r.spectators[key(username)] = struct{}{}
	} else {
		delete(r.spectators, key(username))
	}
}

func (r *MemoryRegistry) IsSilenced(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.silenced[key(username)]
	return ok
}

func (r *MemoryRegistry) Silence(username string, silenced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if silenced {
		r.silenced[key(username)] = struct{}{}
	} else {
		delete(r.silenced, key(username))
	}
}

// LoadRanks заполняет глобальные роли из списков конфигурации
func (r *MemoryRegistry) LoadRanks(lists map[authz.Rank][]string, spectators []string) {
	for rank, names := range lists {
		for _, n := range names {
			r.SetRank(n, rank)
		}
	}
	for _, n := range spectators {
		r.SetSpectator(n, true)
	}
}

func key(username string) string {
	return strings.ToLower(username)
}
