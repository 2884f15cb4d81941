package world

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Occupant участник мира (сессия игрока)
type Occupant interface {
	ID() int
	Username() string
}

// Spawn точка появления в блоках; Heading в градусах
type Spawn struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	Z       int `json:"z"`
	Heading int `json:"heading"`
}

// Status флаги мира
type Status struct {
	Private         bool   `json:"private"`
	Archive         bool   `json:"archive"`
	Hidden          bool   `json:"hidden"`
	AllBuild        bool   `json:"all_build"`
	Zoned           bool   `json:"zoned"`
	Owner           string `json:"owner"`
	LastAccessCount int    `json:"last_access_count"`
}

// World одна карта со своими зонами, ролями и участниками.
type World struct {
	id     string
	blocks *BlockStore

	mu        sync.RWMutex
	spawn     Spawn
	status    Status
	ops       map[string]struct{}
	builders  map[string]struct{}
	bans      map[string]struct{}
	userZones []UserZone
	rankZones []RankZone
	occupants map[int]Occupant
	modified  bool
}

// New создаёт мир поверх готового хранилища блоков
func New(id string, blocks *BlockStore) *World {
	x, y, z := blocks.Dims()
	return &World{
		id:        id,
		blocks:    blocks,
		spawn:     Spawn{X: x / 2, Y: y/2 + 1, Z: z / 2},
		status:    Status{},
		ops:       make(map[string]struct{}),
		builders:  make(map[string]struct{}),
		bans:      make(map[string]struct{}),
		occupants: make(map[int]Occupant),
	}
}

func (w *World) ID() string { return w.id }

// Dims возвращает размеры мира
func (w *World) Dims() (int, int, int) { return w.blocks.Dims() }

// Blocks хранилище блоков мира
func (w *World) Blocks() *BlockStore { return w.blocks }

// Get читает блок; вне границ ErrOutOfBounds
func (w *World) Get(x, y, z int) (BlockID, error) {
	return w.blocks.Get(x, y, z)
}

// Set записывает блок и отмечает мир изменённым. Возвращает предыдущее значение.
func (w *World) Set(x, y, z int, id BlockID) (BlockID, error) {
	prev, err := w.blocks.Set(x, y, z, id)
	if err != nil {
		return prev, err
	}
	if prev != id {
		w.mu.Lock()
		w.modified = true
		w.mu.Unlock()
	}
	return prev, nil
}

// BeginSnapshot см. BlockStore.BeginSnapshot
func (w *World) BeginSnapshot() (io.Reader, int, error) {
	return w.blocks.BeginSnapshot()
}

func (w *World) Spawn() Spawn {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.spawn
}

func (w *World) SetSpawn(s Spawn) {
	w.mu.Lock()
	w.spawn = s
	w.modified = true
	w.mu.Unlock()
}

// Status возвращает копию флагов
func (w *World) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// UpdateStatus изменяет флаги под блокировкой мира
func (w *World) UpdateStatus(fn func(*Status)) {
	w.mu.Lock()
	fn(&w.status)
	w.modified = true
	w.mu.Unlock()
}

// ResetAccessCount обнуляет счётчик обращений при входе игрока
func (w *World) ResetAccessCount() {
	w.mu.Lock()
	w.status.LastAccessCount = 0
	w.mu.Unlock()
}

// IsOwner сравнивает имя с владельцем без учёта регистра
func (w *World) IsOwner(username string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status.Owner != "" && strings.EqualFold(w.status.Owner, username)
}

func (w *World) IsOp(username string) bool {
	return w.hasMember(w.ops, username)
}

func (w *World) IsBuilder(username string) bool {
	return w.hasMember(w.builders, username)
}

func (w *World) IsWorldBanned(username string) bool {
	return w.hasMember(w.bans, username)
}

func (w *World) AddOp(username string) { w.setMember(w.ops, username, true) }
func (w *World) RemoveOp(username string) { w.setMember(w.ops, username, false) }
func (w *World) AddBuilder(username string) { w.setMember(w.builders, username, true) }
func (w *World) RemoveBuilder(username string) { w.setMember(w.builders, username, false) }
func (w *World) WorldBan(username string) { w.setMember(w.bans, username, true) }
func (w *World) WorldUnban(username string) { w.setMember(w.bans, username, false) }

func (w *World) hasMember(set map[string]struct{}, username string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := set[strings.ToLower(username)]
	return ok
}

func (w *World) setMember(set map[string]struct{}, username string, present bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if present {
		set[strings.ToLower(username)] = struct{}{}
	} else {
		delete(set, strings.ToLower(username))
	}
	w.modified = true
}

// AddUserZone добавляет или заменяет пользовательскую зону (порядок вставки сохраняется)
func (w *World) AddUserZone(z UserZone) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.userZones {
		if w.userZones[i].ID == z.ID {
			w.userZones[i] = z
			w.modified = true
			return
		}
	}
	w.userZones = append(w.userZones, z)
	w.modified = true
}

// AddRankZone добавляет или заменяет ранговую зону
func (w *World) AddRankZone(z RankZone) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.rankZones {
		if w.rankZones[i].ID == z.ID {
			w.rankZones[i] = z
			w.modified = true
			return
		}
	}
	w.rankZones = append(w.rankZones, z)
	w.modified = true
}

// RemoveZone удаляет зону любого вида по id
func (w *World) RemoveZone(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.userZones {
		if w.userZones[i].ID == id {
			w.userZones = append(w.userZones[:i], w.userZones[i+1:]...)
			w.modified = true
			return true
		}
	}
	for i := range w.rankZones {
		if w.rankZones[i].ID == id {
			w.rankZones = append(w.rankZones[:i], w.rankZones[i+1:]...)
			w.modified = true
			return true
		}
	}
	return false
}

// UserZones копия пользовательских зон в порядке вставки
func (w *World) UserZones() []UserZone {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]UserZone, len(w.userZones))
	copy(out, w.userZones)
	return out
}

// RankZones копия ранговых зон в порядке вставки
func (w *World) RankZones() []RankZone {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]RankZone, len(w.rankZones))
	copy(out, w.rankZones)
	return out
}

// Join добавляет участника
func (w *World) Join(o Occupant) {
	w.mu.Lock()
	w.occupants[o.ID()] = o
	w.mu.Unlock()
}

// Leave удаляет участника, если он всё ещё зарегистрирован под своим id
func (w *World) Leave(o Occupant) {
	w.mu.Lock()
	if cur, ok := w.occupants[o.ID()]; ok && cur == o {
		delete(w.occupants, o.ID())
	}
	w.mu.Unlock()
}

// Occupants список участников, упорядоченный по id
func (w *World) Occupants() []Occupant {
	w.mu.RLock()
	out := make([]Occupant, 0, len(w.occupants))
	for _, o := range w.occupants {
		out = append(out, o)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (w *World) OccupantCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.occupants)
}

// Modified сообщает, есть ли несохранённые изменения
func (w *World) Modified() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.modified
}

// MarkSaved сбрасывает признак изменений
func (w *World) MarkSaved() {
	w.mu.Lock()
	w.modified = false
	w.mu.Unlock()
}

// MarkModified снова помечает мир изменённым
func (w *World) MarkModified() {
	w.mu.Lock()
	w.modified = true
	w.mu.Unlock()
}

// Meta сериализуемое описание мира без блоков
type Meta struct {
	ID        string     `json:"id"`
	X         int        `json:"x"`
	Y         int        `json:"y"`
	Z         int        `json:"z"`
	Spawn     Spawn      `json:"spawn"`
	Status    Status     `json:"status"`
	Ops       []string   `json:"ops"`
	Builders  []string   `json:"builders"`
	Bans      []string   `json:"bans"`
	UserZones []UserZone `json:"user_zones"`
	RankZones []RankZone `json:"rank_zones"`
}

// Meta снимает описание мира
func (w *World) Meta() Meta {
	x, y, z := w.blocks.Dims()
	w.mu.RLock()
	defer w.mu.RUnlock()
	m := Meta{
		ID:        w.id,
		X:         x,
		Y:         y,
		Z:         z,
		Spawn:     w.spawn,
		Status:    w.status,
		Ops:       setToList(w.ops),
		Builders:  setToList(w.builders),
		Bans:      setToList(w.bans),
		UserZones: append([]UserZone(nil), w.userZones...),
		RankZones: append([]RankZone(nil), w.rankZones...),
	}
	return m
}

// FromMeta восстанавливает мир из описания и массива блоков
func FromMeta(m Meta, blocks []byte) (*World, error) {
	store, err := NewBlockStoreFrom(m.X, m.Y, m.Z, blocks)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", m.ID, err)
	}
	w := New(m.ID, store)
	w.spawn = m.Spawn
	w.status = m.Status
	for _, n := range m.Ops {
		w.ops[n] = struct{}{}
	}
	for _, n := range m.Builders {
		w.builders[n] = struct{}{}
	}
	for _, n := range m.Bans {
		w.bans[n] = struct{}{}
	}
	w.userZones = append(w.userZones, m.UserZones...)
	w.rankZones = append(w.rankZones, m.RankZones...)
	return w, nil
}

func setToList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
