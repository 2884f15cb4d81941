package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/logging"
)

// Store постоянное хранилище миров. LoadWorld возвращает ошибку,
// оборачивающую ErrWorldNotFound, если мира нет.
type Store interface {
	LoadWorld(id string) (*World, error)
	SaveWorld(w *World) error
}

// Manager держит загруженные миры и создаёт недостающие
type Manager struct {
	mu        sync.RWMutex
	worlds    map[string]*World
	defaultID string
	store     Store
	generator *Generator
	dimX      int
	dimY      int
	dimZ      int
	logger    *logging.Logger
}

// NewManager создаёт менеджер. store может быть nil (миры только в памяти).
func NewManager(defaultID string, store Store, generator *Generator) *Manager {
	return &Manager{
		worlds:    make(map[string]*World),
		defaultID: defaultID,
		store:     store,
		generator: generator,
		dimX:      128,
		dimY:      64,
		dimZ:      128,
		logger:    logging.GetGameLogger(),
	}
}

// SetDimensions задаёт размеры новых миров
func (m *Manager) SetDimensions(x, y, z int) {
	m.mu.Lock()
	m.dimX, m.dimY, m.dimZ = x, y, z
	m.mu.Unlock()
}

// DefaultID имя мира по умолчанию
func (m *Manager) DefaultID() string { return m.defaultID }

// Add регистрирует мир (заменяет одноимённый)
func (m *Manager) Add(w *World) {
	m.mu.Lock()
	m.worlds[w.ID()] = w
	m.mu.Unlock()
}

// Get возвращает загруженный мир
func (m *Manager) Get(id string) (*World, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.worlds[id]
	return w, ok
}

// Open возвращает загруженный мир, загружает его из хранилища или генерирует новый.
func (m *Manager) Open(id string) (*World, error) {
	if w, ok := m.Get(id); ok {
		return w, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.worlds[id]; ok {
		return w, nil
	}

	if m.store != nil {
		w, err := m.store.LoadWorld(id)
		switch {
		case err == nil:
			m.worlds[id] = w
			m.logger.Info("Мир %s загружен из хранилища", id)
			return w, nil
		case !errors.Is(err, ErrWorldNotFound):
			return nil, fmt.Errorf("load world %s: %w", id, err)
		}
	}

	var w *World
	if m.generator != nil {
		w = m.generator.Generate(id, m.dimX, m.dimY, m.dimZ)
	} else {
		w = Flat(id, m.dimX, m.dimY, m.dimZ)
	}
	m.worlds[id] = w
	m.logger.Info("Мир %s сгенерирован (%dx%dx%d)", id, m.dimX, m.dimY, m.dimZ)
	return w, nil
}

// List загруженные миры, упорядоченные по имени
func (m *Manager) List() []*World {
	m.mu.RLock()
	out := make([]*World, 0, len(m.worlds))
	for _, w := range m.worlds {
		out = append(out, w)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Save сохраняет один мир
func (m *Manager) Save(w *World) error {
	if m.store == nil {
		return nil
	}
	// Признак сбрасывается до снимка: правка во время записи снова
	// пометит мир изменённым и попадёт в следующее сохранение
	w.MarkSaved()
	if err := m.store.SaveWorld(w); err != nil {
		w.MarkModified()
		return fmt.Errorf("save world %s: %w", w.ID(), err)
	}
	return nil
}

// SaveDirty сохраняет все изменённые миры и возвращает число сохранённых
func (m *Manager) SaveDirty() (int, error) {
	saved := 0
	var lastErr error
	for _, w := range m.List() {
		if !w.Modified() {
			continue
		}
		if err := m.Save(w); err != nil {
			m.logger.Error("Автосохранение: %v", err)
			lastErr = err
			continue
		}
		saved++
	}
	return saved, lastErr
}

// RunAutosave периодически сохраняет изменённые миры до отмены ctx.
// При остановке выполняется финальное сохранение.
func (m *Manager) RunAutosave(ctx context.Context, interval time.Duration) {
	if m.store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if n, err := m.SaveDirty(); err == nil && n > 0 {
				m.logger.Info("Финальное сохранение: %d миров", n)
			}
			return
		case <-ticker.C:
			if n, _ := m.SaveDirty(); n > 0 {
				m.logger.Debug("Автосохранение: %d миров", n)
			}
		}
	}
}
