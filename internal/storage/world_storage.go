package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/world"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
)

// ErrNotFound запись отсутствует в хранилище
var ErrNotFound = errors.New("not found")

const (
	metaPrefix   = "world:meta:"
	blocksPrefix = "world:blocks:"
)

// WorldStorage хранит миры в BadgerDB: описание в JSON, блоки сжаты zstd.
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *logging.Logger
}

// NewWorldStorage открывает хранилище в <dataPath>/worlds
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "worlds")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
		encoder: enc,
		decoder: dec,
		logger:  logging.GetStorageLogger(),
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.decoder.Close()
	ws.encoder.Close()
	return ws.db.Close()
}

// SaveWorld сохраняет описание и блоки мира одной транзакцией
func (ws *WorldStorage) SaveWorld(w *world.World) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	meta, err := json.Marshal(w.Meta())
	if err != nil {
		return fmt.Errorf("ошибка сериализации мира %s: %w", w.ID(), err)
	}
	raw := w.Blocks().Raw()
	packed := ws.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))

	err = ws.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaPrefix+w.ID()), meta); err != nil {
			return err
		}
		return txn.Set([]byte(blocksPrefix+w.ID()), packed)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	ws.logger.Debug("Мир %s сохранён (%d -> %d байт)", w.ID(), len(raw), len(packed))
	return nil
}

// LoadWorld читает мир. Если его нет, возвращается ошибка, оборачивающая
// ErrNotFound и world.ErrWorldNotFound.
func (ws *WorldStorage) LoadWorld(id string) (*world.World, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var metaData, packed []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		var err error
		if metaData, err = readValue(txn, metaPrefix+id); err != nil {
			return err
		}
		packed, err = readValue(txn, blocksPrefix+id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("world %s: %w: %w", id, ErrNotFound, world.ErrWorldNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	var meta world.Meta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("ошибка десериализации мира %s: %w", id, err)
	}
	blocks, err := ws.decoder.DecodeAll(packed, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки блоков %s: %w", id, err)
	}
	return world.FromMeta(meta, blocks)
}

// DeleteWorld удаляет мир из хранилища
func (ws *WorldStorage) DeleteWorld(id string) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return fmt.Errorf("хранилище не готово")
	}
	return ws.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(metaPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(blocksPrefix + id))
	})
}

// ListWorlds возвращает имена сохранённых миров
func (ws *WorldStorage) ListWorlds() ([]string, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var ids []string
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), metaPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func readValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
