package world

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
)

var (
	// ErrOutOfBounds координаты вне размеров мира
	ErrOutOfBounds = errors.New("coordinates out of bounds")
	// ErrWorldNotFound мир не найден ни в памяти, ни в хранилище
	ErrWorldNotFound = errors.New("world not found")
)

// BlockStore плоский массив блоков в порядке classic: (y*Z + z)*X + x.
// Сжатый снапшот кешируется до следующей записи.
type BlockStore struct {
	mu       sync.RWMutex
	x, y, z  int
	blocks   []byte
	snapshot []byte
}

// NewBlockStore создаёт хранилище, заполненное воздухом
func NewBlockStore(x, y, z int) *BlockStore {
	return &BlockStore{x: x, y: y, z: z, blocks: make([]byte, x*y*z)}
}

// NewBlockStoreFrom создаёт хранилище из готового массива блоков
func NewBlockStoreFrom(x, y, z int, blocks []byte) (*BlockStore, error) {
	if len(blocks) != x*y*z {
		return nil, fmt.Errorf("block array size %d does not match dims %dx%dx%d", len(blocks), x, y, z)
	}
	data := make([]byte, len(blocks))
	copy(data, blocks)
	return &BlockStore{x: x, y: y, z: z, blocks: data}, nil
}

// Dims возвращает размеры
func (b *BlockStore) Dims() (int, int, int) {
	return b.x, b.y, b.z
}

// InBounds проверяет, что координата лежит в [0,dim) по всем осям
func (b *BlockStore) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < b.x && y < b.y && z < b.z
}

func (b *BlockStore) offset(x, y, z int) (int, error) {
	if !b.InBounds(x, y, z) {
		return 0, fmt.Errorf("%w: (%d, %d, %d)", ErrOutOfBounds, x, y, z)
	}
	return (y*b.z+z)*b.x + x, nil
}

// Get читает блок
func (b *BlockStore) Get(x, y, z int) (BlockID, error) {
	off, err := b.offset(x, y, z)
	if err != nil {
		return BlockAir, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blocks[off], nil
}

// Set записывает блок и возвращает предыдущее значение
func (b *BlockStore) Set(x, y, z int, id BlockID) (BlockID, error) {
	off, err := b.offset(x, y, z)
	if err != nil {
		return BlockAir, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.blocks[off]
	if prev != id {
		b.blocks[off] = id
		b.snapshot = nil
	}
	return prev, nil
}

// Raw возвращает копию массива блоков
func (b *BlockStore) Raw() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data := make([]byte, len(b.blocks))
	copy(data, b.blocks)
	return data
}

// BeginSnapshot возвращает поток gzip([uint32 BE count][blocks]) и его длину.
func (b *BlockStore) BeginSnapshot() (io.Reader, int, error) {
	b.mu.RLock()
	cached := b.snapshot
	b.mu.RUnlock()
	if cached != nil {
		return bytes.NewReader(cached), len(cached), nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snapshot == nil {
		data, err := compressLevel(b.blocks)
		if err != nil {
			return nil, 0, err
		}
		b.snapshot = data
	}
	return bytes.NewReader(b.snapshot), len(b.snapshot), nil
}

func compressLevel(blocks []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(blocks)))
	if _, err := zw.Write(header[:]); err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	if _, err := zw.Write(blocks); err != nil {
		return nil, fmt.Errorf("gzip blocks: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot разбирает снапшот обратно в массив блоков
func DecodeSnapshot(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("snapshot too short: %d bytes", len(raw))
	}
	count := binary.BigEndian.Uint32(raw[:4])
	if int(count) != len(raw)-4 {
		return nil, fmt.Errorf("snapshot count %d does not match payload %d", count, len(raw)-4)
	}
	return raw[4:], nil
}
