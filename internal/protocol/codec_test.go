package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	cases := map[byte]int{
		TypeIdentification:    130,
		TypePing:              0,
		TypeLevelInitialize:   0,
		TypeLevelDataChunk:    1027,
		TypeLevelFinalize:     6,
		TypeSetBlockClient:    8,
		TypeSetBlockServer:    7,
		TypeSpawnPlayer:       73,
		TypePosition:          9,
		TypePosOrientUpdate:   6,
		TypePositionUpdate:    4,
		TypeOrientationUpdate: 3,
		TypeDespawnPlayer:     1,
		TypeMessage:           65,
		TypeDisconnect:        64,
		TypeUpdateUserType:    1,
	}

	for tag, size := range cases {
		layout, ok := Classic.Lookup(tag)
		require.True(t, ok, "тег 0x%02x должен быть зарегистрирован", tag)
		assert.Equal(t, size, layout.Size(), "размер тела %s", layout.Name)
	}
}

func TestDecodeSetBlock(t *testing.T) {
	buf := []byte{TypeSetBlockClient, 0x00, 0x05, 0xff, 0xfe, 0x01, 0x00, 0x01, 0x2a}

	pkt, n, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, TypeSetBlockClient, pkt.Type)
	assert.Equal(t, int16(5), pkt.Short(0))
	assert.Equal(t, int16(-2), pkt.Short(1), "short знаковый")
	assert.Equal(t, int16(256), pkt.Short(2))
	assert.Equal(t, uint8(1), pkt.Byte(3))
	assert.Equal(t, uint8(42), pkt.Byte(4))
}

func TestDecodeInsufficientDataConsumesNothing(t *testing.T) {
	full := Message(5, "hello")

	for i := 0; i < len(full); i++ {
		_, n, err := Decode(full[:i])
		assert.True(t, errors.Is(err, ErrInsufficientData), "префикс длины %d", i)
		assert.Equal(t, 0, n)
	}

	pkt, n, err := Decode(full)
	require.NoError(t, err)
	assert.Equal(t, len(full), n)
	assert.Equal(t, "hello", pkt.Text(1))
}

func TestDecodeUnknownType(t *testing.T) {
	_, n, err := Decode([]byte{0x42, 0x00})
	assert.True(t, errors.Is(err, ErrUnknownType))
	assert.Equal(t, 0, n)
}

func TestDecodeStreamOfMessages(t *testing.T) {
	var stream []byte
	stream = append(stream, Ping()...)
	stream = append(stream, SetBlock(1, 2, 3, 4)...)
	stream = append(stream, Disconnect("bye")...)

	var types []byte
	for len(stream) > 0 {
		pkt, n, err := Decode(stream)
		require.NoError(t, err)
		types = append(types, pkt.Type)
		stream = stream[n:]
	}
	assert.Equal(t, []byte{TypePing, TypeSetBlockServer, TypeDisconnect}, types)
}

func TestStringPaddingAndTrim(t *testing.T) {
	data := Disconnect("bye")
	require.Len(t, data, 1+StringSize)
	assert.Equal(t, byte(' '), data[len(data)-1], "строка дополняется пробелами")

	// NUL-дополненные строки тоже обрезаются
	raw := make([]byte, 1+StringSize)
	raw[0] = TypeDisconnect
	copy(raw[1:], "reason")
	pkt, _, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "reason", pkt.Text(0))

	long := bytes.Repeat([]byte("x"), 100)
	pkt, _, err = Decode(Disconnect(string(long)))
	require.NoError(t, err)
	assert.Len(t, pkt.Text(0), StringSize, "длинные строки обрезаются до 64 байт")
}

func TestSelfIDEncodesAsMinusOne(t *testing.T) {
	data := Position(SelfID, 16, 32, 48, 10, 20)
	pkt, _, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int8(-1), pkt.SByte(0))
	assert.Equal(t, int16(48), pkt.Short(3))
}

func TestLevelChunkPadding(t *testing.T) {
	data := LevelDataChunk([]byte{1, 2, 3}, 50)
	pkt, _, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, int16(3), pkt.Short(0))
	payload := pkt.Bytes(1)
	require.Len(t, payload, ByteArraySize)
	assert.Equal(t, []byte{1, 2, 3}, payload[:3])
	assert.Equal(t, make([]byte, ByteArraySize-3), payload[3:])
	assert.Equal(t, uint8(50), pkt.Byte(2))
}

func TestEncodeErrors(t *testing.T) {
	_, err := Encode(TypeMessage, 1)
	assert.True(t, errors.Is(err, ErrFieldType), "неверное число полей")

	_, err = Encode(TypeMessage, 1, 2)
	assert.True(t, errors.Is(err, ErrFieldType), "строковое поле")

	_, err = Encode(TypeLevelDataChunk, 1, make([]byte, ByteArraySize+1), 0)
	assert.True(t, errors.Is(err, ErrFieldType), "слишком длинный массив")

	_, err = Encode(0x99)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestCustomRegistryIsTableDriven(t *testing.T) {
	r := NewRegistry()
	r.Register(0x10, Layout{Name: "custom", Fields: []FieldKind{FieldShort, FieldByte}})

	data, err := r.Encode(0x10, -300, 7)
	require.NoError(t, err)

	pkt, n, err := r.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int16(-300), pkt.Short(0))
	assert.Equal(t, uint8(7), pkt.Byte(1))
	assert.Equal(t, "custom", r.Name(0x10))
	assert.Equal(t, "unknown", r.Name(0x11))
}
