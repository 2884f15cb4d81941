package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInsufficientData буфер короче тела сообщения; нужно дождаться данных
	ErrInsufficientData = errors.New("insufficient data")
	// ErrUnknownType неизвестный тег типа (нарушение протокола)
	ErrUnknownType = errors.New("unknown message type")
	// ErrFieldType значение поля не соответствует раскладке
	ErrFieldType = errors.New("field type mismatch")
)

// Packet декодированное сообщение.
// Значения полей: FieldByte -> uint8, FieldSByte -> int8, FieldShort -> int16,
// FieldString -> string, FieldBytes -> []byte.
type Packet struct {
	Type   byte
	Fields []interface{}
}

// Decode разбирает одно сообщение из начала buf.
// Возвращает сообщение и число потреблённых байт. При ErrInsufficientData
// ничего не потребляется.
func (r *Registry) Decode(buf []byte) (Packet, int, error) {
	if len(buf) == 0 {
		return Packet{}, 0, ErrInsufficientData
	}

	tag := buf[0]
	layout, ok := r.layouts[tag]
	if !ok {
		return Packet{}, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownType, tag)
	}

	total := 1 + layout.Size()
	if len(buf) < total {
		return Packet{}, 0, ErrInsufficientData
	}

	pkt := Packet{Type: tag, Fields: make([]interface{}, 0, len(layout.Fields))}
	off := 1
	for _, kind := range layout.Fields {
		switch kind {
		case FieldByte:
			pkt.Fields = append(pkt.Fields, buf[off])
		case FieldSByte:
			pkt.Fields = append(pkt.Fields, int8(buf[off]))
		case FieldShort:
			pkt.Fields = append(pkt.Fields, int16(binary.BigEndian.Uint16(buf[off:])))
		case FieldString:
			pkt.Fields = append(pkt.Fields, strings.TrimRight(string(buf[off:off+StringSize]), " \x00"))
		case FieldBytes:
			data := make([]byte, ByteArraySize)
			copy(data, buf[off:off+ByteArraySize])
			pkt.Fields = append(pkt.Fields, data)
		}
		off += kind.Size()
	}

	return pkt, total, nil
}

// Encode кодирует сообщение типа tag. Числовые поля принимают любые целые
// типы и усекаются до ширины поля (255 в sbyte даёт -1).
func (r *Registry) Encode(tag byte, fields ...interface{}) ([]byte, error) {
	layout, ok := r.layouts[tag]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, tag)
	}
	if len(fields) != len(layout.Fields) {
		return nil, fmt.Errorf("%w: %s expects %d fields, got %d",
			ErrFieldType, layout.Name, len(layout.Fields), len(fields))
	}

	out := make([]byte, 1+layout.Size())
	out[0] = tag
	off := 1
	for i, kind := range layout.Fields {
		switch kind {
		case FieldByte, FieldSByte:
			v, err := intValue(fields[i])
			if err != nil {
				return nil, fmt.Errorf("%s field %d: %w", layout.Name, i, err)
			}
			out[off] = byte(v)
		case FieldShort:
			v, err := intValue(fields[i])
			if err != nil {
				return nil, fmt.Errorf("%s field %d: %w", layout.Name, i, err)
			}
			binary.BigEndian.PutUint16(out[off:], uint16(v))
		case FieldString:
			s, ok := fields[i].(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s field %d must be string", ErrFieldType, layout.Name, i)
			}
			putString(out[off:off+StringSize], s)
		case FieldBytes:
			data, ok := fields[i].([]byte)
			if !ok {
				return nil, fmt.Errorf("%w: %s field %d must be []byte", ErrFieldType, layout.Name, i)
			}
			if len(data) > ByteArraySize {
				return nil, fmt.Errorf("%w: %s field %d longer than %d bytes", ErrFieldType, layout.Name, i, ByteArraySize)
			}
			// остаток уже заполнен нулями
			copy(out[off:off+ByteArraySize], data)
		}
		off += kind.Size()
	}

	return out, nil
}

// MustEncode как Encode, но паникует при ошибке раскладки.
// Используется для сообщений, собираемых сервером из известных значений.
func (r *Registry) MustEncode(tag byte, fields ...interface{}) []byte {
	data, err := r.Encode(tag, fields...)
	if err != nil {
		panic(err)
	}
	return data
}

// putString записывает строку, обрезанную до 64 байт и дополненную пробелами
func putString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

func intValue(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %T is not an integer", ErrFieldType, v)
	}
}

// Decode разбирает сообщение реестром Classic
func Decode(buf []byte) (Packet, int, error) {
	return Classic.Decode(buf)
}

// Encode кодирует сообщение реестром Classic
func Encode(tag byte, fields ...interface{}) ([]byte, error) {
	return Classic.Encode(tag, fields...)
}

// Accessors. Индексы соответствуют порядку полей в раскладке; несовпадение
// типа возвращает нулевое значение.

func (p Packet) Byte(i int) uint8 {
	v, _ := p.field(i).(uint8)
	return v
}

func (p Packet) SByte(i int) int8 {
	v, _ := p.field(i).(int8)
	return v
}

func (p Packet) Short(i int) int16 {
	v, _ := p.field(i).(int16)
	return v
}

func (p Packet) Text(i int) string {
	v, _ := p.field(i).(string)
	return v
}

func (p Packet) Bytes(i int) []byte {
	v, _ := p.field(i).([]byte)
	return v
}

func (p Packet) field(i int) interface{} {
	if i < 0 || i >= len(p.Fields) {
		return nil
	}
	return p.Fields[i]
}
