package protocol

// Версия классического протокола
const ProtocolVersion = 7

// Размеры полей фиксированной ширины
const (
	StringSize    = 64
	ByteArraySize = 1024
)

// Теги типов сообщений classic protocol 7
const (
	TypeIdentification    byte = 0x00
	TypePing              byte = 0x01
	TypeLevelInitialize   byte = 0x02
	TypeLevelDataChunk    byte = 0x03
	TypeLevelFinalize     byte = 0x04
	TypeSetBlockClient    byte = 0x05
	TypeSetBlockServer    byte = 0x06
	TypeSpawnPlayer       byte = 0x07
	TypePosition          byte = 0x08
	TypePosOrientUpdate   byte = 0x09
	TypePositionUpdate    byte = 0x0a
	TypeOrientationUpdate byte = 0x0b
	TypeDespawnPlayer     byte = 0x0c
	TypeMessage           byte = 0x0d
	TypeDisconnect        byte = 0x0e
	TypeUpdateUserType    byte = 0x0f
)

// FieldKind тип поля в раскладке сообщения
type FieldKind int

const (
	FieldByte   FieldKind = iota // беззнаковый байт
	FieldSByte                   // знаковый байт
	FieldShort                   // int16 big-endian
	FieldString                  // 64 байта, дополнено пробелами
	FieldBytes                   // 1024 байта, дополнено нулями
)

// Size возвращает ширину поля на проводе
func (k FieldKind) Size() int {
	switch k {
	case FieldByte, FieldSByte:
		return 1
	case FieldShort:
		return 2
	case FieldString:
		return StringSize
	case FieldBytes:
		return ByteArraySize
	default:
		return 0
	}
}

func (k FieldKind) String() string {
	switch k {
	case FieldByte:
		return "byte"
	case FieldSByte:
		return "sbyte"
	case FieldShort:
		return "short"
	case FieldString:
		return "string"
	case FieldBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Layout фиксированная раскладка тела сообщения (без байта тега)
type Layout struct {
	Name   string
	Fields []FieldKind
}

// Size возвращает длину тела сообщения
func (l Layout) Size() int {
	n := 0
	for _, f := range l.Fields {
		n += f.Size()
	}
	return n
}

// Registry сопоставляет тег типа с раскладкой
type Registry struct {
	layouts map[byte]Layout
}

// NewRegistry создает пустой реестр
func NewRegistry() *Registry {
	return &Registry{layouts: make(map[byte]Layout)}
}

// Register регистрирует раскладку для тега
func (r *Registry) Register(tag byte, layout Layout) {
	r.layouts[tag] = layout
}

// Lookup возвращает раскладку для тега
func (r *Registry) Lookup(tag byte) (Layout, bool) {
	l, ok := r.layouts[tag]
	return l, ok
}

// Name возвращает имя типа или "unknown"
func (r *Registry) Name(tag byte) string {
	if l, ok := r.layouts[tag]; ok {
		return l.Name
	}
	return "unknown"
}

// Classic реестр classic protocol 7
var Classic = newClassicRegistry()

func newClassicRegistry() *Registry {
	r := NewRegistry()
	b, sb, sh, str, arr := FieldByte, FieldSByte, FieldShort, FieldString, FieldBytes

	r.Register(TypeIdentification, Layout{"identification", []FieldKind{b, str, str, b}})
	r.Register(TypePing, Layout{"ping", nil})
	r.Register(TypeLevelInitialize, Layout{"level_initialize", nil})
	r.Register(TypeLevelDataChunk, Layout{"level_data_chunk", []FieldKind{sh, arr, b}})
	r.Register(TypeLevelFinalize, Layout{"level_finalize", []FieldKind{sh, sh, sh}})
	r.Register(TypeSetBlockClient, Layout{"set_block_client", []FieldKind{sh, sh, sh, b, b}})
	r.Register(TypeSetBlockServer, Layout{"set_block_server", []FieldKind{sh, sh, sh, b}})
	r.Register(TypeSpawnPlayer, Layout{"spawn_player", []FieldKind{sb, str, sh, sh, sh, b, b}})
	r.Register(TypePosition, Layout{"position", []FieldKind{sb, sh, sh, sh, b, b}})
	r.Register(TypePosOrientUpdate, Layout{"position_orientation_update", []FieldKind{sb, sb, sb, sb, b, b}})
	r.Register(TypePositionUpdate, Layout{"position_update", []FieldKind{sb, sb, sb, sb}})
	r.Register(TypeOrientationUpdate, Layout{"orientation_update", []FieldKind{sb, b, b}})
	r.Register(TypeDespawnPlayer, Layout{"despawn_player", []FieldKind{sb}})
	r.Register(TypeMessage, Layout{"message", []FieldKind{sb, str}})
	r.Register(TypeDisconnect, Layout{"disconnect", []FieldKind{str}})
	r.Register(TypeUpdateUserType, Layout{"update_user_type", []FieldKind{b}})
	return r
}
