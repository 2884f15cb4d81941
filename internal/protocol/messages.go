package protocol

// Конструкторы серверных сообщений. Идентификаторы игроков передаются как int:
// 255 (или -1) означает "сам игрок".

// SelfID идентификатор, которым сервер адресует самого клиента
const SelfID = 255

// UserType значения поля user type
const (
	UserTypeNormal byte = 0
	UserTypeOp     byte = 100
)

func Identification(name, motd string, userType byte) []byte {
	return Classic.MustEncode(TypeIdentification, ProtocolVersion, name, motd, userType)
}

func Ping() []byte {
	return Classic.MustEncode(TypePing)
}

func LevelInitialize() []byte {
	return Classic.MustEncode(TypeLevelInitialize)
}

// LevelDataChunk кодирует кусок снапшота; data не длиннее 1024 байт
func LevelDataChunk(data []byte, percent byte) []byte {
	return Classic.MustEncode(TypeLevelDataChunk, len(data), data, percent)
}

func LevelFinalize(x, y, z int) []byte {
	return Classic.MustEncode(TypeLevelFinalize, x, y, z)
}

func SetBlock(x, y, z int, block byte) []byte {
	return Classic.MustEncode(TypeSetBlockServer, x, y, z, block)
}

func SpawnPlayer(id int, name string, x, y, z int, yaw, pitch byte) []byte {
	return Classic.MustEncode(TypeSpawnPlayer, id, name, x, y, z, yaw, pitch)
}

func Position(id int, x, y, z int, yaw, pitch byte) []byte {
	return Classic.MustEncode(TypePosition, id, x, y, z, yaw, pitch)
}

func OrientationUpdate(id int, yaw, pitch byte) []byte {
	return Classic.MustEncode(TypeOrientationUpdate, id, yaw, pitch)
}

func DespawnPlayer(id int) []byte {
	return Classic.MustEncode(TypeDespawnPlayer, id)
}

func Message(id int, text string) []byte {
	return Classic.MustEncode(TypeMessage, id, text)
}

func Disconnect(reason string) []byte {
	return Classic.MustEncode(TypeDisconnect, reason)
}

func UpdateUserType(userType byte) []byte {
	return Classic.MustEncode(TypeUpdateUserType, userType)
}
