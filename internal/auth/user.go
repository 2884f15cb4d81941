package auth

import "time"

// User учётная запись оператора REST API (не игрока).
type User struct {
	ID           uint64    // Unique immutable identifier
	Username     string    // Unique username (case-insensitive)
	PasswordHash string    // bcrypt hashed password (60 chars)
	CreatedAt    time.Time // Account creation timestamp (server time)
	LastLogin    time.Time // Last successful login
	IsAdmin      bool      // Может менять миры и кикать игроков
}

// Credentials начальная учётная запись из конфигурации
type Credentials struct {
	Username     string
	PasswordHash string
	IsAdmin      bool
}
