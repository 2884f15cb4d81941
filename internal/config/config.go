package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Ranks    RanksConfig    `yaml:"ranks"`
	Storage  StorageConfig  `yaml:"storage"`
	Presence PresenceConfig `yaml:"presence"`
	EventBus EventBusConfig `yaml:"eventbus"`
	API      APIConfig      `yaml:"api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Name            string   `yaml:"name"`
	MOTD            string   `yaml:"motd"`
	Salt            string   `yaml:"salt"`
	TCPPort         int      `yaml:"tcp_port"`
	KCPPort         int      `yaml:"kcp_port"`
	MaxPlayers      int      `yaml:"max_players"`
	ReservedSlots   int      `yaml:"reserved_slots"`
	DefaultWorld    string   `yaml:"default_world"`
	DuplicateLogins bool     `yaml:"duplicate_logins"`
	Colors          bool     `yaml:"colors"`
	Greeting        []string `yaml:"greeting"`
	ChunkPacingMS   int      `yaml:"chunk_pacing_ms"`
	KeepaliveMS     int      `yaml:"keepalive_ms"`
}

// RanksConfig глобальные списки ролей (имена в любом регистре).
type RanksConfig struct {
	Owners     []string `yaml:"owners"`
	Directors  []string `yaml:"directors"`
	Admins     []string `yaml:"admins"`
	Mods       []string `yaml:"mods"`
	Helpers    []string `yaml:"helpers"`
	Spectators []string `yaml:"spectators"`
}

type StorageConfig struct {
	DataPath        string `yaml:"data_path"`
	AutosaveSeconds int    `yaml:"autosave_seconds"`
}

// PresenceConfig: пустой RedisAddr означает хранение в памяти.
type PresenceConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// EventBusConfig: пустой URL означает шину в памяти.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Capacity  int    `yaml:"capacity"`
}

type APIConfig struct {
	RESTPort  int         `yaml:"rest_port"`
	JWTSecret string      `yaml:"jwt_secret"`
	Admins    []AdminUser `yaml:"admins"`
}

// AdminUser учётная запись REST API; PasswordHash хранится в bcrypt.
type AdminUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type MetricsConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию, достаточную для запуска одиночного сервера.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:          "Blockverse",
			MOTD:          "Welcome to Blockverse!",
			Salt:          "blockverse",
			MaxPlayers:    32,
			ReservedSlots: 4,
			DefaultWorld:  "default",
			Colors:        true,
			Greeting:      []string{"Welcome to the server!"},
			ChunkPacingMS: 1,
			KeepaliveMS:   1000,
		},
		Storage: StorageConfig{
			DataPath:        "data/worlds",
			AutosaveSeconds: 300,
		},
		EventBus: EventBusConfig{
			Stream:    "EVENTS",
			Retention: 24,
			Capacity:  1024,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// GetTCPPort возвращает TCP порт с поддержкой fallback значений
func (s *ServerConfig) GetTCPPort() int {
	return getPortWithEnvFallback(s.TCPPort, "GAME_TCP_PORT", 25565)
}

// GetKCPPort возвращает KCP порт; 0 означает, что KCP слушатель выключен
func (s *ServerConfig) GetKCPPort() int {
	return getPortWithEnvFallback(s.KCPPort, "GAME_KCP_PORT", 0)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (a *APIConfig) GetRESTPort() int {
	return getPortWithEnvFallback(a.RESTPort, "GAME_REST_PORT", 8088)
}

// GetPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (m *MetricsConfig) GetPort() int {
	return getPortWithEnvFallback(m.Port, "GAME_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх Default().
// Если path == "", пытается прочитать из ENV GAME_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("GAME_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан, берём дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	if c.Server.MaxPlayers <= 0 || c.Server.MaxPlayers > 127 {
		return fmt.Errorf("server.max_players must be in 1..127, got %d", c.Server.MaxPlayers)
	}
	if c.Server.ReservedSlots < 0 || c.Server.MaxPlayers+c.Server.ReservedSlots > 127 {
		return fmt.Errorf("server.reserved_slots out of range: %d", c.Server.ReservedSlots)
	}
	if c.Server.DefaultWorld == "" {
		return fmt.Errorf("server.default_world must not be empty")
	}
	return nil
}
