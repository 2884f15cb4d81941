package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/annel0/blockverse/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей (0 без ограничения)
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "blockverse:seen:",
		TTL:       90 * 24 * time.Hour,
	}
}

// RedisPresenceRepo хранит время последнего появления игроков в Redis
type RedisPresenceRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisPresenceRepo подключается к Redis и проверяет соединение
func NewRedisPresenceRepo(ctx context.Context, config *RedisConfig) (*RedisPresenceRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetStorageLogger().Info("Подключено к Redis %s", config.Addr)
	return NewRedisPresenceRepoWithClient(client, config.KeyPrefix, config.TTL), nil
}

// NewRedisPresenceRepoWithClient оборачивает готовый клиент
func NewRedisPresenceRepoWithClient(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisPresenceRepo {
	return &RedisPresenceRepo{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// RecordPresence записывает время появления (unix ms)
func (r *RedisPresenceRepo) RecordPresence(ctx context.Context, username string, at time.Time) error {
	value := strconv.FormatInt(at.UnixMilli(), 10)
	if err := r.client.Set(ctx, r.keyPrefix+username, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", username, err)
	}
	return nil
}

// LastSeen читает время последнего появления или ErrNotFound
func (r *RedisPresenceRepo) LastSeen(ctx context.Context, username string) (time.Time, error) {
	value, err := r.client.Get(ctx, r.keyPrefix+username).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("redis get %s: %w", username, err)
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad presence value %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}

// Close закрывает соединение
func (r *RedisPresenceRepo) Close() error {
	return r.client.Close()
}
