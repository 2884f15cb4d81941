package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/config"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/world"
)

// ServerIntegration связывает REST API с игровым сервером и управляет его жизненным циклом
type ServerIntegration struct {
	restServer *RestServer
	userRepo   auth.UserRepository
	bus        eventbus.EventBus
	sub        eventbus.Subscription
	eventsSub  eventbus.Subscription
	logger     *logging.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// IntegrationConfig зависимости API
type IntegrationConfig struct {
	API      config.APIConfig
	Game     Game
	Worlds   *world.Manager
	Registry auth.Registry
	Bus      eventbus.EventBus
	Metrics  *metrics.Metrics
	ServerID string
}

// NewServerIntegration создаёт репозиторий операторов из конфигурации и REST сервер
func NewServerIntegration(cfg IntegrationConfig) (*ServerIntegration, error) {
	logger := logging.GetAPILogger()

	if cfg.API.JWTSecret != "" {
		if err := auth.SetJWTSecret(cfg.API.JWTSecret); err != nil {
			return nil, fmt.Errorf("api.jwt_secret: %w", err)
		}
	} else {
		logger.Warn("api.jwt_secret не задан, токены не переживут перезапуск")
	}

	seed := make([]auth.Credentials, 0, len(cfg.API.Admins))
	for _, a := range cfg.API.Admins {
		seed = append(seed, auth.Credentials{Username: a.Username, PasswordHash: a.PasswordHash, IsAdmin: true})
	}
	userRepo, err := auth.NewMemoryUserRepo(seed...)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать репозиторий операторов: %w", err)
	}
	if len(seed) == 0 {
		logger.Warn("В api.admins нет учётных записей, административные маршруты недоступны")
	}

	serverID := cfg.ServerID
	if serverID == "" {
		serverID = "blockverse"
	}

	restServer := NewRestServer(Config{
		Port:     fmt.Sprintf(":%d", cfg.API.GetRESTPort()),
		UserRepo: userRepo,
		Game:     cfg.Game,
		Worlds:   cfg.Worlds,
		Registry: cfg.Registry,
		Bus:      cfg.Bus,
		Metrics:  cfg.Metrics,
		Webhooks: NewWebhookManager(serverID),
	})

	return &ServerIntegration{
		restServer: restServer,
		userRepo:   userRepo,
		bus:        cfg.Bus,
		logger:     logger,
	}, nil
}

// Start запускает HTTP сервер и доставку webhook'ов в фоне
func (si *ServerIntegration) Start(ctx context.Context) error {
	ctx, si.cancel = context.WithCancel(ctx)

	if si.bus != nil {
		sub, err := si.restServer.webhooks.Attach(ctx, si.bus)
		if err != nil {
			si.cancel()
			return fmt.Errorf("подписка webhook'ов на шину: %w", err)
		}
		si.sub = sub

		eventsSub, err := si.restServer.events.Attach(ctx, si.bus)
		if err != nil {
			sub.Unsubscribe()
			si.cancel()
			return fmt.Errorf("подписка истории событий на шину: %w", err)
		}
		si.eventsSub = eventsSub
	}

	si.wg.Add(2)
	go func() {
		defer si.wg.Done()
		si.restServer.webhooks.Run(ctx)
	}()
	go func() {
		defer si.wg.Done()
		if err := si.restServer.Start(); err != nil {
			si.logger.Error("Ошибка REST API сервера: %v", err)
		}
	}()
	return nil
}

// Stop останавливает HTTP сервер и воркер webhook'ов
func (si *ServerIntegration) Stop(ctx context.Context) error {
	if si.sub != nil {
		si.sub.Unsubscribe()
	}
	if si.eventsSub != nil {
		si.eventsSub.Unsubscribe()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := si.restServer.Stop(shutdownCtx)

	if si.cancel != nil {
		si.cancel()
	}
	si.wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("остановка REST API: %w", err)
	}
	si.logger.Info("REST API сервер остановлен")
	return nil
}

// UserRepository репозиторий операторов
func (si *ServerIntegration) UserRepository() auth.UserRepository {
	return si.userRepo
}

// RestServer REST сервер для дополнительной настройки
func (si *ServerIntegration) RestServer() *RestServer {
	return si.restServer
}
