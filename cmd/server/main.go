package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/blockverse/internal/api"
	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/command"
	"github.com/annel0/blockverse/internal/config"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/network"
	"github.com/annel0/blockverse/internal/storage"
	"github.com/annel0/blockverse/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $GAME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()
	logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))

	logging.Info("🎮 Запуск %s", cfg.Server.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ИДЕНТИЧНОСТЬ ===
	presence, closePresence := openPresence(ctx, cfg.Presence)
	defer closePresence()

	registry := auth.NewMemoryRegistry(cfg.Server.MaxPlayers, cfg.Server.ReservedSlots, presence)
	registry.LoadRanks(map[authz.Rank][]string{
		authz.Owner:    cfg.Ranks.Owners,
		authz.Director: cfg.Ranks.Directors,
		authz.Admin:    cfg.Ranks.Admins,
		authz.Mod:      cfg.Ranks.Mods,
		authz.Helper:   cfg.Ranks.Helpers,
	}, cfg.Ranks.Spectators)

	// === МИРЫ ===
	worldStore, err := storage.NewWorldStorage(cfg.Storage.DataPath)
	if err != nil {
		log.Fatalf("❌ Ошибка открытия хранилища миров: %v", err)
	}
	defer worldStore.Close()

	worlds := world.NewManager(cfg.Server.DefaultWorld, worldStore, world.NewGenerator(time.Now().UnixNano()))
	if _, err := worlds.Open(cfg.Server.DefaultWorld); err != nil {
		log.Fatalf("❌ Не удалось открыть мир %s: %v", cfg.Server.DefaultWorld, err)
	}

	// === ШИНА СОБЫТИЙ И МЕТРИКИ ===
	bus := openEventBus(cfg.EventBus)
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(ctx, bus); err != nil {
		logging.Warn("Логирование событий шины недоступно: %v", err)
	}

	m := metrics.New()
	go eventbus.NewMetricsExporter(bus, m.Registry()).Run(ctx)

	// === ИГРОВОЙ СЕРВЕР ===
	commands := command.NewRegistry()
	registerCommands(commands, registry)

	srv := network.NewServer(network.OptionsFromConfig(cfg.Server), network.Deps{
		Registry: registry,
		Worlds:   worlds,
		Hooks:    hooks.NewRegistry(),
		Commands: commands,
		Bus:      bus,
		Metrics:  m,
	})
	srv.Start(ctx)

	var wg sync.WaitGroup
	if cfg.Storage.AutosaveSeconds > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worlds.RunAutosave(ctx, time.Duration(cfg.Storage.AutosaveSeconds)*time.Second)
		}()
	}

	// === REST API ===
	integration, err := api.NewServerIntegration(api.IntegrationConfig{
		API:      cfg.API,
		Game:     srv,
		Worlds:   worlds,
		Registry: registry,
		Bus:      bus,
		Metrics:  m,
		ServerID: cfg.Server.Name,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания REST API интеграции: %v", err)
	}
	if err := integration.Start(ctx); err != nil {
		log.Fatalf("❌ Ошибка запуска REST API: %v", err)
	}

	errCh := make(chan error, 3)
	go func() {
		errCh <- m.Serve(ctx, fmt.Sprintf(":%d", cfg.Metrics.GetPort()))
	}()

	tcpAddr := fmt.Sprintf(":%d", cfg.Server.GetTCPPort())
	go func() {
		errCh <- srv.ListenAndServe(ctx, tcpAddr)
	}()
	if port := cfg.Server.GetKCPPort(); port > 0 {
		go func() {
			errCh <- srv.ListenAndServeKCP(ctx, fmt.Sprintf(":%d", port))
		}()
	}

	logging.Info("✅ Сервер запущен: TCP %s, REST API :%d", tcpAddr, cfg.API.GetRESTPort())

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал, завершение работы...")
	case err := <-errCh:
		if err != nil {
			logging.Error("❌ Слушатель остановился: %v", err)
		}
		stop()
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Остановка игрового сервера: %v", err)
	}
	if err := integration.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	wg.Wait()

	logging.Info("👋 Сервер успешно остановлен")
}

// openPresence подключает Redis, если он настроен; иначе время появления хранится в памяти
func openPresence(ctx context.Context, cfg config.PresenceConfig) (auth.PresenceRecorder, func()) {
	if cfg.RedisAddr == "" {
		return storage.NewMemoryPresenceRepo(), func() {}
	}

	rc := storage.DefaultRedisConfig()
	rc.Addr = cfg.RedisAddr
	rc.Password = cfg.RedisPassword
	rc.DB = cfg.RedisDB

	repo, err := storage.NewRedisPresenceRepo(ctx, rc)
	if err != nil {
		logging.Warn("Redis %s недоступен (%v), время появления хранится в памяти", cfg.RedisAddr, err)
		return storage.NewMemoryPresenceRepo(), func() {}
	}
	return repo, func() { repo.Close() }
}

// openEventBus подключает NATS JetStream, если задан URL; иначе шина в памяти
func openEventBus(cfg config.EventBusConfig) eventbus.EventBus {
	if cfg.URL != "" {
		jb, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
		if err == nil {
			logging.Info("Шина событий: JetStream %s, поток %s", cfg.URL, cfg.Stream)
			return jb
		}
		logging.Warn("JetStream недоступен (%v), используется шина в памяти", err)
	}
	return eventbus.NewMemoryBus(cfg.Capacity)
}
