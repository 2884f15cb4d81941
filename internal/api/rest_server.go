// Package api административный REST API сервера: вход операторов, сессии,
// миры, зоны и исходящие webhook'и.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/annel0/blockverse/internal/api/replay"
	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/middleware"
	"github.com/annel0/blockverse/internal/network"
	"github.com/annel0/blockverse/internal/world"
	"github.com/gin-gonic/gin"
)

// Version версия сервера в ответах API
const Version = "v0.3.0"

// Game операции игрового сервера, доступные через API
type Game interface {
	Snapshot() []network.SessionInfo
	Kick(username, reason string) bool
	Announce(msg string)
	MoveToWorld(username, worldID string) error
	RankChanged(username string)
}

// RestServer представляет REST API сервер
type RestServer struct {
	router     *gin.Engine
	httpServer *http.Server
	userRepo   auth.UserRepository
	game       Game
	worlds     *world.Manager
	registry   auth.Registry
	bus        eventbus.EventBus
	port       string
	stats      *HostStats
	webhooks   *WebhookManager
	events     *replay.MemoryStore
	logger     *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string              // адрес прослушивания, например ":8088"
	UserRepo auth.UserRepository // учётные записи операторов
	Game     Game                // игровой сервер
	Worlds   *world.Manager      // менеджер миров
	Registry auth.Registry       // ранги и баны
	Bus      eventbus.EventBus   // шина событий для webhook'ов (может быть nil)
	Metrics  *metrics.Metrics    // регистр метрик; nil отключает /metrics
	Webhooks *WebhookManager     // nil создаёт новый менеджер
	Events   *replay.MemoryStore // история событий; nil создаёт буфер по умолчанию
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Webhooks == nil {
		config.Webhooks = NewWebhookManager("blockverse")
	}
	if config.Events == nil {
		config.Events = replay.NewMemoryStore(defaultEventHistory)
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestLogger(nil).Handler())

	if config.Metrics != nil {
		promMw := middleware.NewPrometheusMiddleware("admin_api", config.Metrics.Registry())
		router.Use(promMw.Handler())
		promMw.RegisterMetricsEndpoint(router, config.Metrics.Registry())
	}

	server := &RestServer{
		router:   router,
		userRepo: config.UserRepo,
		game:     config.Game,
		worlds:   config.Worlds,
		registry: config.Registry,
		bus:      config.Bus,
		port:     config.Port,
		stats:    NewHostStats(),
		webhooks: config.Webhooks,
		events:   config.Events,
		logger:   logging.GetAPILogger(),
	}

	server.setupRoutes()
	server.httpServer = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(corsMiddleware())

	api := rs.router.Group("/api")

	// Вход без JWT
	api.POST("/auth/login", rs.handleLogin)

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/stats", rs.handleStats)
		protected.GET("/server", rs.handleServerInfo)
		protected.GET("/sessions", rs.handleSessions)
		protected.GET("/worlds", rs.handleWorlds)
		protected.GET("/worlds/:id", rs.handleWorld)

		admin := protected.Group("/admin")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/register", rs.handleAdminRegister)

			admin.POST("/kick", rs.handleKick)
			admin.POST("/announce", rs.handleAnnounce)
			admin.POST("/move", rs.handleMove)
			admin.POST("/rank", rs.handleRank)
			admin.POST("/ban", rs.handleBan)
			admin.POST("/unban", rs.handleUnban)

			admin.PATCH("/worlds/:id", rs.handlePatchWorld)
			admin.POST("/worlds/:id/zones", rs.handleAddZone)
			admin.DELETE("/worlds/:id/zones/:zone", rs.handleDeleteZone)
			admin.POST("/save", rs.handleSave)

			admin.GET("/webhooks", rs.handleGetWebhooks)
			admin.POST("/webhooks", rs.handleCreateWebhook)
			admin.GET("/webhooks/:id", rs.handleGetWebhook)
			admin.PATCH("/webhooks/:id", rs.handleUpdateWebhook)
			admin.DELETE("/webhooks/:id", rs.handleDeleteWebhook)
		}
	}

	rs.router.GET("/health", rs.handleHealth)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	UserID  uint64 `json:"user_id,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// RegisterRequest представляет запрос на регистрацию оператора
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IsAdmin  bool   `json:"is_admin"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, GenericResponse{Success: false, Message: msg})
}

func respondOK(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: msg, Data: data})
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{
			Success: false,
			Message: "Неверный формат запроса",
		})
		return
	}

	user, err := rs.userRepo.ValidateCredentials(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrUserNotFound) {
		rs.logger.Warn("Неудачный вход оператора %s с %s", req.Username, c.ClientIP())
		c.JSON(http.StatusUnauthorized, LoginResponse{
			Success: false,
			Message: "Неверное имя пользователя или пароль",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	token, err := auth.GenerateJWT(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{
			Success: false,
			Message: "Ошибка генерации токена",
		})
		return
	}

	rs.logger.Info("Оператор %s вошёл в API", user.Username)
	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешная авторизация",
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
	})
}

// handleAdminRegister создаёт учётную запись оператора (только для админов)
func (rs *RestServer) handleAdminRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	if len(req.Username) < 3 || len(req.Username) > 30 {
		respondError(c, http.StatusBadRequest, "Имя пользователя должно быть от 3 до 30 символов")
		return
	}
	if len(req.Password) < 6 {
		respondError(c, http.StatusBadRequest, "Пароль должен быть минимум 6 символов")
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка обработки пароля")
		return
	}

	user, err := rs.userRepo.CreateUser(req.Username, passwordHash, req.IsAdmin)
	if errors.Is(err, auth.ErrUserExists) {
		respondError(c, http.StatusConflict, "Пользователь уже существует")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Ошибка создания пользователя")
		return
	}

	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Пользователь успешно создан",
		Data: map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
			"is_admin": user.IsAdmin,
		},
	})
}

// handleStats возвращает статистику сервера
func (rs *RestServer) handleStats(c *gin.Context) {
	stats := map[string]interface{}{
		"server": rs.stats.Snapshot(),
	}
	if rs.game != nil {
		stats["sessions"] = len(rs.game.Snapshot())
	}
	if rs.worlds != nil {
		stats["worlds"] = len(rs.worlds.List())
	}
	if rs.bus != nil {
		stats["eventbus"] = rs.bus.Metrics()
	}
	stats["webhooks"] = len(rs.webhooks.List())

	respondOK(c, "Статистика получена", stats)
}

// handleServerInfo краткая информация о сервере
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	respondOK(c, "Информация о сервере", map[string]interface{}{
		"version":   Version,
		"name":      "Blockverse",
		"status":    "running",
		"uptime":    rs.stats.Uptime(),
		"memory_mb": fmt.Sprintf("%.1f", rs.stats.MemoryMB()),
	})
}

// handleSessions список подключённых игроков
func (rs *RestServer) handleSessions(c *gin.Context) {
	sessions := rs.game.Snapshot()
	respondOK(c, "Список сессий", map[string]interface{}{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Handler HTTP-обработчик API (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Events история событий шины
func (rs *RestServer) Events() *replay.MemoryStore {
	return rs.events
}

// Webhooks менеджер исходящих webhook'ов
func (rs *RestServer) Webhooks() *WebhookManager {
	return rs.webhooks
}

// Start запускает REST сервер и блокируется до остановки
func (rs *RestServer) Start() error {
	rs.logger.Info("REST API слушает %s", rs.port)
	if err := rs.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("rest api: %w", err)
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь текущих запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpServer.Shutdown(ctx)
}
