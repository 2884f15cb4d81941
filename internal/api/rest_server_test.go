package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/network"
	"github.com/annel0/blockverse/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGame struct {
	mu        sync.Mutex
	online    map[string]bool
	kicked    map[string]string
	announced []string
	moved     map[string]string
	ranked    []string
}

func newFakeGame(online ...string) *fakeGame {
	g := &fakeGame{
		online: make(map[string]bool),
		kicked: make(map[string]string),
		moved:  make(map[string]string),
	}
	for _, name := range online {
		g.online[name] = true
	}
	return g
}

func (g *fakeGame) Snapshot() []network.SessionInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []network.SessionInfo
	id := 0
	for name := range g.online {
		out = append(out, network.SessionInfo{ID: id, Username: name, World: "default", State: "identified"})
		id++
	}
	return out
}

func (g *fakeGame) Kick(username, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.online[username] {
		return false
	}
	g.kicked[username] = reason
	delete(g.online, username)
	return true
}

func (g *fakeGame) Announce(msg string) {
	g.mu.Lock()
	g.announced = append(g.announced, msg)
	g.mu.Unlock()
}

func (g *fakeGame) MoveToWorld(username, worldID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.online[username] {
		return fmt.Errorf("move %s: %w", username, auth.ErrUnknownUser)
	}
	g.moved[username] = worldID
	return nil
}

func (g *fakeGame) RankChanged(username string) {
	g.mu.Lock()
	g.ranked = append(g.ranked, username)
	g.mu.Unlock()
}

type apiEnv struct {
	server   *RestServer
	game     *fakeGame
	registry *auth.MemoryRegistry
	worlds   *world.Manager
	bus      eventbus.EventBus
	admin    string
	viewer   string
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	hash, err := auth.HashPassword("secret1")
	require.NoError(t, err)
	repo, err := auth.NewMemoryUserRepo(auth.Credentials{Username: "root", PasswordHash: hash, IsAdmin: true})
	require.NoError(t, err)

	worlds := world.NewManager("default", nil, nil)
	worlds.Add(world.Flat("default", 16, 16, 16))
	worlds.Add(world.Flat("lobby", 16, 16, 16))

	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })

	env := &apiEnv{
		game:     newFakeGame("alice", "bob"),
		registry: auth.NewMemoryRegistry(8, 2, nil),
		worlds:   worlds,
		bus:      bus,
	}
	env.server = NewRestServer(Config{
		UserRepo: repo,
		Game:     env.game,
		Worlds:   worlds,
		Registry: env.registry,
		Bus:      bus,
		Metrics:  metrics.New(),
	})

	env.admin, err = auth.GenerateJWT(&auth.User{ID: 1, Username: "root", IsAdmin: true})
	require.NoError(t, err)
	env.viewer, err = auth.GenerateJWT(&auth.User{ID: 2, Username: "viewer"})
	require.NoError(t, err)
	return env
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var resp GenericResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestLogin(t *testing.T) {
	env := newAPIEnv(t)

	t.Run("success", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body, _ := json.Marshal(LoginRequest{Username: "ROOT", Password: "secret1"})
		env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp LoginResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.True(t, resp.IsAdmin)

		claims, ok := auth.ValidateJWT(resp.Token)
		require.True(t, ok, "выданный токен должен проходить проверку")
		assert.Equal(t, "root", claims.Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, resp := env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "root", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("unknown user", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ghost", Password: "secret1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "root"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthRequired(t *testing.T) {
	env := newAPIEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "без токена")

	rec, _ = env.do(t, http.MethodGet, "/api/sessions", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "битый токен")

	rec, _ = env.do(t, http.MethodPost, "/api/admin/kick", env.viewer, KickRequest{Username: "alice"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "не администратор")
	assert.Empty(t, env.game.kicked)

	rec, _ = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health доступен без токена")
}

func TestSessionsAndServerInfo(t *testing.T) {
	env := newAPIEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/sessions", env.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["total"])

	rec, resp = env.do(t, http.MethodGet, "/api/server", env.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Version, resp.Data.(map[string]interface{})["version"])

	rec, resp = env.do(t, http.MethodGet, "/api/stats", env.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 2, stats["worlds"])
	assert.Contains(t, stats, "eventbus")
}

func TestKickAndAnnounce(t *testing.T) {
	env := newAPIEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/admin/kick", env.admin, KickRequest{Username: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultKickReason, env.game.kicked["alice"])

	rec, _ = env.do(t, http.MethodPost, "/api/admin/kick", env.admin, KickRequest{Username: "alice"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "повторный кик: игрок уже не в сети")

	rec, _ = env.do(t, http.MethodPost, "/api/admin/announce", env.admin, AnnounceRequest{Message: "&ereboot soon"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"&ereboot soon"}, env.game.announced)
}

func TestMoveAndRank(t *testing.T) {
	env := newAPIEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/admin/move", env.admin, MoveRequest{Username: "bob", World: "lobby"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lobby", env.game.moved["bob"])

	rec, _ = env.do(t, http.MethodPost, "/api/admin/move", env.admin, MoveRequest{Username: "ghost", World: "lobby"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/admin/rank", env.admin, RankRequest{Username: "bob", Rank: "Mod"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, authz.Mod, env.registry.GlobalRank("bob"))
	assert.Equal(t, []string{"bob"}, env.game.ranked)

	rec, _ = env.do(t, http.MethodPost, "/api/admin/rank", env.admin, RankRequest{Username: "bob", Rank: "emperor"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBanAndUnban(t *testing.T) {
	env := newAPIEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/admin/ban", env.admin, BanRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "пустой бан")

	rec, _ = env.do(t, http.MethodPost, "/api/admin/ban", env.admin, BanRequest{Username: "alice", IP: "10.0.0.5", Reason: "griefing"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.registry.IsBanned("alice"))
	assert.Equal(t, "griefing", env.registry.BanReason("alice"))
	assert.True(t, env.registry.IsIPBanned("10.0.0.5"))
	assert.Equal(t, "You are banned: griefing", env.game.kicked["alice"])

	rec, _ = env.do(t, http.MethodPost, "/api/admin/unban", env.admin, BanRequest{Username: "alice", IP: "10.0.0.5"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.registry.IsBanned("alice"))
	assert.False(t, env.registry.IsIPBanned("10.0.0.5"))
}

func TestWorldRoutes(t *testing.T) {
	env := newAPIEnv(t)

	rec, resp := env.do(t, http.MethodGet, "/api/worlds", env.viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["total"])
	assert.Equal(t, "default", data["default"])

	rec, _ = env.do(t, http.MethodGet, "/api/worlds/lobby", env.viewer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/worlds/nowhere", env.viewer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, exists := env.worlds.Get("nowhere")
	assert.False(t, exists, "запрос не должен создавать мир")

	private, owner := true, "alice"
	rec, _ = env.do(t, http.MethodPatch, "/api/admin/worlds/lobby", env.admin, WorldPatch{Private: &private, Owner: &owner})
	require.Equal(t, http.StatusOK, rec.Code)
	lobby, _ := env.worlds.Get("lobby")
	assert.True(t, lobby.Status().Private)
	assert.Equal(t, "alice", lobby.Status().Owner)
	assert.False(t, lobby.Status().Archive, "незаданные поля не меняются")
}

func TestZoneRoutes(t *testing.T) {
	env := newAPIEnv(t)
	lobby, _ := env.worlds.Get("lobby")

	rec, _ := env.do(t, http.MethodPost, "/api/admin/worlds/lobby/zones", env.admin, ZoneRequest{
		ID: "house", X1: 5, Y1: 0, Z1: 5, X2: 0, Y2: 4, Z2: 0, Users: []string{"Alice"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, lobby.UserZones(), 1)
	assert.True(t, lobby.UserZones()[0].Allows("alice"))

	rec, _ = env.do(t, http.MethodPost, "/api/admin/worlds/lobby/zones", env.admin, ZoneRequest{ID: "spawn", Rank: "op"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, lobby.RankZones(), 1)

	rec, _ = env.do(t, http.MethodPost, "/api/admin/worlds/lobby/zones", env.admin, ZoneRequest{ID: "bad", Rank: "emperor"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/admin/worlds/lobby/zones/house", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, lobby.UserZones())

	rec, _ = env.do(t, http.MethodDelete, "/api/admin/worlds/lobby/zones/house", env.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveWithoutStore(t *testing.T) {
	env := newAPIEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/admin/save", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, resp.Data.(map[string]interface{}), "saved")
}

func TestAdminRegister(t *testing.T) {
	env := newAPIEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/admin/register", env.admin, RegisterRequest{Username: "ops", Password: "hunter22"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/admin/register", env.admin, RegisterRequest{Username: "OPS", Password: "hunter22"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/admin/register", env.admin, RegisterRequest{Username: "x", Password: "hunter22"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "ops", Password: "hunter22"})
	assert.Equal(t, http.StatusOK, rec.Code, "новый оператор может войти")
}

func TestWebhookRoutes(t *testing.T) {
	env := newAPIEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/api/admin/webhooks", env.admin, CreateWebhookRequest{
		Name: "audit", URL: "http://example.com/hook", Events: []string{eventbus.TypeChat},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, created["id"])
	assert.Equal(t, true, created["active"])

	rec, _ = env.do(t, http.MethodPost, "/api/admin/webhooks", env.admin, CreateWebhookRequest{Name: "bad", URL: "not a url", Events: []string{"*"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	inactive := false
	rec, resp = env.do(t, http.MethodPatch, "/api/admin/webhooks/1", env.admin, WebhookUpdate{Active: &inactive})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["active"])

	rec, resp = env.do(t, http.MethodGet, "/api/admin/webhooks", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]interface{})["total"])

	rec, _ = env.do(t, http.MethodGet, "/api/admin/webhooks/abc", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/api/admin/webhooks/1", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/admin/webhooks/1", env.admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventRoutes(t *testing.T) {
	env := newAPIEnv(t)

	for _, name := range []string{"alice", "bob"} {
		ev, err := eventbus.NewEnvelope("test", eventbus.TypeChat, 5, eventbus.ChatEvent{Username: name, Text: "hi"})
		require.NoError(t, err)
		env.server.Events().Write(ev)
	}
	ev, err := eventbus.NewEnvelope("test", eventbus.TypePlayerJoin, 5, eventbus.PlayerEvent{Username: "alice"})
	require.NoError(t, err)
	env.server.Events().Write(ev)

	rec, resp := env.do(t, http.MethodGet, "/api/admin/events?type=Chat&username=alice", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, resp.Data.(map[string]interface{})["total"])

	rec, resp = env.do(t, http.MethodGet, "/api/admin/events?limit=2", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]interface{})["total"])

	rec, _ = env.do(t, http.MethodGet, "/api/admin/events?limit=x", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/admin/events?since=yesterday", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/admin/events/stats", env.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, resp.Data.(map[string]interface{})["total_events"])
}

func TestMetricsEndpointIsMounted(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodGet, "/health", "", nil)

	rec, _ := env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin_api")
}

func TestFormatUptime(t *testing.T) {
	cases := map[string]struct {
		secs int64
		want string
	}{
		"seconds": {secs: 42, want: "42с"},
		"minutes": {secs: 125, want: "2м 5с"},
		"hours":   {secs: 3*3600 + 61, want: "3ч 1м 1с"},
		"days":    {secs: 2*86400 + 3600, want: "2д 1ч 0м 0с"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatUptime(time.Duration(tc.secs)*time.Second))
		})
	}
}
