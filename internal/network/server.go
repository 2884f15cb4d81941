package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/command"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
)

// eventSource имя источника событий на шине
const eventSource = "blockverse"

// Deps внешние компоненты, с которыми работают сессии
type Deps struct {
	Registry auth.Registry
	Worlds   *world.Manager
	Hooks    *hooks.Registry   // может быть nil
	Commands *command.Registry // может быть nil
	Bus      eventbus.EventBus // может быть nil
	Metrics  *metrics.Metrics  // может быть nil
}

// Server принимает соединения classic клиентов и держит индекс сессий.
type Server struct {
	opts       Options
	codec      *protocol.Registry
	registry   auth.Registry
	worlds     *world.Manager
	hooks      *hooks.Registry
	commands   *command.Registry
	authorizer *authz.Authorizer
	bus        eventbus.EventBus
	metrics    *metrics.Metrics
	logger     *logging.Logger

	mu        sync.RWMutex
	sessions  map[*Session]struct{}
	usernames map[string]*Session
	listeners []net.Listener

	tasks    chan task
	events   chan *eventbus.Envelope
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer создаёт сервер. Start запускает рассылку; Serve принимает соединения.
func NewServer(opts Options, deps Deps) *Server {
	opts = opts.withDefaults()
	commands := deps.Commands
	if commands == nil {
		commands = command.NewRegistry()
	}
	return &Server{
		opts:       opts,
		codec:      protocol.Classic,
		registry:   deps.Registry,
		worlds:     deps.Worlds,
		hooks:      deps.Hooks,
		commands:   commands,
		authorizer: authz.NewAuthorizer(opts.DefaultWorld),
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		logger:     logging.GetNetworkLogger(),
		sessions:   make(map[*Session]struct{}),
		usernames:  make(map[string]*Session),
		tasks:      make(chan task, opts.TaskQueue),
		events:     make(chan *eventbus.Envelope, opts.TaskQueue),
		stopped:    make(chan struct{}),
	}
}

// Options текущие параметры
func (srv *Server) Options() Options { return srv.opts }

// Start запускает диспетчер рассылки и публикацию событий
func (srv *Server) Start(ctx context.Context) {
	srv.wg.Add(2)
	go srv.dispatch(ctx)
	go srv.publishLoop(ctx)
}

// Serve принимает соединения до отмены ctx или закрытия ln
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv.mu.Lock()
	srv.listeners = append(srv.listeners, ln)
	srv.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-srv.stopped:
		}
		ln.Close()
	}()

	srv.logger.Info("Сервер принимает соединения на %s", ln.Addr())
	for {
		raw, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-srv.stopped:
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				srv.logger.Warn("Временная ошибка accept: %v", err)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}
		srv.HandleConn(raw)
	}
}

// ListenAndServe слушает TCP адрес
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return srv.Serve(ctx, ln)
}

// HandleConn заводит сессию поверх готового соединения
func (srv *Server) HandleConn(raw net.Conn) *Session {
	s := newSession(srv, raw)

	if id, err := srv.registry.ClaimID(); err != nil {
		s.overCapacity = true
	} else {
		s.id = id
	}

	srv.mu.Lock()
	srv.sessions[s] = struct{}{}
	srv.mu.Unlock()
	srv.metrics.SessionOpened()

	s.start()
	if srv.registry.IsIPBanned(s.ip) {
		reason := srv.registry.IPBanReason(s.ip)
		s.post(func() { s.Kick("You are banned: " + reason) })
	}
	srv.logger.Debug("Новое соединение %s (id=%d)", s.conn.RemoteAddr(), s.ID())
	return s
}

// claimUsername регистрирует имя сессии; возвращает прежнего владельца,
// которого нужно отключить
func (srv *Server) claimUsername(s *Session) *Session {
	key := strings.ToLower(s.Username())
	srv.mu.Lock()
	defer srv.mu.Unlock()
	prior := srv.usernames[key]
	srv.usernames[key] = s
	if prior == s || srv.opts.DuplicateLogins {
		return nil
	}
	return prior
}

// releaseUsername удаляет запись, только если она всё ещё принадлежит s
func (srv *Server) releaseUsername(s *Session) {
	key := strings.ToLower(s.Username())
	srv.mu.Lock()
	if srv.usernames[key] == s {
		delete(srv.usernames, key)
	}
	srv.mu.Unlock()
}

func (srv *Server) removeSession(s *Session) {
	srv.mu.Lock()
	delete(srv.sessions, s)
	srv.mu.Unlock()
}

// Sessions открытые сессии, упорядоченные по id
func (srv *Server) Sessions() []*Session {
	srv.mu.RLock()
	out := make([]*Session, 0, len(srv.sessions))
	for s := range srv.sessions {
		out = append(out, s)
	}
	srv.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// SessionByName сессия по имени без учёта регистра
func (srv *Server) SessionByName(username string) *Session {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.usernames[strings.ToLower(username)]
}

// SessionInfo сводка о сессии для API
type SessionInfo struct {
	ID          int       `json:"id"`
	Username    string    `json:"username"`
	World       string    `json:"world"`
	Rank        string    `json:"rank"`
	IP          string    `json:"ip"`
	State       string    `json:"state"`
	ConnectedAt time.Time `json:"connected_at"`

	Traffic ConnectionStats `json:"traffic"`
}

// Info сводка о сессии
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:          s.ID(),
		Username:    s.Username(),
		IP:          s.ip,
		State:       s.State().String(),
		ConnectedAt: s.connectedAt,
		Traffic:     s.conn.Stats(),
	}
	if w := s.World(); w != nil {
		info.World = w.ID()
	}
	if info.Username != "" {
		info.Rank = s.Actor().Rank.String()
	}
	return info
}

// Snapshot сводки всех сессий
func (srv *Server) Snapshot() []SessionInfo {
	sessions := srv.Sessions()
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// Kick отключает игрока по имени; false, если его нет
func (srv *Server) Kick(username, reason string) bool {
	s := srv.SessionByName(username)
	if s == nil {
		return false
	}
	s.post(func() { s.Kick(reason) })
	return true
}

// Announce серверное сообщение всем идентифицированным сессиям
func (srv *Server) Announce(msg string) {
	srv.enqueue(task{kind: taskServerMessage, text: msg})
}

// MoveToWorld переводит игрока в другой мир
func (srv *Server) MoveToWorld(username, worldID string) error {
	s := srv.SessionByName(username)
	if s == nil {
		return fmt.Errorf("%w: %s", auth.ErrUnknownUser, username)
	}
	w, err := srv.worlds.Open(worldID)
	if err != nil {
		return err
	}
	s.post(func() {
		if err := s.ChangeToWorld(w.ID(), nil); err != nil {
			s.logger.Warn("Не удалось перевести %s в %s: %v", username, worldID, err)
		}
	})
	return nil
}

// RankChanged сообщает сессии игрока об изменении ранга
func (srv *Server) RankChanged(username string) {
	if s := srv.SessionByName(username); s != nil {
		s.post(s.SendRankUpdate)
	}
}

// SetBlock меняет блок от имени сервера и рассылает изменение участникам мира
func (srv *Server) SetBlock(worldID string, x, y, z int, block world.BlockID) error {
	w, err := srv.worlds.Open(worldID)
	if err != nil {
		return err
	}
	previous, err := w.Set(x, y, z, block)
	if err != nil {
		return err
	}
	if previous != block {
		srv.enqueue(task{kind: taskBlockSet, world: w, x: x, y: y, z: z, block: block})
	}
	return nil
}

// publish ставит событие в очередь публикации; при заполненной очереди событие теряется
func (srv *Server) publish(eventType string, payload interface{}) {
	if srv.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventSource, eventType, 5, payload)
	if err != nil {
		srv.logger.Warn("Не удалось упаковать событие %s: %v", eventType, err)
		return
	}
	select {
	case srv.events <- ev:
	default:
		srv.logger.Debug("Очередь событий заполнена, %s пропущено", eventType)
	}
}

func (srv *Server) publishLoop(ctx context.Context) {
	defer srv.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-srv.stopped:
			return
		case ev := <-srv.events:
			if srv.bus == nil {
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := srv.bus.Publish(pctx, ev); err != nil {
				srv.logger.Warn("Не удалось опубликовать %s: %v", ev.EventType, err)
			}
			cancel()
		}
	}
}

// Shutdown отключает всех игроков и останавливает рассылку
func (srv *Server) Shutdown(ctx context.Context) error {
	sessions := srv.Sessions()
	for _, s := range sessions {
		s := s
		s.post(func() { s.Kick("Server is shutting down.") })
	}

	deadline := time.NewTicker(20 * time.Millisecond)
	defer deadline.Stop()
	for len(srv.Sessions()) > 0 {
		select {
		case <-ctx.Done():
			srv.stop()
			return ctx.Err()
		case <-deadline.C:
		}
	}

	// Прощальные кадры должны успеть уйти до закрытия процесса
	drained := make(chan struct{})
	go func() {
		for _, s := range sessions {
			s.conn.Wait()
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		srv.stop()
		return ctx.Err()
	}

	srv.stop()
	srv.wg.Wait()
	srv.logger.Info("Сервер остановлен")
	return nil
}

func (srv *Server) stop() {
	srv.stopOnce.Do(func() {
		close(srv.stopped)
		srv.mu.RLock()
		for _, ln := range srv.listeners {
			ln.Close()
		}
		srv.mu.RUnlock()
	})
}
