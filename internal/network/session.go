package network

import (
	"fmt"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/logging"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
)

// State состояние сессии
type State int

const (
	StateConnecting State = iota
	StateIdentified
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// internalErrorMessage текст для игрока при внутренней ошибке
const internalErrorMessage = "Internal server error, please report it."

// Ключи отложенных действий сессии
const (
	timerLevel     = "level"
	timerKeepalive = "keepalive"
	timerClose     = "close"
)

// Edit запись истории правок
type Edit struct {
	X, Y, Z  int
	Block    world.BlockID
	Previous world.BlockID
	At       time.Time
}

// editHistorySize сколько последних правок помнит сессия
const editHistorySize = 2

// Session одно подключение игрока.
// Все обработчики, таймеры и доставки рассылок выполняются в единственной
// горутине loop; поля под mu читаются другими горутинами.
type Session struct {
	server *Server
	conn   *conn
	logger *logging.Logger
	ip     string

	// Очередь функций для горутины loop
	inboxMu sync.Mutex
	inbox   []func()
	wake    chan struct{}
	done    chan struct{}
	closed  bool

	mu           sync.RWMutex
	id           int
	state        State
	username     string
	world        *world.World
	x, y, z      int
	yaw, pitch   byte
	hasPosition  bool
	loading      bool
	frozen       bool
	muted        map[string]struct{}
	overCapacity bool
	lastEdits    []Edit
	connectedAt  time.Time

	// Только для горутины loop
	buf          []byte
	timers       map[string]*time.Timer
	stream       *levelStream
	initialPos   *world.Spawn
	welcomed     bool
	kicking      bool
	overflowSeen bool
}

func newSession(srv *Server, raw net.Conn) *Session {
	s := &Session{
		server:      srv,
		logger:      srv.logger,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		id:          -1,
		state:       StateConnecting,
		muted:       make(map[string]struct{}),
		timers:      make(map[string]*time.Timer),
		connectedAt: time.Now(),
	}
	s.conn = newConn(raw, srv.opts.OutboundQueue, srv.logger)
	s.ip = hostOf(s.conn.RemoteAddr())
	return s
}

// start запускает цикл сессии и горутины соединения
func (s *Session) start() {
	go s.loop()
	s.conn.start(
		func(data []byte) { s.post(func() { s.feed(data) }) },
		func(err error) { s.post(func() { s.terminate(fmt.Sprintf("connection lost: %v", err)) }) },
	)
}

// post ставит функцию в очередь цикла сессии. После закрытия вызовы игнорируются.
func (s *Session) post(fn func()) {
	s.inboxMu.Lock()
	if s.closed {
		s.inboxMu.Unlock()
		return
	}
	s.inbox = append(s.inbox, fn)
	s.inboxMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) next() func() {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	if len(s.inbox) == 0 || s.closed {
		return nil
	}
	fn := s.inbox[0]
	s.inbox[0] = nil
	s.inbox = s.inbox[1:]
	return fn
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for fn := s.next(); fn != nil; fn = s.next() {
			s.run(fn)
		}
	}
}

// run выполняет fn; паника превращается во внутреннюю ошибку сессии
func (s *Session) run(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("Внутренняя ошибка в сессии %s (%s): %v\n%s", s.label(), s.ip, rec, debug.Stack())
			if s.State() != StateClosed {
				s.SendServerMessage(internalErrorMessage)
			}
		}
	}()
	fn()
}

// schedule заменяет отложенное действие key; выполняется в цикле сессии
func (s *Session) schedule(key string, d time.Duration, fn func()) {
	if s.State() == StateClosed {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.Stop()
	}
	s.timers[key] = time.AfterFunc(d, func() { s.post(fn) })
}

func (s *Session) cancelTimers() {
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// send ставит кадр в исходящую очередь. Переполнение закрывает медленного клиента.
func (s *Session) send(frame []byte) {
	if s.conn.Send(frame) {
		return
	}
	if s.State() == StateClosed || s.overflowSeen {
		return
	}
	s.overflowSeen = true
	s.logger.Warn("Очередь отправки %s переполнена, отключаем", s.label())
	s.post(func() { s.terminate("send queue overflow") })
}

// Kick отправляет Disconnect с причиной и закрывает соединение после паузы.
// Вызывается из цикла сессии.
func (s *Session) Kick(reason string) {
	if s.kicking || s.State() == StateClosed {
		return
	}
	s.kicking = true
	s.logger.Info("Отключаем %s (%s): %s", s.label(), s.ip, reason)
	s.server.metrics.Kicked()
	s.send(protocol.Disconnect(reason))
	s.schedule(timerClose, s.server.opts.KickGrace, func() { s.terminate("kicked: " + reason) })
}

// terminate завершает сессию; повторные вызовы ничего не делают
func (s *Session) terminate(reason string) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	w := s.world
	s.world = nil
	name := s.username
	id := s.id
	s.mu.Unlock()

	s.cancelTimers()
	s.stream = nil

	srv := s.server
	if w != nil {
		w.Leave(s)
		srv.enqueue(task{kind: taskPlayerLeave, origin: s, world: w, id: id})
	}
	if name != "" {
		srv.registry.RecordPresence(name)
		srv.releaseUsername(s)
	}
	srv.registry.ReleaseID(id)
	srv.removeSession(s)

	if name != "" {
		s.logger.Info("Disconnected %s (%s): %s", name, s.ip, reason)
		srv.hooks.Run(hooks.PlayerQuit, hooks.Args{"client": s, "reason": reason})
		worldID := ""
		if w != nil {
			worldID = w.ID()
		}
		srv.publish(eventbus.TypePlayerLeave, eventbus.PlayerEvent{
			Username: name, PlayerID: id, World: worldID, Reason: reason,
		})
	} else {
		s.logger.Debug("Закрыто неидентифицированное соединение %s: %s", s.ip, reason)
	}
	srv.metrics.SessionClosed()

	s.inboxMu.Lock()
	s.closed = true
	s.inbox = nil
	s.inboxMu.Unlock()
	close(s.done)
	s.conn.Close()
}

// ID идентификатор игрока в пределах сервера (-1, если не выдан)
func (s *Session) ID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Username имя игрока после рукопожатия
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// State текущее состояние
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identified прошла ли сессия рукопожатие
func (s *Session) Identified() bool {
	st := s.State()
	return st == StateIdentified || st == StateActive
}

// World текущий мир (nil до входа)
func (s *Session) World() *world.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.world
}

// IP адрес клиента без порта
func (s *Session) IP() string { return s.ip }

// Position позиция в 1/32 блока и ориентация
func (s *Session) Position() (x, y, z int, yaw, pitch byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.x, s.y, s.z, s.yaw, s.pitch
}

func (s *Session) setPosition(x, y, z int, yaw, pitch byte) {
	s.mu.Lock()
	s.x, s.y, s.z, s.yaw, s.pitch = x, y, z, yaw, pitch
	s.hasPosition = true
	s.mu.Unlock()
}

func (s *Session) spawned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPosition
}

// Loading идёт ли передача уровня
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	if !v && s.state == StateIdentified {
		s.state = StateActive
	}
	s.mu.Unlock()
}

// Frozen заморожен ли игрок
func (s *Session) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// SetFrozen замораживает или размораживает игрока
func (s *Session) SetFrozen(v bool) {
	s.mu.Lock()
	s.frozen = v
	s.mu.Unlock()
}

// Mute скрывает чат пользователя для этой сессии
func (s *Session) Mute(username string) {
	s.mu.Lock()
	s.muted[strings.ToLower(username)] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) Unmute(username string) {
	s.mu.Lock()
	delete(s.muted, strings.ToLower(username))
	s.mu.Unlock()
}

func (s *Session) Muted(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.muted[strings.ToLower(username)]
	return ok
}

// LastEdits последние применённые правки, новые первыми
func (s *Session) LastEdits() []Edit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Edit, len(s.lastEdits))
	copy(out, s.lastEdits)
	return out
}

func (s *Session) recordEdit(e Edit) {
	s.mu.Lock()
	s.lastEdits = append([]Edit{e}, s.lastEdits...)
	if len(s.lastEdits) > editHistorySize {
		s.lastEdits = s.lastEdits[:editHistorySize]
	}
	s.mu.Unlock()
}

// Actor права сессии в текущем мире
func (s *Session) Actor() authz.Actor {
	name := s.Username()
	reg := s.server.registry
	return authz.Actor{
		Username:  name,
		Rank:      authz.Resolve(reg.GlobalRank(name), s.World(), name),
		Spectator: reg.IsSpectator(name),
	}
}

// Colour цвет имени по рангу
func (s *Session) Colour() string {
	return authz.Colour(s.Actor(), s.server.opts.Colors)
}

// ColouredName имя с цветовым кодом ранга
func (s *Session) ColouredName() string {
	return s.Colour() + s.Username()
}

// CanEnter может ли сессия войти в мир w
func (s *Session) CanEnter(w *world.World) bool {
	return authz.CanEnter(s.Actor(), w)
}

func (s *Session) canBreakAdmincrete() bool {
	res, ok := s.hook(hooks.CanBreakAdmincrete, hooks.Args{"client": s})
	if !ok {
		return false
	}
	v, set := res.Bool()
	return set && v
}

// hook вызывает точку расширения от имени сессии. Если обработчик упал,
// игрок получает сообщение о внутренней ошибке и ok == false: операцию
// нужно прервать.
func (s *Session) hook(name hooks.Name, args hooks.Args) (res hooks.Result, ok bool) {
	res = s.server.hooks.Run(name, args)
	if res.Err != nil {
		if s.State() != StateClosed {
			s.SendServerMessage(internalErrorMessage)
		}
		return res, false
	}
	return res, true
}

// label имя для логов
func (s *Session) label() string {
	if name := s.Username(); name != "" {
		return name
	}
	return "#" + s.conn.RemoteAddr()
}

func (s *Session) keepalive() {
	if s.State() == StateClosed {
		return
	}
	s.send(protocol.Ping())
	s.schedule(timerKeepalive, s.server.opts.Keepalive, s.keepalive)
}

// hostOf выделяет хост из "host:port"; адреса без порта возвращаются как есть
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
