// Package hooks содержит именованные точки расширения, которые вызывает ядро сервера.
package hooks

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/annel0/blockverse/internal/logging"
)

// Name имя точки расширения
type Name string

const (
	PrePlayerConnect   Name = "prePlayerConnect"
	OnPlayerConnect    Name = "onPlayerConnect"
	PlayerQuit         Name = "playerQuit"
	NewWorld           Name = "newWorld"
	OnBlockClick       Name = "onBlockClick"
	PreBlockChange     Name = "preBlockChange"
	BlockDetect        Name = "blockDetect"
	BlockChange        Name = "blockChange"
	PosChange          Name = "posChange"
	MessageSent        Name = "messageSent"
	MessageReceived    Name = "messageReceived"
	ChatUsername       Name = "chatUsername"
	RankChanged        Name = "rankChanged"
	CanBreakAdmincrete Name = "canBreakAdmincrete"
)

// ErrHandlerPanic обработчик упал с паникой
var ErrHandlerPanic = errors.New("hook handler panicked")

// Kind вид результата обработчика
type Kind int

const (
	Continue          Kind = iota // нет мнения
	Veto                          // запрет действия
	HandledExternally             // действие выполнено обработчиком, ядро ничего не делает
	Override                      // подмена значения (Value)
)

func (k Kind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Veto:
		return "veto"
	case HandledExternally:
		return "handled_externally"
	case Override:
		return "override"
	default:
		return "unknown"
	}
}

// Result результат вызова точки расширения.
// Err заполняется, если обработчик паниковал; Kind тогда Continue.
type Result struct {
	Kind  Kind
	Value interface{}
	Err   error
}

// Pass результат "нет мнения"
func Pass() Result { return Result{Kind: Continue} }

// Deny запрещает действие
func Deny() Result { return Result{Kind: Veto} }

// Handled сообщает, что действие уже выполнено
func Handled() Result { return Result{Kind: HandledExternally} }

// Replace подменяет значение
func Replace(v interface{}) Result { return Result{Kind: Override, Value: v} }

// Int возвращает подменённое целое значение
func (r Result) Int() (int, bool) {
	if r.Kind != Override {
		return 0, false
	}
	switch v := r.Value.(type) {
	case int:
		return v, true
	case byte:
		return int(v), true
	}
	return 0, false
}

// Bool возвращает подменённое булево значение
func (r Result) Bool() (bool, bool) {
	if r.Kind != Override {
		return false, false
	}
	v, ok := r.Value.(bool)
	return v, ok
}

// Text возвращает подменённую строку
func (r Result) Text() (string, bool) {
	if r.Kind != Override {
		return "", false
	}
	v, ok := r.Value.(string)
	return v, ok && v != ""
}

// Args аргументы вызова ("client", "x", "block", ...)
type Args map[string]interface{}

// Handler обработчик точки расширения
type Handler func(Args) Result

// Registry набор обработчиков по именам
type Registry struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
	logger   *logging.Logger
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Name][]Handler),
		logger:   logging.GetServerLogger(),
	}
}

// Register добавляет обработчик в конец цепочки
func (r *Registry) Register(name Name, h Handler) {
	r.mu.Lock()
	r.handlers[name] = append(r.handlers[name], h)
	r.mu.Unlock()
}

// Count число обработчиков точки
func (r *Registry) Count(name Name) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name])
}

// Run вызывает обработчики в порядке регистрации; первый результат,
// отличный от Continue, побеждает. Без обработчиков результат Continue.
// Паника обработчика перехватывается, логируется со стеком и
// возвращается как Err.
func (r *Registry) Run(name Name, args Args) Result {
	if r == nil {
		return Pass()
	}
	r.mu.RLock()
	chain := append([]Handler(nil), r.handlers[name]...)
	r.mu.RUnlock()

	for i, h := range chain {
		res, err := r.call(name, i, h, args)
		if err != nil {
			return Result{Kind: Continue, Err: err}
		}
		if res.Kind != Continue {
			return res
		}
	}
	return Pass()
}

func (r *Registry) call(name Name, idx int, h Handler, args Args) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s #%d: %v", ErrHandlerPanic, name, idx, rec)
			r.logger.Error("Паника в обработчике %s #%d: %v\n%s", name, idx, rec, debug.Stack())
		}
	}()
	return h(args), nil
}
