// Package command разбирает и передаёт текстовые команды игроков зарегистрированным обработчикам.
package command

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/blockverse/internal/logging"
)

var (
	// ErrUnknownCommand команда не зарегистрирована
	ErrUnknownCommand = errors.New("unknown command")
	// ErrCommandPanic обработчик упал с паникой
	ErrCommandPanic = errors.New("command panicked")
)

// Источники вызова команды
const (
	SourceUser    = "user"
	SourceConsole = "console"
)

// Caller тот, кто вызвал команду
type Caller interface {
	Username() string
	SendServerMessage(msg string)
	// SendServerList выводит список через запятую с переносом строк
	SendServerList(items []string)
}

// Handler обработчик команды. parts[0] содержит имя команды в исходном виде.
type Handler func(caller Caller, parts []string, source string) error

// Registry имена команд и их псевдонимы (без учёта регистра)
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Handler
	aliases  map[string]string
	logger   *logging.Logger
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Handler),
		aliases:  make(map[string]string),
		logger:   logging.GetServerLogger(),
	}
}

// Register регистрирует команду и её псевдонимы
func (r *Registry) Register(name string, h Handler, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	r.commands[name] = h
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

func (r *Registry) resolve(name string) (Handler, bool) {
	name = strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	h, ok := r.commands[name]
	return h, ok
}

// Has проверяет наличие команды или псевдонима
func (r *Registry) Has(name string) bool {
	_, ok := r.resolve(name)
	return ok
}

// Names зарегистрированные команды по алфавиту
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.commands))
	for n := range r.commands {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Dispatch вызывает команду. Паника обработчика перехватывается и
// возвращается как ErrCommandPanic; стек пишется в лог.
func (r *Registry) Dispatch(name string, parts []string, source string, caller Caller) (err error) {
	h, ok := r.resolve(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: /%s: %v", ErrCommandPanic, name, rec)
			r.logger.Error("Паника в команде /%s (вызвал %s): %v\n%s", name, caller.Username(), rec, debug.Stack())
		}
	}()

	if err := h(caller, parts, source); err != nil {
		return fmt.Errorf("/%s: %w", name, err)
	}
	return nil
}

// Parse разбивает строку "/cmd a b" на части; имя команды без "/" в нижнем регистре.
func Parse(line string) (string, []string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}
	return strings.ToLower(strings.TrimLeft(parts[0], "/")), parts
}
