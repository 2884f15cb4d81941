package logging

import (
	"fmt"
	"sort"
	"sync"
)

// Имена компонентов сервера
const (
	ComponentNetwork = "network"
	ComponentServer  = "server"
	ComponentGame    = "game"
	ComponentStorage = "storage"
	ComponentAPI     = "api"
)

// LoggerManager держит по одному логгеру на компонент и общий уровень консоли
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
	level   LogLevel
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = newLoggerManager()
	})
	return globalManager
}

func newLoggerManager() *LoggerManager {
	return &LoggerManager{loggers: make(map[string]*Logger), level: INFO}
}

// GetLogger возвращает логгер компонента, создавая его с текущим уровнем
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	logger, ok := lm.loggers[component]
	lm.mu.RUnlock()
	if ok {
		return logger, nil
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()
	if logger, ok := lm.loggers[component]; ok {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logger %s: %w", component, err)
	}
	logger.minConsoleLevel = lm.level
	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger при ошибке файла отдаёт консольный логгер без кэширования
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}

	lm.mu.RLock()
	level := lm.level
	lm.mu.RUnlock()
	return &Logger{
		component:       component,
		consoleLogger:   defaultLogger.consoleLogger,
		minConsoleLevel: level,
		minFileLevel:    ERROR + 1,
	}
}

// SetLevel меняет уровень консоли у всех компонентов, включая будущие
func (lm *LoggerManager) SetLevel(level LogLevel) {
	lm.mu.Lock()
	lm.level = level
	for _, l := range lm.loggers {
		l.mu.Lock()
		l.minConsoleLevel = level
		l.mu.Unlock()
	}
	lm.mu.Unlock()
}

// Components имена созданных логгеров
func (lm *LoggerManager) Components() []string {
	lm.mu.RLock()
	out := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		out = append(out, name)
	}
	lm.mu.RUnlock()
	sort.Strings(out)
	return out
}

// CloseAll закрывает файлы всех логгеров
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("close logger %s: %w", component, err)
		}
	}
	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// SetLevel уровень консоли для логгера по умолчанию и всех компонентов
func SetLevel(level LogLevel) {
	SetDefaultLevel(level)
	GetLoggerManager().SetLevel(level)
}

func GetComponentLogger(component string) *Logger {
	return GetLoggerManager().MustGetLogger(component)
}

func GetNetworkLogger() *Logger { return GetComponentLogger(ComponentNetwork) }

func GetServerLogger() *Logger { return GetComponentLogger(ComponentServer) }

func GetGameLogger() *Logger { return GetComponentLogger(ComponentGame) }

func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }

func GetAPILogger() *Logger { return GetComponentLogger(ComponentAPI) }
