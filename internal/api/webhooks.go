package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/logging"
)

// Заголовки исходящих запросов
const (
	HeaderEventType = "X-Event-Type"
	HeaderServerID  = "X-Server-ID"
	HeaderSignature = "X-Webhook-Signature"
)

// AllEvents подписка на все типы событий
const AllEvents = "*"

// Webhook исходящий webhook, получающий события шины
type Webhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events"`
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // секунды
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

func (w *Webhook) subscribed(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType || e == AllEvents {
			return true
		}
	}
	return false
}

// WebhookDelivery тело запроса к webhook'у
type WebhookDelivery struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	ServerID  string          `json:"server_id"`
	Data      json.RawMessage `json:"data"`
}

// WebhookManager управляет исходящими webhook'ами. События приходят из шины
// в очередь и рассылаются одним воркером.
type WebhookManager struct {
	mu         sync.RWMutex
	webhooks   map[uint64]*Webhook
	nextID     uint64
	queue      chan *eventbus.Envelope
	httpClient *http.Client
	serverID   string
	retryDelay time.Duration
	logger     *logging.Logger
}

// NewWebhookManager создаёт менеджер; воркер запускается через Run
func NewWebhookManager(serverID string) *WebhookManager {
	return &WebhookManager{
		webhooks:   make(map[uint64]*Webhook),
		nextID:     1,
		queue:      make(chan *eventbus.Envelope, 1000),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		serverID:   serverID,
		retryDelay: time.Second,
		logger:     logging.GetAPILogger(),
	}
}

// Add добавляет webhook и возвращает его копию с присвоенным ID
func (m *WebhookManager) Add(w Webhook) Webhook {
	m.mu.Lock()
	defer m.mu.Unlock()

	w.ID = m.nextID
	m.nextID++
	w.CreatedAt = time.Now()
	w.Active = true
	if w.Timeout <= 0 {
		w.Timeout = 30
	}
	if w.RetryCount < 0 {
		w.RetryCount = 0
	}

	m.webhooks[w.ID] = &w
	return w
}

// List все webhook'и по возрастанию ID
func (m *WebhookManager) List() []Webhook {
	m.mu.RLock()
	out := make([]Webhook, 0, len(m.webhooks))
	for _, w := range m.webhooks {
		out = append(out, *w)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get возвращает webhook по ID
func (m *WebhookManager) Get(id uint64) (Webhook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.webhooks[id]
	if !ok {
		return Webhook{}, false
	}
	return *w, true
}

// WebhookUpdate частичное обновление; nil поля не меняются
type WebhookUpdate struct {
	Name       *string  `json:"name"`
	URL        *string  `json:"url"`
	Secret     *string  `json:"secret"`
	Events     []string `json:"events"`
	Active     *bool    `json:"active"`
	Timeout    *int     `json:"timeout"`
	RetryCount *int     `json:"retry_count"`
}

// Update применяет изменения к webhook'у
func (m *WebhookManager) Update(id uint64, u WebhookUpdate) (Webhook, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.webhooks[id]
	if !ok {
		return Webhook{}, false
	}
	if u.Name != nil {
		w.Name = *u.Name
	}
	if u.URL != nil {
		w.URL = *u.URL
	}
	if u.Secret != nil {
		w.Secret = *u.Secret
	}
	if len(u.Events) > 0 {
		w.Events = u.Events
	}
	if u.Active != nil {
		w.Active = *u.Active
	}
	if u.Timeout != nil && *u.Timeout > 0 {
		w.Timeout = *u.Timeout
	}
	if u.RetryCount != nil && *u.RetryCount >= 0 {
		w.RetryCount = *u.RetryCount
	}
	return *w, true
}

// Delete удаляет webhook
func (m *WebhookManager) Delete(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[id]; !ok {
		return false
	}
	delete(m.webhooks, id)
	return true
}

// Attach подписывает менеджер на все события шины.
// Переполнение очереди отбрасывает событие.
func (m *WebhookManager) Attach(ctx context.Context, bus eventbus.EventBus) (eventbus.Subscription, error) {
	return bus.Subscribe(ctx, eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		select {
		case m.queue <- ev:
		default:
			m.logger.Warn("Очередь webhook'ов переполнена, событие %s пропущено", ev.EventType)
		}
	})
}

// Run обрабатывает очередь до отмены ctx
func (m *WebhookManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			m.process(ctx, ev)
		}
	}
}

func (m *WebhookManager) process(ctx context.Context, ev *eventbus.Envelope) {
	m.mu.RLock()
	var targets []Webhook
	for _, w := range m.webhooks {
		if w.Active && w.subscribed(ev.EventType) {
			targets = append(targets, *w)
		}
	}
	m.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(WebhookDelivery{
		ID:        ev.ID,
		EventType: ev.EventType,
		Timestamp: ev.Timestamp,
		Source:    ev.Source,
		ServerID:  m.serverID,
		Data:      json.RawMessage(ev.Payload),
	})
	if err != nil {
		m.logger.Error("Ошибка маршалинга события %s: %v", ev.EventType, err)
		return
	}

	var wg sync.WaitGroup
	for _, w := range targets {
		wg.Add(1)
		go func(w Webhook) {
			defer wg.Done()
			m.record(w.ID, m.deliver(ctx, w, ev.EventType, body))
		}(w)
	}
	wg.Wait()
}

// deliver отправляет тело с повторами; true при ответе 2xx
func (m *WebhookManager) deliver(ctx context.Context, w Webhook, eventType string, body []byte) bool {
	for attempt := 0; attempt <= w.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(attempt) * m.retryDelay):
			}
		}

		err := m.post(ctx, w, eventType, body)
		if err == nil {
			m.logger.Debug("Событие %s доставлено в webhook %s", eventType, w.Name)
			return true
		}
		m.logger.Warn("Webhook %s, попытка %d/%d: %v", w.Name, attempt+1, w.RetryCount+1, err)
	}
	return false
}

func (m *WebhookManager) post(ctx context.Context, w Webhook, eventType string, body []byte) error {
	rctx, cancel := context.WithTimeout(ctx, time.Duration(w.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Blockverse/"+Version)
	req.Header.Set(HeaderEventType, eventType)
	req.Header.Set(HeaderServerID, m.serverID)
	if w.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(w.Secret, body))
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (m *WebhookManager) record(id uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, exists := m.webhooks[id]
	if !exists {
		return
	}
	now := time.Now()
	w.LastUsed = &now
	if !ok {
		w.FailureCount++
	}
}

// Sign подпись тела в формате "sha256=<hex hmac>"
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
