package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// SubjectPrefix префикс subject'ов событий: blockverse.<EventType>
const SubjectPrefix = "blockverse"

// subject для типа события; пустой тип даёт wildcard
func subject(eventType string) string {
	if eventType == "" {
		return SubjectPrefix + ".*"
	}
	return SubjectPrefix + "." + eventType
}

// JetStreamBus EventBus поверх NATS JetStream. Внешние наблюдатели читают
// тот же поток, что и подписчики внутри процесса.
type JetStreamBus struct {
	nc        *nats.Conn
	js        nats.JetStreamContext
	stream    string
	published uint64
	consumed  uint64
	dropped   uint64
	inFlight  int64
}

// NewJetStreamBus подключается к NATS и создаёт поток, если его нет.
// url: nats://127.0.0.1:4222, stream: "EVENTS".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "EVENTS"
	}

	nc, err := nats.Connect(url, nats.Name("blockverse"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{subject("")},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream %s: %w", stream, err)
		}
	}

	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

// Publish пишет Envelope в JSON; ID события служит ключом дедупликации
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	subj := subject(ev.EventType)
	if _, err := jb.js.Publish(subj, data, nats.Context(ctx), nats.MsgId(ev.ID)); err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe создаёт эфемерного потребителя на каждый тип из фильтра
// (или один на все типы). Доставляются только новые события.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subjects := []string{subject("")}
	if len(f.Types) > 0 {
		subjects = subjects[:0]
		for _, t := range f.Types {
			subjects = append(subjects, subject(t))
		}
	}

	handle := func(msg *nats.Msg) {
		atomic.AddInt64(&jb.inFlight, 1)
		defer atomic.AddInt64(&jb.inFlight, -1)

		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			atomic.AddUint64(&jb.dropped, 1)
			_ = msg.Term()
			return
		}
		if matchFilter(&ev, f) {
			h(ctx, &ev)
			atomic.AddUint64(&jb.consumed, 1)
		}
		_ = msg.Ack()
	}

	subs := make(jetSubs, 0, len(subjects))
	for _, subj := range subjects {
		s, err := jb.js.Subscribe(subj, handle,
			nats.BindStream(jb.stream), nats.DeliverNew(), nats.ManualAck(), nats.AckWait(30*time.Second))
		if err != nil {
			subs.Unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", subj, err)
		}
		subs = append(subs, s)
	}
	return subs, nil
}

// jetSubs подписки одного Subscribe
type jetSubs []*nats.Subscription

func (s jetSubs) Unsubscribe() {
	for _, sub := range s {
		_ = sub.Unsubscribe()
	}
}

// Metrics возвращает текущие счётчики
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
		InFlight:  int(atomic.LoadInt64(&jb.inFlight)),
	}
}

// Close дожидается отправки буферизованных сообщений и закрывает соединение
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}
