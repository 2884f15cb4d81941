package network

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/blockverse/internal/logging"
)

// ConnectionStats содержит статистику соединения
type ConnectionStats struct {
	PacketsSent   uint64    `json:"packets_sent"`
	BytesSent     uint64    `json:"bytes_sent"`
	BytesReceived uint64    `json:"bytes_received"`
	Dropped       uint64    `json:"dropped"` // кадры, не попавшие в очередь
	LastActivity  time.Time `json:"last_activity"`
	RemoteAddr    string    `json:"remote_addr"`
}

// conn обёртка над net.Conn: одна горутина читает, одна пишет.
// Исходящие кадры идут через ограниченную очередь sendBuffer.
type conn struct {
	raw    net.Conn
	logger *logging.Logger

	sendBuffer chan []byte

	// Обработчики событий; вызываются из горутин чтения и записи
	onData  func([]byte)
	onClose func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetsSent   uint64
	bytesSent     uint64
	bytesReceived uint64
	dropped       uint64
	lastActivity  atomic.Value // time.Time

	closeOnce sync.Once
}

// drainTimeout сколько писатель ждёт при досылке очереди после закрытия
const drainTimeout = time.Second

func newConn(raw net.Conn, bufferSize int, logger *logging.Logger) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		raw:        raw,
		logger:     logger,
		sendBuffer: make(chan []byte, bufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}
	c.lastActivity.Store(time.Now())
	return c
}

// start запускает горутины чтения и записи
func (c *conn) start(onData func([]byte), onClose func(error)) {
	c.onData = onData
	c.onClose = onClose
	c.wg.Add(2)
	go c.sendLoop()
	go c.receiveLoop()
}

// Send ставит кадр в очередь; false, если очередь переполнена или канал закрыт
func (c *conn) Send(frame []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.sendBuffer <- frame:
		return true
	default:
		atomic.AddUint64(&c.dropped, 1)
		return false
	}
}

// Pending число кадров в очереди на отправку
func (c *conn) Pending() int {
	return len(c.sendBuffer)
}

// Close останавливает канал; уже поставленные кадры досылаются
func (c *conn) Close() {
	c.cancel()
}

// Wait ждёт завершения горутин чтения и записи
func (c *conn) Wait() {
	c.wg.Wait()
}

// RemoteAddr адрес удалённого узла
func (c *conn) RemoteAddr() string {
	if a := c.raw.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// LocalAddr локальный адрес
func (c *conn) LocalAddr() string {
	if a := c.raw.LocalAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Stats возвращает статистику соединения
func (c *conn) Stats() ConnectionStats {
	return ConnectionStats{
		PacketsSent:   atomic.LoadUint64(&c.packetsSent),
		BytesSent:     atomic.LoadUint64(&c.bytesSent),
		BytesReceived: atomic.LoadUint64(&c.bytesReceived),
		Dropped:       atomic.LoadUint64(&c.dropped),
		LastActivity:  c.lastActivity.Load().(time.Time),
		RemoteAddr:    c.RemoteAddr(),
	}
}

func (c *conn) notifyClose(err error) {
	c.closeOnce.Do(func() {
		if c.onClose != nil {
			c.onClose(err)
		}
	})
}

// sendLoop отправляет кадры; после отмены контекста досылает очередь и закрывает сокет
func (c *conn) sendLoop() {
	defer c.wg.Done()
	defer c.raw.Close()

	for {
		select {
		case frame := <-c.sendBuffer:
			if err := c.write(frame); err != nil {
				c.logger.Debug("Ошибка записи в %s: %v", c.RemoteAddr(), err)
				c.notifyClose(err)
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			_ = c.raw.SetWriteDeadline(time.Now().Add(drainTimeout))
			for {
				select {
				case frame := <-c.sendBuffer:
					if err := c.write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *conn) write(frame []byte) error {
	n, err := c.raw.Write(frame)
	atomic.AddUint64(&c.bytesSent, uint64(n))
	if err != nil {
		return err
	}
	atomic.AddUint64(&c.packetsSent, 1)
	c.lastActivity.Store(time.Now())
	return nil
}

// receiveLoop читает сырые байты и отдаёт копию каждого куска в onData
func (c *conn) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := c.raw.Read(buf)
		if n > 0 {
			atomic.AddUint64(&c.bytesReceived, uint64(n))
			c.lastActivity.Store(time.Now())
			data := make([]byte, n)
			copy(data, buf[:n])
			c.onData(data)
		}
		if err != nil {
			select {
			case <-c.ctx.Done():
				// Сокет закрыт нами
			default:
				if errors.Is(err, io.EOF) {
					c.logger.Debug("Соединение %s закрыто удалённой стороной", c.RemoteAddr())
				} else {
					c.logger.Debug("Ошибка чтения из %s: %v", c.RemoteAddr(), err)
				}
			}
			c.notifyClose(err)
			return
		}
	}
}
