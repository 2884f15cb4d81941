package network

import (
	"time"

	"github.com/annel0/blockverse/internal/config"
)

// Options параметры сессий и рассылки
type Options struct {
	Name            string
	MOTD            string
	Salt            string
	DefaultWorld    string
	DuplicateLogins bool
	Colors          bool
	Greeting        []string

	ChunkPacing    time.Duration // пауза между кусками уровня
	ChunkBackoff   time.Duration // пауза при заполненной очереди отправки
	LevelDelay     time.Duration // задержка начала передачи после рукопожатия
	KeepaliveStart time.Duration
	Keepalive      time.Duration
	KickGrace      time.Duration // пауза между Disconnect и закрытием

	OutboundQueue int // ёмкость исходящей очереди сессии (кадры)
	HighWater     int // порог очереди, выше которого передача уровня ждёт
	TaskQueue     int // ёмкость очереди рассылки
}

// DefaultOptions значения по умолчанию
func DefaultOptions() Options {
	return Options{
		Name:           "Blockverse",
		MOTD:           "Welcome!",
		DefaultWorld:   "default",
		Colors:         true,
		ChunkPacing:    time.Millisecond,
		ChunkBackoff:   10 * time.Millisecond,
		LevelDelay:     100 * time.Millisecond,
		KeepaliveStart: time.Second,
		Keepalive:      time.Second,
		KickGrace:      200 * time.Millisecond,
		OutboundQueue:  4096,
		HighWater:      1024,
		TaskQueue:      4096,
	}
}

// OptionsFromConfig переносит настройки секции server
func OptionsFromConfig(cfg config.ServerConfig) Options {
	opts := DefaultOptions()
	opts.Name = cfg.Name
	opts.MOTD = cfg.MOTD
	opts.Salt = cfg.Salt
	opts.DefaultWorld = cfg.DefaultWorld
	opts.DuplicateLogins = cfg.DuplicateLogins
	opts.Colors = cfg.Colors
	opts.Greeting = cfg.Greeting
	if cfg.ChunkPacingMS > 0 {
		opts.ChunkPacing = time.Duration(cfg.ChunkPacingMS) * time.Millisecond
	}
	if cfg.KeepaliveMS > 0 {
		opts.Keepalive = time.Duration(cfg.KeepaliveMS) * time.Millisecond
	}
	return opts
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChunkPacing <= 0 {
		o.ChunkPacing = d.ChunkPacing
	}
	if o.ChunkBackoff <= 0 {
		o.ChunkBackoff = d.ChunkBackoff
	}
	if o.LevelDelay <= 0 {
		o.LevelDelay = d.LevelDelay
	}
	if o.KeepaliveStart <= 0 {
		o.KeepaliveStart = d.KeepaliveStart
	}
	if o.Keepalive <= 0 {
		o.Keepalive = d.Keepalive
	}
	if o.KickGrace <= 0 {
		o.KickGrace = d.KickGrace
	}
	if o.OutboundQueue <= 0 {
		o.OutboundQueue = d.OutboundQueue
	}
	if o.HighWater <= 0 || o.HighWater > o.OutboundQueue {
		o.HighWater = o.OutboundQueue / 4
	}
	if o.TaskQueue <= 0 {
		o.TaskQueue = d.TaskQueue
	}
	if o.DefaultWorld == "" {
		o.DefaultWorld = d.DefaultWorld
	}
	return o
}
