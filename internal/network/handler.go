package network

import (
	"errors"
	"fmt"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/protocol"
)

// feed добавляет байты в буфер и обрабатывает все целые сообщения
func (s *Session) feed(data []byte) {
	if s.State() == StateClosed || s.kicking {
		return
	}
	s.buf = append(s.buf, data...)

	for len(s.buf) > 0 {
		pkt, n, err := s.server.codec.Decode(s.buf)
		if errors.Is(err, protocol.ErrInsufficientData) {
			return
		}
		if err != nil {
			s.logger.LogProtocolError(s.label(), err, s.buf)
			s.server.metrics.Violation()
			s.buf = nil
			s.kicking = true
			s.schedule(timerClose, s.server.opts.KickGrace, func() { s.terminate("protocol violation") })
			return
		}
		s.buf = s.buf[n:]
		s.server.metrics.Decoded(s.server.codec.Name(pkt.Type))

		s.handle(pkt)
		if s.kicking || s.State() == StateClosed {
			s.buf = nil
			return
		}
	}
	s.buf = nil
}

func (s *Session) handle(pkt protocol.Packet) {
	switch pkt.Type {
	case protocol.TypeIdentification:
		s.handleIdentification(pkt)
	case protocol.TypeSetBlockClient:
		s.handleSetBlock(pkt)
	case protocol.TypePosition:
		s.handlePosition(pkt)
	case protocol.TypeMessage:
		s.handleMessage(pkt.Text(1))
	case protocol.TypeLevelInitialize:
		s.Kick("Sorry, but this is a Classic-only server.")
	case protocol.TypePing:
	default:
		s.logger.Debug("Необработанное сообщение %s от %s", s.server.codec.Name(pkt.Type), s.label())
	}
}

// handleIdentification рукопожатие: версия, ключ, баны, занятые имена, вход в мир
func (s *Session) handleIdentification(pkt protocol.Packet) {
	srv := s.server
	version, name, key := pkt.Byte(0), pkt.Text(1), pkt.Text(2)

	if s.Identified() {
		s.Kick("You already logged in!")
		return
	}
	if version != protocol.ProtocolVersion {
		s.Kick("Wrong protocol.")
		return
	}
	if name == "" {
		s.Kick("Incorrect authentication, please try again.")
		return
	}
	if !auth.SameNetwork(hostOf(s.conn.LocalAddr()), s.ip) && !auth.VerifyProof(srv.opts.Salt, name, key) {
		s.Kick("Incorrect authentication, please try again.")
		return
	}

	s.mu.Lock()
	s.username = name
	s.mu.Unlock()

	if res, ok := s.hook(hooks.PrePlayerConnect, hooks.Args{"client": s}); !ok || res.Kind == hooks.Veto {
		return
	}

	s.mu.Lock()
	s.state = StateIdentified
	s.loading = true
	s.mu.Unlock()

	if srv.registry.IsBanned(name) {
		s.Kick("You are banned: " + srv.registry.BanReason(name))
		return
	}

	if s.overCapacity {
		if srv.registry.GlobalRank(name) < authz.Helper {
			s.Kick("The server is full.")
			return
		}
		id, err := srv.registry.ClaimReservedID()
		if err != nil {
			s.Kick("The server is full.")
			return
		}
		s.mu.Lock()
		s.id = id
		s.overCapacity = false
		s.mu.Unlock()
	}

	if prior := srv.claimUsername(s); prior != nil {
		prior.post(func() { prior.Kick("You logged in on another computer.") })
	}

	w, err := srv.worlds.Open(srv.opts.DefaultWorld)
	if err != nil {
		s.logger.Error("Не удалось открыть мир %s для %s: %v", srv.opts.DefaultWorld, name, err)
		s.Kick(internalErrorMessage)
		return
	}
	s.mu.Lock()
	s.world = w
	s.mu.Unlock()
	w.Join(s)

	userType := protocol.UserTypeNormal
	if s.Actor().Has(authz.Op) {
		userType = protocol.UserTypeOp
	}
	s.send(protocol.Identification(srv.opts.Name, srv.opts.MOTD, userType))

	srv.enqueue(task{kind: taskServerMessage, origin: s, text: fmt.Sprintf("%s has come online.", name)})
	s.logger.Info("Игрок %s вошёл (id=%d, ip=%s)", name, s.ID(), s.ip)

	s.schedule(timerLevel, srv.opts.LevelDelay, s.sendLevel)
	s.schedule(timerKeepalive, srv.opts.KeepaliveStart, s.keepalive)

	s.hook(hooks.OnPlayerConnect, hooks.Args{"client": s})
	srv.publish(eventbus.TypePlayerJoin, eventbus.PlayerEvent{Username: name, PlayerID: s.ID(), World: w.ID()})
}
