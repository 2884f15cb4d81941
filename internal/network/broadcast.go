package network

import (
	"context"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
)

type taskKind int

const (
	taskBlockSet taskKind = iota
	taskPlayerPos
	taskPlayerDir
	taskNewPlayer
	taskPlayerLeave
	taskWorldChange
	taskPlayerRespawn
	taskChat
	taskWorldMessage
	taskStaffMessage
	taskWhisper
	taskServerMessage
)

var taskNames = [...]string{
	taskBlockSet:      "block_set",
	taskPlayerPos:     "player_pos",
	taskPlayerDir:     "player_dir",
	taskNewPlayer:     "new_player",
	taskPlayerLeave:   "player_leave",
	taskWorldChange:   "world_change",
	taskPlayerRespawn: "player_respawn",
	taskChat:          "chat",
	taskWorldMessage:  "world_message",
	taskStaffMessage:  "staff_message",
	taskWhisper:       "whisper",
	taskServerMessage: "server_message",
}

func (k taskKind) String() string {
	if k < 0 || int(k) >= len(taskNames) {
		return "unknown"
	}
	return taskNames[k]
}

// task элемент очереди рассылки. origin не получает собственных событий мира;
// world фиксируется в момент постановки.
type task struct {
	kind   taskKind
	origin *Session
	world  *world.World
	target *Session

	id         int
	x, y, z    int
	yaw, pitch byte
	block      world.BlockID

	name   string
	colour string
	text   string
}

// enqueue ставит задачу в очередь рассылки; после остановки сервера задачи отбрасываются
func (srv *Server) enqueue(t task) {
	select {
	case srv.tasks <- t:
	case <-srv.stopped:
	}
}

// dispatch единственный потребитель очереди: порядок задач одного
// источника сохраняется
func (srv *Server) dispatch(ctx context.Context) {
	defer srv.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-srv.stopped:
			return
		case t := <-srv.tasks:
			srv.metrics.Broadcast()
			for _, r := range srv.recipients(t) {
				r := r
				r.post(func() { r.deliver(t) })
			}
		}
	}
}

// recipients получатели задачи
func (srv *Server) recipients(t task) []*Session {
	var out []*Session
	switch t.kind {
	case taskChat, taskServerMessage:
		for _, s := range srv.Sessions() {
			if s.Identified() {
				out = append(out, s)
			}
		}
	case taskStaffMessage:
		for _, s := range srv.Sessions() {
			if s.Identified() && s.Actor().Has(authz.Mod) {
				out = append(out, s)
			}
		}
	case taskWhisper:
		if t.target != nil {
			out = append(out, t.target)
		}
	case taskWorldMessage:
		out = worldSessions(t.world, nil)
	default:
		out = worldSessions(t.world, t.origin)
	}
	return out
}

func worldSessions(w *world.World, except *Session) []*Session {
	if w == nil {
		return nil
	}
	var out []*Session
	for _, o := range w.Occupants() {
		if s, ok := o.(*Session); ok && s != except {
			out = append(out, s)
		}
	}
	return out
}

// deliver выполняется в цикле получателя
func (s *Session) deliver(t task) {
	if s.State() == StateClosed {
		return
	}
	switch t.kind {
	case taskBlockSet:
		s.send(protocol.SetBlock(t.x, t.y, t.z, t.block))
	case taskPlayerPos:
		s.send(protocol.Position(t.id, t.x, t.y, t.z, t.yaw, t.pitch))
	case taskPlayerDir:
		s.send(protocol.OrientationUpdate(t.id, t.yaw, t.pitch))
	case taskNewPlayer:
		if s.spawned() {
			s.send(protocol.SpawnPlayer(t.id, t.name, t.x, t.y, t.z, t.yaw, t.pitch))
		}
	case taskPlayerLeave, taskWorldChange:
		s.send(protocol.DespawnPlayer(t.id))
	case taskPlayerRespawn:
		s.send(protocol.DespawnPlayer(t.id))
		s.send(protocol.SpawnPlayer(t.id, t.name, t.x, t.y, t.z, t.yaw, t.pitch))
	case taskChat, taskWorldMessage, taskStaffMessage:
		s.deliverChat(t)
	case taskWhisper:
		if !s.Muted(t.name) {
			s.sendWhisper(t.colour, t.name, t.text)
		}
	case taskServerMessage:
		s.SendServerMessage(t.text)
	}
}
