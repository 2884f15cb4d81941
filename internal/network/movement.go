package network

import (
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/protocol"
)

func (s *Session) handlePosition(pkt protocol.Packet) {
	if !s.Identified() || s.Loading() {
		return
	}
	x, y, z := int(pkt.Short(1)), int(pkt.Short(2)), int(pkt.Short(3))
	yaw, pitch := pkt.Byte(4), pkt.Byte(5)

	ox, oy, oz, oyaw, opitch := s.Position()
	moved := x != ox || y != oy || z != oz
	turned := yaw != oyaw || pitch != opitch

	if s.Frozen() {
		s.TeleportTo(ox>>5, oy>>5, oz>>5, yaw, pitch)
		return
	}

	res, ok := s.hook(hooks.PosChange, hooks.Args{
		"client": s, "x": x, "y": y, "z": z, "yaw": int(yaw), "pitch": int(pitch),
	})
	s.setPosition(x, y, z, yaw, pitch)
	if !ok || res.Kind == hooks.Veto {
		return
	}

	w := s.World()
	switch {
	case moved:
		s.server.enqueue(task{kind: taskPlayerPos, origin: s, world: w, id: s.ID(),
			x: x, y: y, z: z, yaw: yaw, pitch: pitch})
	case turned:
		s.server.enqueue(task{kind: taskPlayerDir, origin: s, world: w, id: s.ID(),
			yaw: yaw, pitch: pitch})
	}
}

// TeleportTo переносит игрока в центр блока (x, y, z)
func (s *Session) TeleportTo(x, y, z int, yaw, pitch byte) {
	s.send(protocol.Position(protocol.SelfID, (x<<5)+16, (y<<5)+16, (z<<5)+16, yaw, pitch))
}
