package network

import (
	"time"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/metrics"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
)

// handleSetBlock конвейер правки блока. Порядок шагов фиксирован:
// проверка личности, нормализация, допустимость id, наблюдатель,
// onBlockClick, зоны, режим, preBlockChange, blockDetect, blockChange,
// запись, эхо, рассылка.
func (s *Session) handleSetBlock(pkt protocol.Packet) {
	srv := s.server
	x, y, z := int(pkt.Short(0)), int(pkt.Short(1)), int(pkt.Short(2))
	created := pkt.Byte(3) != 0
	block := world.BlockID(pkt.Byte(4))

	if !s.Identified() {
		s.Kick("Provide an authentication before building.")
		return
	}
	if block == world.BlockDelete {
		block = world.BlockAir
	}

	actor := s.Actor()
	actor.BreakAdmincrete = s.canBreakAdmincrete()
	w := s.World()

	if block > world.MaxBlockID || world.IsDynamic(block) {
		s.SendServerMessage("Invalid blocks are not allowed!")
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditInvalid)
		return
	}
	if block == world.BlockSolid && !actor.Has(authz.Op) {
		s.SendServerMessage("Don't build admincrete!")
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditInvalid)
		return
	}
	if actor.Spectator {
		s.echo(w, x, y, z)
		s.SendServerMessage("Spectators cannot edit worlds.")
		srv.metrics.Edit(metrics.EditDenied)
		return
	}

	args := hooks.Args{"client": s, "x": x, "y": y, "z": z, "block": int(block), "created": created}
	click, ok := s.hook(hooks.OnBlockClick, args)
	if !ok {
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditFailed)
		return
	}
	if click.Kind == hooks.Veto {
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditVetoed)
		return
	}

	if dec := srv.authorizer.Authorize(actor, w, x, y, z); !dec.Allowed {
		if dec.Message != "" {
			if dec.Split {
				s.SendSplitServerMessage(dec.Message)
			} else {
				s.SendServerMessage(dec.Message)
			}
		}
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditDenied)
		return
	}

	// Клиент уже показывает выбранный блок (или воздух при удалении)
	displayed := block
	if !created {
		block = world.BlockAir
		displayed = world.BlockAir
	}
	args["block"] = int(block)

	pre, ok := s.hook(hooks.PreBlockChange, args)
	if !ok {
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditFailed)
		return
	}
	if v, set := pre.Int(); set {
		block = world.BlockID(v)
		args["block"] = v
	}
	if _, ok := s.hook(hooks.BlockDetect, args); !ok {
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditFailed)
		return
	}

	res, ok := s.hook(hooks.BlockChange, args)
	if !ok {
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditFailed)
		return
	}
	switch res.Kind {
	case hooks.Veto:
		s.echo(w, x, y, z)
		srv.metrics.Edit(metrics.EditVetoed)
		return
	case hooks.HandledExternally:
		srv.metrics.Edit(metrics.EditExternal)
		return
	case hooks.Override:
		// Override(true) ничего не меняет
		if v, ok := res.Int(); ok {
			block = world.BlockID(v)
		}
	}

	previous, err := w.Set(x, y, z, block)
	if err != nil {
		s.send(protocol.SetBlock(x, y, z, world.BlockAir))
		srv.metrics.Edit(metrics.EditOutside)
		return
	}
	if block != displayed {
		s.send(protocol.SetBlock(x, y, z, block))
	}

	s.recordEdit(Edit{X: x, Y: y, Z: z, Block: block, Previous: previous, At: time.Now()})
	srv.metrics.Edit(metrics.EditCommitted)
	if previous == block {
		return
	}

	srv.enqueue(task{kind: taskBlockSet, origin: s, world: w, x: x, y: y, z: z, block: block})
	srv.publish(eventbus.TypeBlockChange, eventbus.BlockEvent{
		Username: s.Username(), World: w.ID(), X: x, Y: y, Z: z, Block: block, Previous: previous,
	})
}

// echo возвращает клиенту истинный блок; вне мира это воздух
func (s *Session) echo(w *world.World, x, y, z int) {
	block := world.BlockAir
	if w != nil {
		if b, err := w.Get(x, y, z); err == nil {
			block = b
		}
	}
	s.send(protocol.SetBlock(x, y, z, block))
}
