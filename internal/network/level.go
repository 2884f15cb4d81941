package network

import (
	"errors"
	"fmt"
	"io"

	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
)

// levelStream состояние передачи снапшота: Idle (nil) -> Streaming -> Done
type levelStream struct {
	world  *world.World
	reader io.Reader
	total  int
	sent   int
}

// Размер куска уровня на проводе
const chunkSize = protocol.ByteArraySize

// sendLevel начинает передачу текущего мира
func (s *Session) sendLevel() {
	if s.State() == StateClosed {
		return
	}
	w := s.World()
	if w == nil {
		return
	}
	s.server.registry.RecordPresence(s.Username())

	r, total, err := w.BeginSnapshot()
	if err != nil {
		s.logger.Error("Не удалось подготовить снапшот мира %s для %s: %v", w.ID(), s.label(), err)
		s.Kick(internalErrorMessage)
		return
	}
	s.setLoading(true)
	s.stream = &levelStream{world: w, reader: r, total: total}
	s.send(protocol.LevelInitialize())
	s.schedule(timerLevel, s.server.opts.ChunkPacing, s.streamChunk)
}

// streamChunk отправляет следующий кусок или завершает передачу.
// Пока исходящая очередь выше порога, шаг откладывается.
func (s *Session) streamChunk() {
	st := s.stream
	if s.State() == StateClosed || st == nil || st.world != s.World() {
		return
	}
	if s.conn.Pending() > s.server.opts.HighWater {
		s.schedule(timerLevel, s.server.opts.ChunkBackoff, s.streamChunk)
		return
	}

	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(st.reader, buf)
	if n > 0 {
		st.sent += n
		s.send(protocol.LevelDataChunk(buf[:n], percent(st.sent, st.total)))
		s.server.metrics.LevelSent(n)
		s.schedule(timerLevel, s.server.opts.ChunkPacing, s.streamChunk)
		return
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		s.logger.Error("Ошибка чтения снапшота %s для %s: %v", st.world.ID(), s.label(), err)
		s.Kick(internalErrorMessage)
		return
	}
	s.finishLevel()
}

func percent(sent, total int) byte {
	if total <= 0 || sent >= total {
		return 100
	}
	return byte(100 * sent / total)
}

// finishLevel: размеры мира, появление себя и остальных, приветствие
func (s *Session) finishLevel() {
	st := s.stream
	s.stream = nil
	w := st.world

	dx, dy, dz := w.Dims()
	s.send(protocol.LevelFinalize(dx, dy, dz))

	spawn := w.Spawn()
	if s.initialPos != nil {
		spawn = *s.initialPos
		s.initialPos = nil
	}
	x, y, z := (spawn.X<<5)+16, (spawn.Y<<5)+16, (spawn.Z<<5)+16
	yaw := byte(spawn.Heading * 255 / 360)
	s.setPosition(x, y, z, yaw, 0)
	// Себе имя не передаётся
	s.send(protocol.SpawnPlayer(protocol.SelfID, "", x, y, z, yaw, 0))

	for _, o := range w.Occupants() {
		other, ok := o.(*Session)
		if !ok || other == s || !other.spawned() {
			continue
		}
		ox, oy, oz, oyaw, opitch := other.Position()
		s.send(protocol.SpawnPlayer(other.ID(), other.ColouredName(), ox, oy, oz, oyaw, opitch))
	}

	s.setLoading(false)
	s.server.enqueue(task{kind: taskNewPlayer, origin: s, world: w, id: s.ID(),
		name: s.ColouredName(), x: x, y: y, z: z, yaw: yaw})

	if !s.welcomed {
		s.welcomed = true
		for _, line := range s.server.opts.Greeting {
			s.send(protocol.Message(normalMessageID, line))
		}
	} else {
		s.SendServerMessage(fmt.Sprintf("You are now in world '%s'", w.ID()))
	}
}
