package network

import (
	"fmt"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/eventbus"
	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
)

// ChangeToWorld переводит сессию в мир worldID и заново передаёт уровень.
// pos задаёт точку появления вместо спавна мира (может быть nil).
// Вызывается из цикла сессии.
func (s *Session) ChangeToWorld(worldID string, pos *world.Spawn) error {
	srv := s.server
	w, err := srv.worlds.Open(worldID)
	if err != nil {
		return fmt.Errorf("change to world %s: %w", worldID, err)
	}

	old := s.World()
	if old != nil {
		srv.enqueue(task{kind: taskWorldChange, origin: s, world: old, id: s.ID()})
		old.Leave(s)
	}

	s.mu.Lock()
	s.loading = true
	s.hasPosition = false
	s.world = w
	s.lastEdits = nil
	s.mu.Unlock()
	w.Join(s)
	s.hook(hooks.NewWorld, hooks.Args{"client": s, "world": w})

	s.initialPos = pos

	st := w.Status()
	if st.Archive {
		s.SendSplitServerMessage("This world is an archive, and will cease to exist once the last person leaves.")
		s.SendServerMessage("&cStaff: Please do not reboot this world.")
	}
	if st.Hidden {
		s.SendSplitServerMessage("&aThis world is hidden, and does not show up on the world list.")
	}
	w.ResetAccessCount()

	userType := protocol.UserTypeNormal
	if s.canBreakAdmincrete() {
		userType = protocol.UserTypeOp
	}
	s.send(protocol.Identification(
		fmt.Sprintf("%s: %s", srv.opts.Name, w.ID()),
		fmt.Sprintf("Entering world '%s'", w.ID()),
		userType,
	))

	fromID := ""
	if old != nil {
		fromID = old.ID()
	}
	// Reason хранит мир, из которого ушёл игрок
	srv.publish(eventbus.TypeWorldChange, eventbus.PlayerEvent{
		Username: s.Username(), PlayerID: s.ID(), World: w.ID(), Reason: fromID,
	})

	s.sendLevel()
	return nil
}

// SendRankUpdate сообщает об изменении ранга: хук rankChanged, новый тип
// пользователя и повторное появление с новым цветом имени
func (s *Session) SendRankUpdate() {
	s.hook(hooks.RankChanged, hooks.Args{"client": s})

	userType := protocol.UserTypeNormal
	if s.canBreakAdmincrete() || s.Actor().Has(authz.Op) {
		userType = protocol.UserTypeOp
	}
	s.send(protocol.UpdateUserType(userType))
	s.respawn()
}

// respawn показывает игрока остальным заново
func (s *Session) respawn() {
	if !s.spawned() {
		return
	}
	x, y, z, yaw, pitch := s.Position()
	s.server.enqueue(task{kind: taskPlayerRespawn, origin: s, world: s.World(), id: s.ID(),
		name: s.ColouredName(), x: x, y: y, z: z, yaw: yaw, pitch: pitch})
}
