package network

import (
	"testing"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/annel0/blockverse/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveToWorld(t *testing.T) {
	env, a, b := twoPlayers(t)
	aliceID := a.session.ID()

	require.NoError(t, env.srv.MoveToWorld("alice", "lobby"))

	ident := a.expectType(protocol.TypeIdentification)
	assert.Equal(t, "Test: lobby", ident.Text(1))
	assert.Equal(t, "Entering world 'lobby'", ident.Text(2))

	despawn := b.expectType(protocol.TypeDespawnPlayer)
	assert.EqualValues(t, aliceID, despawn.SByte(0))

	a.expectType(protocol.TypeLevelInitialize)
	a.expectType(protocol.TypeLevelFinalize)
	a.expect(func(p protocol.Packet) bool {
		return p.Type == protocol.TypeSpawnPlayer && p.SByte(0) == -1
	}, "появления себя")
	a.expectMessage("You are now in world 'lobby'")

	assert.Equal(t, "lobby", a.session.World().ID())
	assert.Equal(t, 1, env.world(t, "default").OccupantCount())
	assert.Equal(t, 1, env.world(t, "lobby").OccupantCount())
	assert.Empty(t, a.session.LastEdits())

	// Второй игрок в том же мире видит первого
	require.NoError(t, env.srv.MoveToWorld("bob", "lobby"))
	spawn := b.expect(func(p protocol.Packet) bool {
		return p.Type == protocol.TypeSpawnPlayer && int(p.SByte(0)) == aliceID
	}, "появления alice")
	assert.Equal(t, "&falice", spawn.Text(1))

	fromBob := a.expect(func(p protocol.Packet) bool {
		return p.Type == protocol.TypeSpawnPlayer && int(p.SByte(0)) == b.session.ID()
	}, "появления bob")
	assert.Equal(t, "&fbob", fromBob.Text(1))
}

func TestMoveToWorldErrors(t *testing.T) {
	env, _, _ := twoPlayers(t)
	err := env.srv.MoveToWorld("ghost", "lobby")
	assert.ErrorIs(t, err, auth.ErrUnknownUser)
}

func TestArchiveWorldNotice(t *testing.T) {
	env, a, _ := twoPlayers(t)
	env.world(t, "museum").UpdateStatus(func(s *world.Status) {
		s.Archive = true
		s.LastAccessCount = 5
	})

	require.NoError(t, env.srv.MoveToWorld("alice", "museum"))
	a.expectMessage("&cStaff: Please do not reboot this world.")
	a.expectMessage("You are now in world 'museum'")
	assert.Zero(t, env.world(t, "museum").Status().LastAccessCount)
}

func TestRankChangedRespawns(t *testing.T) {
	env, a, b := twoPlayers(t)
	aliceID := a.session.ID()

	env.reg.SetRank("alice", authz.Mod)
	env.srv.RankChanged("alice")

	ut := a.expectType(protocol.TypeUpdateUserType)
	assert.Equal(t, protocol.UserTypeOp, ut.Byte(0))

	despawn := b.expectType(protocol.TypeDespawnPlayer)
	assert.EqualValues(t, aliceID, despawn.SByte(0))
	spawn := b.expectType(protocol.TypeSpawnPlayer)
	assert.EqualValues(t, aliceID, spawn.SByte(0))
	assert.Equal(t, "&9alice", spawn.Text(1))
}

func TestRankChangedGuestStaysNormal(t *testing.T) {
	env, a, _ := twoPlayers(t)
	env.srv.RankChanged("alice")
	ut := a.expectType(protocol.TypeUpdateUserType)
	assert.Equal(t, protocol.UserTypeNormal, ut.Byte(0))
}
