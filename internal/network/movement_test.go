package network

import (
	"testing"

	"github.com/annel0/blockverse/internal/hooks"
	"github.com/annel0/blockverse/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isPositionOf(id int) func(protocol.Packet) bool {
	return func(p protocol.Packet) bool {
		return p.Type == protocol.TypePosition && int(p.SByte(0)) == id
	}
}

func TestMovementIsBroadcast(t *testing.T) {
	_, a, b := twoPlayers(t)

	a.move(100, 200, 300, 10, 20)
	p := b.expect(isPositionOf(a.session.ID()), "перемещения")
	assert.EqualValues(t, 100, p.Short(1))
	assert.EqualValues(t, 200, p.Short(2))
	assert.EqualValues(t, 300, p.Short(3))
	assert.EqualValues(t, 10, p.Byte(4))
	assert.EqualValues(t, 20, p.Byte(5))

	x, y, z, _, _ := a.session.Position()
	assert.Equal(t, []int{100, 200, 300}, []int{x, y, z})
}

func TestOrientationOnlyUpdate(t *testing.T) {
	_, a, b := twoPlayers(t)
	x, y, z, _, _ := a.session.Position()

	a.move(x, y, z, 64, 32)
	p := b.expectType(protocol.TypeOrientationUpdate)
	assert.EqualValues(t, a.session.ID(), p.SByte(0))
	assert.EqualValues(t, 64, p.Byte(1))
	assert.EqualValues(t, 32, p.Byte(2))
}

func TestStandingStillIsNotBroadcast(t *testing.T) {
	_, a, b := twoPlayers(t)
	x, y, z, yaw, pitch := a.session.Position()

	a.move(x, y, z, yaw, pitch)
	a.chat("sync")
	frames := b.collect(isMessage("&falice:&f sync"), "синхронизации")
	assert.Zero(t, countFrames(frames, isPositionOf(a.session.ID())))
	assert.Zero(t, countFrames(frames, func(p protocol.Packet) bool { return p.Type == protocol.TypeOrientationUpdate }))
}

func TestFrozenPlayerIsTeleportedBack(t *testing.T) {
	_, a, b := twoPlayers(t)
	a.session.SetFrozen(true)

	a.move(500, 500, 500, 7, 9)
	p := a.expect(isPositionOf(protocol.SelfID), "телепорта")
	// Спавн (8, 9, 8), центр блока
	assert.EqualValues(t, 8*32+16, p.Short(1))
	assert.EqualValues(t, 9*32+16, p.Short(2))
	assert.EqualValues(t, 8*32+16, p.Short(3))
	assert.EqualValues(t, 7, p.Byte(4))

	a.chat("sync")
	frames := b.collect(isMessage("&falice:&f sync"), "синхронизации")
	assert.Zero(t, countFrames(frames, isPositionOf(a.session.ID())))
}

func TestPosChangeVeto(t *testing.T) {
	env, a, b := twoPlayers(t)
	seen := make(chan int, 4)
	env.srv.hooks.Register(hooks.PosChange, func(args hooks.Args) hooks.Result {
		seen <- args["x"].(int)
		return hooks.Deny()
	})

	a.move(40, 300, 40, 0, 0)
	a.chat("sync")
	frames := b.collect(isMessage("&falice:&f sync"), "синхронизации")
	assert.Zero(t, countFrames(frames, isPositionOf(a.session.ID())), "вето скрывает перемещение")

	require.Equal(t, 40, <-seen)
	x, _, _, _, _ := a.session.Position()
	assert.Equal(t, 40, x, "позиция всё равно сохраняется")
}

func TestPositionDroppedWhileLoading(t *testing.T) {
	_, a, b := twoPlayers(t)
	before, _, _, _, _ := a.session.Position()

	a.session.post(func() { a.session.setLoading(true) })
	a.move(1, 2, 3, 0, 0)
	a.chat("sync")
	frames := b.collect(isMessage("&falice:&f sync"), "синхронизации")
	assert.Zero(t, countFrames(frames, isPositionOf(a.session.ID())))

	x, _, _, _, _ := a.session.Position()
	assert.Equal(t, before, x)
}

func TestPositionBeforeHandshakeIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.dial(t)
	c.move(1, 2, 3, 0, 0)
	c.join("alice")
	assert.Equal(t, StateActive, c.session.State())
}
