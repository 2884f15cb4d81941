package authz

import (
	"testing"

	"github.com/annel0/blockverse/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorld(id string) *world.World {
	return world.New(id, world.NewBlockStore(32, 32, 32))
}

func TestRankOrderAndNames(t *testing.T) {
	ranks := Ranks()
	for i := 1; i < len(ranks); i++ {
		assert.Greater(t, int(ranks[i]), int(ranks[i-1]))
	}
	for _, r := range ranks {
		parsed, ok := ParseRank(r.String())
		require.True(t, ok)
		assert.Equal(t, r, parsed)
	}
	_, ok := ParseRank("emperor")
	assert.False(t, ok)
	assert.True(t, Helper.Global())
	assert.False(t, WorldOwner.Global())
}

func TestResolveWorldRoles(t *testing.T) {
	w := newWorld("w")
	w.AddBuilder("bob")
	w.AddOp("olga")
	w.UpdateStatus(func(s *world.Status) { s.Owner = "Wendy" })

	assert.Equal(t, Builder, Resolve(Guest, w, "Bob"))
	assert.Equal(t, Op, Resolve(Guest, w, "olga"))
	assert.Equal(t, WorldOwner, Resolve(Guest, w, "wendy"))
	assert.Equal(t, Guest, Resolve(Guest, w, "nobody"))
	assert.Equal(t, Mod, Resolve(Mod, w, "bob"), "глобальный ранг не понижается")
	assert.Equal(t, Admin, Resolve(Admin, nil, "x"))
}

// Для любой пары рангов A > B всякая проверка, пройденная B, пройдена и A
func TestRankMonotonicity(t *testing.T) {
	ranks := Ranks()

	type scenario struct {
		name  string
		setup func(w *world.World)
		x     int
	}
	box := world.Box{X1: 0, Y1: 0, Z1: 0, X2: 10, Y2: 10, Z2: 10}
	scenarios := []scenario{
		{"locked world", func(w *world.World) {}, 5},
		{"default world", func(w *world.World) {}, 5},
		{"user zone", func(w *world.World) { w.AddUserZone(world.NewUserZone("u", box, "someone")) }, 5},
		{"admincrete", func(w *world.World) { _, _ = w.Set(5, 5, 5, world.BlockSolid) }, 5},
	}
	for _, r := range []Rank{Builder, Op, WorldOwner, Mod, Admin, Director, Owner} {
		r := r
		scenarios = append(scenarios, scenario{"rank zone " + r.String(), func(w *world.World) {
			w.UpdateStatus(func(s *world.Status) { s.Zoned = true })
			w.AddRankZone(world.NewRankZone("r", box, r.String()))
		}, 5})
	}

	for _, sc := range scenarios {
		id := "other"
		if sc.name == "default world" {
			id = "default"
		}
		w := newWorld(id)
		sc.setup(w)
		az := NewAuthorizer("default")

		for i, b := range ranks {
			for _, a := range ranks[i+1:] {
				junior := Actor{Username: "tester", Rank: b}
				senior := Actor{Username: "tester", Rank: a}
				for _, r := range ranks {
					if junior.Has(r) {
						assert.True(t, senior.Has(r), "%s должен иметь %s", a, r)
					}
				}
				if az.Authorize(junior, w, sc.x, 5, 5).Allowed {
					assert.True(t, az.Authorize(senior, w, sc.x, 5, 5).Allowed,
						"%s: %s разрешено, %s запрещено", sc.name, b, a)
				}
			}
		}
	}
}

func TestAuthorizeOutOfBounds(t *testing.T) {
	az := NewAuthorizer("default")
	d := az.Authorize(Actor{Username: "x", Rank: Owner}, newWorld("w"), -1, 0, 0)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Out of bounds.", d.Message)
}

func TestAuthorizeWorldFallback(t *testing.T) {
	az := NewAuthorizer("default")

	def := newWorld("default")
	assert.True(t, az.Authorize(Actor{Username: "b", Rank: Builder}, def, 1, 1, 1).Allowed)
	assert.True(t, az.Authorize(Actor{Username: "m", Rank: Mod}, def, 1, 1, 1).Allowed)

	d := az.Authorize(Actor{Username: "g", Rank: Guest}, def, 1, 1, 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Only Builder/Op and Mod+ may edit 'default'.", d.Message)

	other := newWorld("other")
	d = az.Authorize(Actor{Username: "g", Rank: Guest}, other, 1, 1, 1)
	assert.False(t, d.Allowed)
	assert.Equal(t, "This world is locked. You must be Builder/Op or Mod+ to build here.", d.Message)

	other.UpdateStatus(func(s *world.Status) { s.AllBuild = true })
	assert.True(t, az.Authorize(Actor{Username: "g", Rank: Guest}, other, 1, 1, 1).Allowed)
}

func TestAuthorizeAdmincrete(t *testing.T) {
	az := NewAuthorizer("default")
	w := newWorld("w")
	w.UpdateStatus(func(s *world.Status) { s.AllBuild = true })
	_, _ = w.Set(2, 2, 2, world.BlockSolid)

	assert.False(t, az.Authorize(Actor{Username: "b", Rank: Builder}, w, 2, 2, 2).Allowed)
	assert.True(t, az.Authorize(Actor{Username: "o", Rank: Op}, w, 2, 2, 2).Allowed)
	assert.True(t, az.Authorize(Actor{Username: "b", Rank: Builder, BreakAdmincrete: true}, w, 2, 2, 2).Allowed)
}

func TestUserZones(t *testing.T) {
	az := NewAuthorizer("default")
	w := newWorld("w")
	w.UpdateStatus(func(s *world.Status) { s.AllBuild = true })
	box := world.Box{X1: 0, Y1: 0, Z1: 0, X2: 10, Y2: 10, Z2: 10}
	w.AddUserZone(world.NewUserZone("home", box, "Alice", "bob"))

	assert.True(t, az.Authorize(Actor{Username: "alice"}, w, 5, 5, 5).Allowed)

	d := az.Authorize(Actor{Username: "carol"}, w, 5, 5, 5)
	assert.False(t, d.Allowed)
	assert.True(t, d.Split)
	assert.Equal(t, "You are not allowed to build in this zone. Only: alice, bob may.", d.Message)

	assert.True(t, az.Authorize(Actor{Username: "carol", Rank: Director}, w, 5, 5, 5).Allowed)

	// На границе зоны действует только all_build
	assert.True(t, az.Authorize(Actor{Username: "carol"}, w, 10, 5, 5).Allowed)
}

func TestEmptyUserZoneDeniesEveryone(t *testing.T) {
	az := NewAuthorizer("default")
	w := newWorld("w")
	w.AddUserZone(world.NewUserZone("sealed", world.Box{X2: 10, Y2: 10, Z2: 10}))

	d := az.Authorize(Actor{Username: "boss", Rank: Owner}, w, 5, 5, 5)
	assert.False(t, d.Allowed)
	assert.Empty(t, d.Message)
}

func TestDenyingUserZoneBlocksAllRankZone(t *testing.T) {
	az := NewAuthorizer("default")
	w := newWorld("w")
	box := world.Box{X2: 10, Y2: 10, Z2: 10}
	w.AddRankZone(world.NewRankZone("open", box, world.RankZoneAll))
	w.AddUserZone(world.NewUserZone("private", box, "alice"))

	d := az.Authorize(Actor{Username: "carol"}, w, 5, 5, 5)
	assert.False(t, d.Allowed, "отказ пользовательской зоны не проверяет ранговые зоны")

	// Без пользовательской зоны та же точка разрешена зоной "all"
	w2 := newWorld("w2")
	w2.AddRankZone(world.NewRankZone("open", box, world.RankZoneAll))
	assert.True(t, az.Authorize(Actor{Username: "carol"}, w2, 5, 5, 5).Allowed)
}

func TestOverlappingUserZonesFirstDenyingWins(t *testing.T) {
	az := NewAuthorizer("default")
	box := world.Box{X2: 10, Y2: 10, Z2: 10}

	build := func(order []world.UserZone) *world.World {
		w := newWorld("w")
		w.AddRankZone(world.NewRankZone("open", box, world.RankZoneAll))
		for _, z := range order {
			w.AddUserZone(z)
		}
		return w
	}
	a := world.NewUserZone("a", box, "alice")
	b := world.NewUserZone("b", box, "bob")

	d := az.Authorize(Actor{Username: "alice"}, build([]world.UserZone{a, b}), 5, 5, 5)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Message, "Only: bob may.")

	d = az.Authorize(Actor{Username: "carol"}, build([]world.UserZone{a, b}), 5, 5, 5)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Message, "Only: alice may.", "сообщение берётся из первой отказавшей зоны")
}

func TestZoneResolutionOrderIndependent(t *testing.T) {
	az := NewAuthorizer("default")
	zones := []world.UserZone{
		world.NewUserZone("a", world.Box{X1: 0, Y1: 0, Z1: 0, X2: 8, Y2: 8, Z2: 8}, "alice"),
		world.NewUserZone("b", world.Box{X1: 10, Y1: 0, Z1: 0, X2: 18, Y2: 8, Z2: 8}, "bob"),
		world.NewUserZone("c", world.Box{X1: 20, Y1: 0, Z1: 0, X2: 28, Y2: 8, Z2: 8}),
	}
	rankZones := []world.RankZone{
		world.NewRankZone("r1", world.Box{X1: 0, Y1: 10, Z1: 0, X2: 8, Y2: 20, Z2: 8}, "op"),
		world.NewRankZone("r2", world.Box{X1: 10, Y1: 10, Z1: 0, X2: 18, Y2: 20, Z2: 8}, world.RankZoneAll),
	}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 0, 2}}
	actors := []Actor{{Username: "alice"}, {Username: "bob", Rank: Op}, {Username: "carol", Rank: Builder}}

	var reference []bool
	for oi, order := range orders {
		w := newWorld("w")
		w.UpdateStatus(func(s *world.Status) { s.Zoned = true })
		for _, i := range order {
			w.AddUserZone(zones[i])
		}
		for i := range rankZones {
			idx := i
			if oi%2 == 1 {
				idx = len(rankZones) - 1 - i
			}
			w.AddRankZone(rankZones[idx])
		}

		var results []bool
		for _, a := range actors {
			for x := 0; x < 30; x += 3 {
				for y := 0; y < 22; y += 3 {
					results = append(results, az.Authorize(a, w, x, y, 4).Allowed)
				}
			}
		}
		if reference == nil {
			reference = results
			continue
		}
		assert.Equal(t, reference, results, "порядок вставки %v", order)
	}
}

func TestRankZones(t *testing.T) {
	az := NewAuthorizer("default")
	w := newWorld("w")
	box := world.Box{X2: 10, Y2: 10, Z2: 10}
	w.AddRankZone(world.NewRankZone("ops", box, "op"))

	// Без zoned ранговые зоны (кроме "all") не действуют
	d := az.Authorize(Actor{Username: "g"}, w, 5, 5, 5)
	assert.Equal(t, "This world is locked. You must be Builder/Op or Mod+ to build here.", d.Message)

	w.UpdateStatus(func(s *world.Status) { s.Zoned = true })
	d = az.Authorize(Actor{Username: "b", Rank: Builder}, w, 5, 5, 5)
	assert.False(t, d.Allowed)
	assert.Equal(t, "You must be an op to build here.", d.Message)

	assert.True(t, az.Authorize(Actor{Username: "o", Rank: Op}, w, 5, 5, 5).Allowed)

	w.AddRankZone(world.NewRankZone("builders", world.Box{X1: 20, X2: 30, Y2: 10, Z2: 10}, "builder"))
	d = az.Authorize(Actor{Username: "g"}, w, 25, 5, 5)
	assert.Equal(t, "You must be a builder to build here.", d.Message)
}

func TestCanEnter(t *testing.T) {
	w := newWorld("w")
	assert.True(t, CanEnter(Actor{Username: "g"}, w))

	w.UpdateStatus(func(s *world.Status) { s.Private = true })
	assert.False(t, CanEnter(Actor{Username: "g"}, w))
	assert.True(t, CanEnter(Actor{Username: "b", Rank: Builder}, w))

	w2 := newWorld("w2")
	w2.WorldBan("g")
	assert.False(t, CanEnter(Actor{Username: "G"}, w2))
}

func TestColour(t *testing.T) {
	assert.Equal(t, ColourWhite, Colour(Actor{Rank: Owner}, false))
	assert.Equal(t, SpectatorColour, Colour(Actor{Rank: Owner, Spectator: true}, true))
	assert.Equal(t, ColourRed, Colour(Actor{Rank: Admin}, true))
}
