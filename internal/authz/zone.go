package authz

import (
	"fmt"
	"strings"

	"github.com/annel0/blockverse/internal/world"
)

// Decision результат проверки права на изменение блока.
// Message (если не пуст) показывается игроку; Split требует разбивки по словам.
type Decision struct {
	Allowed bool
	Message string
	Split   bool
}

func allow() Decision { return Decision{Allowed: true} }

func deny(msg string) Decision { return Decision{Message: msg} }

// Ранги, проверяемые в ранговых зонах, в фиксированном порядке
var zoneRanks = []Rank{Builder, Op, WorldOwner, Mod, Admin, Director, Owner}

// Authorizer проверяет право актёра менять блок в мире
type Authorizer struct {
	DefaultWorld string
}

// NewAuthorizer создаёт проверяющего для мира по умолчанию defaultWorld
func NewAuthorizer(defaultWorld string) *Authorizer {
	return &Authorizer{DefaultWorld: defaultWorld}
}

// Authorize применяет порядок: admincrete, пользовательские зоны,
// ранговые зоны, флаги мира. Отказ пользовательской зоны не
// проверяет ранговые зоны, даже если точка в зоне "all".
func (az *Authorizer) Authorize(a Actor, w *world.World, x, y, z int) Decision {
	existing, err := w.Get(x, y, z)
	if err != nil {
		return deny("Out of bounds.")
	}
	if existing == world.BlockSolid && !a.Has(Op) && !a.BreakAdmincrete {
		return deny("")
	}

	matched := false
	var denied []string
	for _, zone := range w.UserZones() {
		if !zone.Box.Contains(x, y, z) {
			continue
		}
		matched = true
		if len(zone.Users) == 0 {
			return deny("")
		}
		if zone.Allows(a.Username) || a.Has(Director) {
			continue
		}
		if denied == nil {
			denied = zone.Users
		}
	}
	if denied != nil {
		return Decision{
			Message: fmt.Sprintf("You are not allowed to build in this zone. Only: %s may.", strings.Join(denied, ", ")),
			Split:   true,
		}
	}
	if matched {
		return allow()
	}

	st := w.Status()
	for _, zone := range w.RankZones() {
		if zone.Rank == world.RankZoneAll && zone.Box.Contains(x, y, z) {
			return allow()
		}
		if !st.Zoned {
			continue
		}
		for _, r := range zoneRanks {
			if zone.Rank != r.String() || !zone.Box.Contains(x, y, z) {
				continue
			}
			if a.Has(r) {
				return allow()
			}
			return deny(fmt.Sprintf("You must be %s %s to build here.", article(r.String()), r.String()))
		}
	}

	if st.AllBuild || a.Has(Builder) {
		return allow()
	}
	if w.ID() == az.DefaultWorld {
		return deny(fmt.Sprintf("Only Builder/Op and Mod+ may edit '%s'.", az.DefaultWorld))
	}
	return deny("This world is locked. You must be Builder/Op or Mod+ to build here.")
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiou", rune(word[0])) {
		return "an"
	}
	return "a"
}
