package authz

import (
	"strings"

	"github.com/annel0/blockverse/internal/world"
)

// Rank уровень прав. Больший ранг удовлетворяет всем проверкам меньших.
type Rank int

const (
	Guest Rank = iota
	Builder
	Op
	WorldOwner
	Helper
	Mod
	Admin
	Director
	Owner
)

var rankNames = [...]string{
	Guest:      "guest",
	Builder:    "builder",
	Op:         "op",
	WorldOwner: "worldowner",
	Helper:     "helper",
	Mod:        "mod",
	Admin:      "admin",
	Director:   "director",
	Owner:      "owner",
}

// String имя ранга в нижнем регистре (совпадает с тегами ранговых зон)
func (r Rank) String() string {
	if r < Guest || r > Owner {
		return "unknown"
	}
	return rankNames[r]
}

// Global сообщает, является ли ранг глобальным (выше WorldOwner)
func (r Rank) Global() bool {
	return r > WorldOwner
}

// ParseRank разбирает имя ранга без учёта регистра
func ParseRank(s string) (Rank, bool) {
	s = strings.ToLower(s)
	for r, name := range rankNames {
		if name == s {
			return Rank(r), true
		}
	}
	return Guest, false
}

// Ranks все ранги по возрастанию
func Ranks() []Rank {
	return []Rank{Guest, Builder, Op, WorldOwner, Helper, Mod, Admin, Director, Owner}
}

// Actor пользователь, от имени которого выполняется действие
type Actor struct {
	Username  string
	Rank      Rank // эффективный ранг в текущем мире
	Spectator bool
	// BreakAdmincrete разрешает ломать admincrete без прав Op
	// (результат расширения canBreakAdmincrete)
	BreakAdmincrete bool
}

// Has проверяет, что актёр имеет ранг не ниже r
func (a Actor) Has(r Rank) bool {
	return a.Rank >= r
}

// Resolve вычисляет эффективный ранг: максимум из глобального ранга и
// ролей мира (владелец, оп, строитель).
func Resolve(global Rank, w *world.World, username string) Rank {
	rank := global
	if w == nil {
		return rank
	}
	switch {
	case rank < WorldOwner && w.IsOwner(username):
		rank = WorldOwner
	case rank < Op && w.IsOp(username):
		rank = Op
	case rank < Builder && w.IsBuilder(username):
		rank = Builder
	}
	return rank
}

// CanEnter: в приватный мир или при бане в мире пускают только Builder+
func CanEnter(a Actor, w *world.World) bool {
	st := w.Status()
	if !st.Private && !w.IsWorldBanned(a.Username) {
		return true
	}
	return a.Has(Builder)
}

// Цветовые коды classic чата
const (
	ColourBlack     = "&0"
	ColourDarkBlue  = "&1"
	ColourDarkGreen = "&2"
	ColourDarkTeal  = "&3"
	ColourDarkRed   = "&4"
	ColourPurple    = "&5"
	ColourGold      = "&6"
	ColourGrey      = "&7"
	ColourDarkGrey  = "&8"
	ColourBlue      = "&9"
	ColourGreen     = "&a"
	ColourTeal      = "&b"
	ColourRed       = "&c"
	ColourPink      = "&d"
	ColourYellow    = "&e"
	ColourWhite     = "&f"
)

var rankColours = map[Rank]string{
	Guest:      ColourWhite,
	Builder:    ColourGrey,
	Op:         ColourDarkTeal,
	WorldOwner: ColourDarkRed,
	Helper:     ColourGreen,
	Mod:        ColourBlue,
	Admin:      ColourRed,
	Director:   ColourGold,
	Owner:      ColourGreen,
}

// SpectatorColour цвет имени наблюдателя
const SpectatorColour = ColourBlack

// Colour цвет имени для ранга. При выключенных цветах всегда белый.
func Colour(a Actor, enabled bool) string {
	if !enabled {
		return ColourWhite
	}
	if a.Spectator {
		return SpectatorColour
	}
	if c, ok := rankColours[a.Rank]; ok {
		return c
	}
	return ColourWhite
}
