package world

import "strings"

// RankZoneAll тег зоны, разрешающей строительство всем
const RankZoneAll = "all"

// Box прямоугольная область. Точка принадлежит области только строго
// внутри: x1 < x < x2 по каждой оси.
type Box struct {
	X1, Y1, Z1 int
	X2, Y2, Z2 int
}

// Contains проверяет строгое вхождение точки
func (b Box) Contains(x, y, z int) bool {
	return b.X1 < x && x < b.X2 &&
		b.Y1 < y && y < b.Y2 &&
		b.Z1 < z && z < b.Z2
}

// NormalizedBox собирает Box из двух углов в любом порядке
func NormalizedBox(x1, y1, z1, x2, y2, z2 int) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	if z1 > z2 {
		z1, z2 = z2, z1
	}
	return Box{X1: x1, Y1: y1, Z1: z1, X2: x2, Y2: y2, Z2: z2}
}

// UserZone зона со списком допущенных пользователей (нижний регистр).
// Пустой список запрещает строительство всем.
type UserZone struct {
	ID    string   `json:"id"`
	Box   Box      `json:"box"`
	Users []string `json:"users"`
}

// Allows проверяет, есть ли имя в списке
func (z UserZone) Allows(username string) bool {
	name := strings.ToLower(username)
	for _, u := range z.Users {
		if u == name {
			return true
		}
	}
	return false
}

// RankZone зона, привязанная к рангу ("builder", "op", ..., или "all")
type RankZone struct {
	ID   string `json:"id"`
	Box  Box    `json:"box"`
	Rank string `json:"rank"`
}

// NewUserZone создаёт пользовательскую зону, приводя имена к нижнему регистру
func NewUserZone(id string, box Box, users ...string) UserZone {
	list := make([]string, 0, len(users))
	for _, u := range users {
		list = append(list, strings.ToLower(u))
	}
	return UserZone{ID: id, Box: box, Users: list}
}

// NewRankZone создаёт ранговую зону
func NewRankZone(id string, box Box, rank string) RankZone {
	return RankZone{ID: id, Box: box, Rank: strings.ToLower(rank)}
}
