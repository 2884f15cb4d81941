package api

import (
	"net/http"

	"github.com/annel0/blockverse/internal/authz"
	"github.com/annel0/blockverse/internal/world"
	"github.com/gin-gonic/gin"
)

// WorldInfo краткое описание загруженного мира
type WorldInfo struct {
	ID       string       `json:"id"`
	X        int          `json:"x"`
	Y        int          `json:"y"`
	Z        int          `json:"z"`
	Players  int          `json:"players"`
	Modified bool         `json:"modified"`
	Status   world.Status `json:"status"`
}

// WorldPatch изменяемые флаги мира; nil поля не трогаются
type WorldPatch struct {
	Private  *bool   `json:"private"`
	Archive  *bool   `json:"archive"`
	Hidden   *bool   `json:"hidden"`
	AllBuild *bool   `json:"all_build"`
	Zoned    *bool   `json:"zoned"`
	Owner    *string `json:"owner"`
}

// ZoneRequest создание зоны. Если Rank задан, создаётся ранговая зона,
// иначе пользовательская со списком Users.
type ZoneRequest struct {
	ID    string   `json:"id" binding:"required"`
	X1    int      `json:"x1"`
	Y1    int      `json:"y1"`
	Z1    int      `json:"z1"`
	X2    int      `json:"x2"`
	Y2    int      `json:"y2"`
	Z2    int      `json:"z2"`
	Users []string `json:"users"`
	Rank  string   `json:"rank"`
}

func worldInfo(w *world.World) WorldInfo {
	x, y, z := w.Dims()
	return WorldInfo{
		ID:       w.ID(),
		X:        x,
		Y:        y,
		Z:        z,
		Players:  w.OccupantCount(),
		Modified: w.Modified(),
		Status:   w.Status(),
	}
}

// lookupWorld ищет только загруженные миры, не создавая новых
func (rs *RestServer) lookupWorld(c *gin.Context) (*world.World, bool) {
	w, ok := rs.worlds.Get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, "Мир не найден")
		return nil, false
	}
	return w, true
}

func (rs *RestServer) handleWorlds(c *gin.Context) {
	list := rs.worlds.List()
	out := make([]WorldInfo, 0, len(list))
	for _, w := range list {
		out = append(out, worldInfo(w))
	}
	respondOK(c, "Список миров", map[string]interface{}{
		"worlds":  out,
		"total":   len(out),
		"default": rs.worlds.DefaultID(),
	})
}

func (rs *RestServer) handleWorld(c *gin.Context) {
	w, ok := rs.lookupWorld(c)
	if !ok {
		return
	}
	respondOK(c, "Мир найден", map[string]interface{}{
		"info": worldInfo(w),
		"meta": w.Meta(),
	})
}

func (rs *RestServer) handlePatchWorld(c *gin.Context) {
	w, ok := rs.lookupWorld(c)
	if !ok {
		return
	}
	var patch WorldPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	w.UpdateStatus(func(s *world.Status) {
		if patch.Private != nil {
			s.Private = *patch.Private
		}
		if patch.Archive != nil {
			s.Archive = *patch.Archive
		}
		if patch.Hidden != nil {
			s.Hidden = *patch.Hidden
		}
		if patch.AllBuild != nil {
			s.AllBuild = *patch.AllBuild
		}
		if patch.Zoned != nil {
			s.Zoned = *patch.Zoned
		}
		if patch.Owner != nil {
			s.Owner = *patch.Owner
		}
	})
	rs.logger.Info("Оператор %s изменил флаги мира %s", rs.operator(c), w.ID())
	respondOK(c, "Мир обновлён", worldInfo(w))
}

func (rs *RestServer) handleAddZone(c *gin.Context) {
	w, ok := rs.lookupWorld(c)
	if !ok {
		return
	}
	var req ZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}

	box := world.NormalizedBox(req.X1, req.Y1, req.Z1, req.X2, req.Y2, req.Z2)
	if req.Rank != "" {
		if _, known := authz.ParseRank(req.Rank); !known && req.Rank != world.RankZoneAll {
			respondError(c, http.StatusBadRequest, "Неизвестный ранг зоны")
			return
		}
		zone := world.NewRankZone(req.ID, box, req.Rank)
		w.AddRankZone(zone)
		c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Ранговая зона создана", Data: zone})
		return
	}

	zone := world.NewUserZone(req.ID, box, req.Users...)
	w.AddUserZone(zone)
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Зона создана", Data: zone})
}

func (rs *RestServer) handleDeleteZone(c *gin.Context) {
	w, ok := rs.lookupWorld(c)
	if !ok {
		return
	}
	if !w.RemoveZone(c.Param("zone")) {
		respondError(c, http.StatusNotFound, "Зона не найдена")
		return
	}
	respondOK(c, "Зона удалена", nil)
}

func (rs *RestServer) handleSave(c *gin.Context) {
	saved, err := rs.worlds.SaveDirty()
	if err != nil {
		rs.logger.Error("Принудительное сохранение: %v", err)
		respondError(c, http.StatusInternalServerError, "Не все миры сохранены")
		return
	}
	respondOK(c, "Миры сохранены", map[string]int{"saved": saved})
}
