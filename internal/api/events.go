package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/blockverse/internal/api/replay"
	"github.com/gin-gonic/gin"
)

// Размер истории событий по умолчанию
const defaultEventHistory = 1000

// handleEvents выборка из истории: ?type=Chat,BlockChange&username=&since=RFC3339&limit=
func (rs *RestServer) handleEvents(c *gin.Context) {
	q := replay.EventQuery{Username: c.Query("username")}
	if types := c.Query("type"); types != "" {
		q.EventTypes = strings.Split(types, ",")
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "Неверный limit")
			return
		}
		q.Limit = n
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(c, http.StatusBadRequest, "Неверный since, ожидается RFC3339")
			return
		}
		q.StartTime = &t
	}

	events := rs.events.Query(q)
	respondOK(c, "История событий", map[string]interface{}{
		"events": events,
		"total":  len(events),
	})
}

func (rs *RestServer) handleEventStats(c *gin.Context) {
	respondOK(c, "Статистика событий", rs.events.Stats())
}
