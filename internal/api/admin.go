package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/annel0/blockverse/internal/auth"
	"github.com/annel0/blockverse/internal/authz"
	"github.com/gin-gonic/gin"
)

// Причина кика по умолчанию
const defaultKickReason = "You were kicked by an operator."

// KickRequest запрос на отключение игрока
type KickRequest struct {
	Username string `json:"username" binding:"required"`
	Reason   string `json:"reason"`
}

// AnnounceRequest объявление всем игрокам
type AnnounceRequest struct {
	Message string `json:"message" binding:"required"`
}

// MoveRequest перевод игрока в другой мир
type MoveRequest struct {
	Username string `json:"username" binding:"required"`
	World    string `json:"world" binding:"required"`
}

// RankRequest смена глобального ранга
type RankRequest struct {
	Username string `json:"username" binding:"required"`
	Rank     string `json:"rank" binding:"required"`
}

// BanRequest бан по имени и/или адресу
type BanRequest struct {
	Username string `json:"username"`
	IP       string `json:"ip"`
	Reason   string `json:"reason"`
}

func (rs *RestServer) operator(c *gin.Context) string {
	return c.GetString("username")
}

func (rs *RestServer) handleKick(c *gin.Context) {
	var req KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = defaultKickReason
	}
	if !rs.game.Kick(req.Username, reason) {
		respondError(c, http.StatusNotFound, "Игрок не в сети")
		return
	}
	rs.logger.Info("Оператор %s кикнул %s: %s", rs.operator(c), req.Username, reason)
	respondOK(c, "Игрок отключён", nil)
}

func (rs *RestServer) handleAnnounce(c *gin.Context) {
	var req AnnounceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	rs.game.Announce(req.Message)
	respondOK(c, "Объявление отправлено", nil)
}

func (rs *RestServer) handleMove(c *gin.Context) {
	var req MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	err := rs.game.MoveToWorld(req.Username, req.World)
	switch {
	case errors.Is(err, auth.ErrUnknownUser):
		respondError(c, http.StatusNotFound, "Игрок не в сети")
		return
	case err != nil:
		rs.logger.Error("Перевод %s в %s: %v", req.Username, req.World, err)
		respondError(c, http.StatusInternalServerError, "Не удалось открыть мир")
		return
	}
	respondOK(c, "Игрок переведён", map[string]string{"world": req.World})
}

func (rs *RestServer) handleRank(c *gin.Context) {
	var req RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	rank, ok := authz.ParseRank(req.Rank)
	if !ok {
		respondError(c, http.StatusBadRequest, "Неизвестный ранг")
		return
	}
	rs.registry.SetRank(req.Username, rank)
	rs.game.RankChanged(req.Username)
	rs.logger.Info("Оператор %s выдал %s ранг %s", rs.operator(c), req.Username, rank)
	respondOK(c, "Ранг изменён", map[string]string{"username": req.Username, "rank": rank.String()})
}

func (rs *RestServer) handleBan(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Username == "" && req.IP == "") {
		respondError(c, http.StatusBadRequest, "Нужно указать username или ip")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "No reason given."
	}
	if req.Username != "" {
		rs.registry.Ban(req.Username, reason)
		rs.game.Kick(req.Username, "You are banned: "+reason)
	}
	if req.IP != "" {
		rs.registry.IPBan(req.IP, reason)
	}
	rs.logger.Info("Оператор %s забанил %s %s: %s", rs.operator(c), req.Username, req.IP, reason)
	respondOK(c, "Бан применён", nil)
}

func (rs *RestServer) handleUnban(c *gin.Context) {
	var req BanRequest
	if err := c.ShouldBindJSON(&req); err != nil || (req.Username == "" && req.IP == "") {
		respondError(c, http.StatusBadRequest, "Нужно указать username или ip")
		return
	}
	if req.Username != "" {
		rs.registry.Unban(req.Username)
	}
	if req.IP != "" {
		rs.registry.IPUnban(req.IP)
	}
	respondOK(c, "Бан снят", nil)
}
