package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CreateWebhookRequest запрос на создание webhook'а
type CreateWebhookRequest struct {
	Name       string   `json:"name" binding:"required"`
	URL        string   `json:"url" binding:"required,url"`
	Secret     string   `json:"secret"`
	Events     []string `json:"events" binding:"required,min=1"`
	Timeout    int      `json:"timeout"`
	RetryCount int      `json:"retry_count"`
}

func webhookID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Неверный ID webhook'а")
		return 0, false
	}
	return id, true
}

func (rs *RestServer) handleGetWebhooks(c *gin.Context) {
	list := rs.webhooks.List()
	respondOK(c, "Список webhook'ов получен", map[string]interface{}{
		"webhooks": list,
		"total":    len(list),
	})
}

func (rs *RestServer) handleCreateWebhook(c *gin.Context) {
	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат webhook'а: "+err.Error())
		return
	}
	created := rs.webhooks.Add(Webhook{
		Name:       req.Name,
		URL:        req.URL,
		Secret:     req.Secret,
		Events:     req.Events,
		Timeout:    req.Timeout,
		RetryCount: req.RetryCount,
	})
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Webhook создан успешно",
		Data:    created,
	})
}

func (rs *RestServer) handleGetWebhook(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}
	w, found := rs.webhooks.Get(id)
	if !found {
		respondError(c, http.StatusNotFound, "Webhook не найден")
		return
	}
	respondOK(c, "Webhook найден", w)
}

func (rs *RestServer) handleUpdateWebhook(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}
	var upd WebhookUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		respondError(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	w, found := rs.webhooks.Update(id, upd)
	if !found {
		respondError(c, http.StatusNotFound, "Webhook не найден")
		return
	}
	respondOK(c, "Webhook обновлён", w)
}

func (rs *RestServer) handleDeleteWebhook(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}
	if !rs.webhooks.Delete(id) {
		respondError(c, http.StatusNotFound, "Webhook не найден")
		return
	}
	respondOK(c, "Webhook удалён", nil)
}
