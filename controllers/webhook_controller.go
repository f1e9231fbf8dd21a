package controllers

import (
	"buddiepay/middleware"
	"buddiepay/models"
	"buddiepay/services"
	"buddiepay/utils"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// WebhookController принимает вебхуки платежных провайдеров
type WebhookController struct {
	paymentService *services.PaymentService
}

func NewWebhookController(paymentService *services.PaymentService) *WebhookController {
	return &WebhookController{paymentService: paymentService}
}

// Engine собирает gin-обработчик вебхуков с rate limit, логированием и recovery
func (c *WebhookController) Engine(limiter *utils.RateLimiter) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.Recovery(), middleware.Logger())
	if limiter != nil {
		engine.Use(middleware.RateLimit(limiter))
	}
	engine.POST("/payment/webhook/:provider", c.HandleWebhook)
	return engine
}

// HandleWebhook проверяет подпись и применяет событие. Повтор события отвечает
// тем же 200, ошибка подписи дает 400, внутренняя ошибка 500, чтобы провайдер повторил доставку.
func (c *WebhookController) HandleWebhook(ctx *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, maxWebhookBody))
	if err != nil {
		utils.HandleError(ctx, utils.NewValidationError("unable to read webhook body"))
		return
	}

	method := models.PaymentMethod(ctx.Param("provider"))
	result, err := c.paymentService.Reconcile(ctx.Request.Context(), method, ctx.Request.Header, body)
	if err != nil {
		if errors.Is(err, utils.ErrSignatureVerificationFailed) {
			utils.LogError("Вебхук %s отклонен: неверная подпись", method)
		}
		utils.HandleError(ctx, err)
		return
	}

	if result.Duplicate {
		utils.LogInfo("Повторный вебхук %s %s пропущен", method, result.EventID)
	}
	ctx.JSON(http.StatusOK, gin.H{"received": true})
}
