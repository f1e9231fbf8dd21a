package controllers

import (
	"buddiepay/models"
	"buddiepay/services"
	"buddiepay/utils"
	"net/http"

	"github.com/gorilla/mux"
)

// PaymentController обрабатывает запуск и подтверждение платежей
type PaymentController struct {
	paymentService *services.PaymentService
}

// NewPaymentController создает новый экземпляр PaymentController
func NewPaymentController(paymentService *services.PaymentService) *PaymentController {
	return &PaymentController{paymentService: paymentService}
}

// RegisterRoutes регистрирует маршруты платежей. Фиксированные пути идут раньше {provider}.
func (c *PaymentController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/payment/manual/{debtId}", c.CaptureManual).Methods(http.MethodPost)
	r.HandleFunc("/payment/paypal/capture/{orderId}", c.CapturePayPal).Methods(http.MethodPost)
	r.HandleFunc("/payment/{provider}/{debtId}", c.InitiatePayment).Methods(http.MethodPost)
}

// InitiatePayment создает платеж у выбранного провайдера
func (c *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	method := models.PaymentMethod(vars["provider"])
	if !method.IsValid() {
		utils.WriteError(w, utils.NewValidationError("unsupported payment provider: "+vars["provider"]))
		return
	}

	result, err := c.paymentService.Initiate(r.Context(), vars["debtId"], method, userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// CaptureManual фиксирует оплату, подтвержденную кредитором вручную
func (c *PaymentController) CaptureManual(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	txn, err := c.paymentService.CaptureManual(r.Context(), mux.Vars(r)["debtId"], userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"transaction": txn,
	})
}

// CapturePayPal подтверждает заказ PayPal после одобрения плательщиком
func (c *PaymentController) CapturePayPal(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	result, err := c.paymentService.CapturePayPal(r.Context(), mux.Vars(r)["orderId"], userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}
