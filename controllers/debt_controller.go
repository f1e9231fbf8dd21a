package controllers

import (
	"buddiepay/middleware"
	"buddiepay/models"
	"buddiepay/services"
	"buddiepay/utils"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"
)

// DebtController обрабатывает запросы, связанные с долгами
type DebtController struct {
	debtService *services.DebtService
}

// NewDebtController создает новый экземпляр DebtController
func NewDebtController(debtService *services.DebtService) *DebtController {
	return &DebtController{debtService: debtService}
}

// RegisterRoutes регистрирует маршруты долгов. summary должен идти раньше {id}.
func (c *DebtController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/debts", c.CreateDebt).Methods(http.MethodPost)
	r.HandleFunc("/debts/receivable", c.CreateReceivableDebt).Methods(http.MethodPost)
	r.HandleFunc("/debts", c.ListDebts).Methods(http.MethodGet)
	r.HandleFunc("/debts/summary", c.Summary).Methods(http.MethodGet)
	r.HandleFunc("/debts/{id}", c.GetDebt).Methods(http.MethodGet)
	r.HandleFunc("/debts/{id}", c.UpdateDebt).Methods(http.MethodPatch)
	r.HandleFunc("/debts/{id}", c.DeleteDebt).Methods(http.MethodDelete)
}

// currentUser достает id пользователя, выставленный AuthMiddleware
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.GetUserFromContext(r)
	if err != nil {
		utils.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

// pageParams читает page и limit из строки запроса, пустые значения остаются нулями
func pageParams(query url.Values) (page, limit int, err error) {
	if v := query.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return 0, 0, utils.NewValidationError("page must be a number")
		}
	}
	if v := query.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			return 0, 0, utils.NewValidationError("limit must be a number")
		}
	}
	return page, limit, nil
}

// CreateDebt создает долг, в котором текущий пользователь должник
func (c *DebtController) CreateDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var dto services.CreateDebtDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	debt, err := c.debtService.CreateDebt(r.Context(), userID, dto)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, debt)
}

// CreateReceivableDebt создает долг, в котором текущий пользователь кредитор
func (c *DebtController) CreateReceivableDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var dto services.CreateDebtDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	debt, err := c.debtService.CreateReceivableDebt(r.Context(), userID, dto)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, debt)
}

// GetDebt возвращает долг с транзакциями
func (c *DebtController) GetDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	debt, err := c.debtService.GetDebt(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, debt)
}

// ListDebts возвращает страницу долгов пользователя
func (c *DebtController) ListDebts(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := services.DebtFilter{
		Status:    models.DebtStatus(query.Get("status")),
		Direction: query.Get("direction"),
	}
	var err error
	if filter.Page, filter.Limit, err = pageParams(query); err != nil {
		utils.WriteError(w, err)
		return
	}

	page, err := c.debtService.ListDebts(r.Context(), userID, filter)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, page)
}

// Summary возвращает непогашенные суммы по валютам
func (c *DebtController) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	summary, err := c.debtService.Summary(r.Context(), userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"currencies": summary})
}

// UpdateDebt частично обновляет долг или меняет его статус
func (c *DebtController) UpdateDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var dto services.UpdateDebtDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	debt, err := c.debtService.UpdateDebt(r.Context(), mux.Vars(r)["id"], userID, dto)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, debt)
}

// DeleteDebt удаляет долг в статусе pending
func (c *DebtController) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := c.debtService.DeleteDebt(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		utils.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
