package controllers

import (
	"buddiepay/models"
	"buddiepay/services"
	"buddiepay/utils"
	"net/http"

	"github.com/gorilla/mux"
)

// UserController отдает профиль текущего пользователя и меняет его настройки
type UserController struct {
	userService *services.UserService
}

func NewUserController(userService *services.UserService) *UserController {
	return &UserController{userService: userService}
}

func (c *UserController) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/users/me", c.GetProfile).Methods(http.MethodGet)
	r.HandleFunc("/users/me/preferences", c.UpdatePreferences).Methods(http.MethodPatch)
	r.HandleFunc("/users/me/payments", c.PaymentHistory).Methods(http.MethodGet)
}

// GetProfile возвращает профиль текущего пользователя
func (c *UserController) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	user, err := c.userService.GetProfile(r.Context(), userID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

// UpdatePreferences меняет чувствительность напоминаний, телефон и реквизиты
func (c *UserController) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var dto services.UpdatePreferencesDTO
	if !decodeBody(w, r, &dto) {
		return
	}

	user, err := c.userService.UpdatePreferences(r.Context(), userID, dto)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, user)
}

// PaymentHistory возвращает страницу попыток оплаты по долгам пользователя
func (c *UserController) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := services.PaymentHistoryFilter{
		Status: models.TransactionStatus(query.Get("status")),
		Method: models.PaymentMethod(query.Get("method")),
	}
	var err error
	if filter.Page, filter.Limit, err = pageParams(query); err != nil {
		utils.WriteError(w, err)
		return
	}

	page, err := c.userService.PaymentHistory(r.Context(), userID, filter)
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, page)
}
