package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Dan9191/bank-core/internal/middleware"
	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// KeyRateSource fetches the central bank key rate in percent
type KeyRateSource interface {
	GetKeyRate(ctx context.Context) (decimal.Decimal, error)
}

type Handler struct {
	svc     *service.Service
	keyRate KeyRateSource
	log     *logrus.Logger
}

func NewHandler(svc *service.Service, keyRate KeyRateSource, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, keyRate: keyRate, log: log}
}

// NewRouter registers every route of the API
func NewRouter(h *Handler, log *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(log), middleware.Logging(log))

	// Public routes
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/key-rate", h.KeyRate).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(h.svc.ParseToken))

	client := api.PathPrefix("/client").Subrouter()
	client.Use(middleware.RequireRole(models.RoleClient))
	client.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	client.HandleFunc("/transactions", h.TransactionHistory).Methods(http.MethodGet)
	client.HandleFunc("/bonuses", h.BonusHistory).Methods(http.MethodGet)
	client.HandleFunc("/bonuses/convert", h.ConvertPoints).Methods(http.MethodPost)
	client.HandleFunc("/applications", h.SubmitApplication).Methods(http.MethodPost)
	client.HandleFunc("/cards", h.ClientCards).Methods(http.MethodGet)
	client.HandleFunc("/cards", h.IssueCard).Methods(http.MethodPost)
	client.HandleFunc("/cards/{id:[0-9]+}/purchase", h.Purchase).Methods(http.MethodPost)
	client.HandleFunc("/cards/{id:[0-9]+}/topup", h.TopUp).Methods(http.MethodPost)
	client.HandleFunc("/cards/{id:[0-9]+}/block", h.ToggleCardBlock).Methods(http.MethodPost)
	client.HandleFunc("/transfers", h.Transfer).Methods(http.MethodPost)
	client.HandleFunc("/loans/{id:[0-9]+}/pay", h.PayLoan).Methods(http.MethodPost)
	client.HandleFunc("/loans/{id:[0-9]+}/schedule", h.LoanSchedule).Methods(http.MethodGet)

	employee := api.PathPrefix("/employee").Subrouter()
	employee.Use(middleware.RequireRole(models.RoleEmployee, models.RoleAdmin))
	employee.HandleFunc("/applications/pending", h.PendingApplications).Methods(http.MethodGet)
	employee.HandleFunc("/applications/{id:[0-9]+}/approve", h.ApproveApplication).Methods(http.MethodPost)
	employee.HandleFunc("/applications/{id:[0-9]+}/reject", h.RejectApplication).Methods(http.MethodPost)
	employee.HandleFunc("/cards/{id:[0-9]+}/status", h.SetCardStatus).Methods(http.MethodPut)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/applications", h.AllApplications).Methods(http.MethodGet)
	admin.HandleFunc("/applications/export", h.ExportApplications).Methods(http.MethodGet)
	admin.HandleFunc("/applications/{id:[0-9]+}/approve-force", h.ForceApproveApplication).Methods(http.MethodPost)
	admin.HandleFunc("/loyalty", h.LoyaltyRules).Methods(http.MethodGet)
	admin.HandleFunc("/loyalty", h.AddLoyaltyRule).Methods(http.MethodPost)
	admin.HandleFunc("/loyalty/{id:[0-9]+}", h.DeleteLoyaltyRule).Methods(http.MethodDelete)
	admin.HandleFunc("/params", h.Parameters).Methods(http.MethodGet)
	admin.HandleFunc("/params", h.SetParameter).Methods(http.MethodPost)
	admin.HandleFunc("/users", h.Users).Methods(http.MethodGet)
	admin.HandleFunc("/users", h.CreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}/approve", h.ApproveUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}/toggle-block", h.ToggleUserBlock).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}/client", h.ClientProfile).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}/client", h.UpdateClientProfile).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id:[0-9]+}/cards", h.UserCards).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func statusFor(err error) int {
	var derr *service.Error
	if !errors.As(err, &derr) {
		return http.StatusInternalServerError
	}
	switch derr.Kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState:
		return http.StatusConflict
	case service.KindInsufficientFunds, service.KindInsufficientPoints:
		return http.StatusUnprocessableEntity
	case service.KindInvalidAmount, service.KindValidation:
		return http.StatusBadRequest
	case service.KindAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain failures to their status code and hides infrastructure errors
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("request_id", middleware.RequestIDFrom(r.Context())).Error("Request failed")
		writeJSON(w, status, map[string]string{"error": "Internal server error"})
		return
	}
	body := map[string]any{"error": err.Error()}
	var derr *service.Error
	if errors.As(err, &derr) {
		if derr.Code != "" {
			body["code"] = derr.Code
		} else {
			body["code"] = derr.Kind
		}
		if derr.Balance != nil {
			body["balance"] = derr.Balance
		}
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}
	return id, nil
}

// clientID returns the client id carried by the caller's token
func clientID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok || claims.ClientID == 0 {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "No client profile attached to this login"})
		return 0, false
	}
	return claims.ClientID, true
}

func role(r *http.Request) models.Role {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		return ""
	}
	return claims.Role
}

type registerRequest struct {
	Username            string          `json:"username"`
	Password            string          `json:"password"`
	Role                models.Role     `json:"role"`
	FullName            string          `json:"full_name"`
	Passport            string          `json:"passport"`
	Email               string          `json:"email"`
	MonthlyIncome       decimal.Decimal `json:"monthly_income"`
	BirthDate           string          `json:"birth_date"`
	EmploymentStartDate string          `json:"employment_start_date"`
	MaritalStatus       string          `json:"marital_status"`
}

func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD", field)
	}
	return &d, nil
}

func decodeRegister(r *http.Request) (service.RegisterRequest, error) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		return service.RegisterRequest{}, err
	}
	birth, err := parseDate("birth_date", req.BirthDate)
	if err != nil {
		return service.RegisterRequest{}, err
	}
	employed, err := parseDate("employment_start_date", req.EmploymentStartDate)
	if err != nil {
		return service.RegisterRequest{}, err
	}
	return service.RegisterRequest{
		Username:            req.Username,
		Password:            req.Password,
		Role:                req.Role,
		FullName:            req.FullName,
		Passport:            req.Passport,
		Email:               req.Email,
		MonthlyIncome:       req.MonthlyIncome,
		BirthDate:           birth,
		EmploymentStartDate: employed,
		MaritalStatus:       req.MaritalStatus,
	}, nil
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRegister(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	resp, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	resp, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, service.ErrAuthorization) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// KeyRate returns the stored key rate, fetching it live when none is stored yet
func (h *Handler) KeyRate(w http.ResponseWriter, r *http.Request) {
	stored, err := h.svc.Params.String(r.Context(), service.ParamKeyRate)
	if err == nil {
		if rate, perr := decimal.NewFromString(stored); perr == nil {
			writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"key_rate": rate})
			return
		}
	}
	if h.keyRate == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Key rate is not available"})
		return
	}
	rate, err := h.keyRate.GetKeyRate(r.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to get key rate")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to get key rate"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"key_rate": rate})
}
