package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/bank-core/internal/config"
	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

// Service wires the banking components over one store
type Service struct {
	repo   repository.Store
	log    *logrus.Logger
	config *config.Config
	now    func() time.Time

	Params       *Parameters
	Rules        *LoyaltyRules
	Scoring      *ScoringEngine
	Cards        *CardService
	Loans        *LoanService
	Applications *ApplicationWorkflow
	Loyalty      *LoyaltyEngine
	Transactions *TransactionProcessor
	Transfers    *TransferProcessor
}

// NewService initializes a new service; notifier may be nil
func NewService(repo repository.Store, log *logrus.Logger, cfg *config.Config, notifier Notifier) *Service {
	return newService(repo, log, cfg, notifier, time.Now)
}

func newService(repo repository.Store, log *logrus.Logger, cfg *config.Config, notifier Notifier, now func() time.Time) *Service {
	s := &Service{repo: repo, log: log, config: cfg, now: now}
	s.Params = NewParameters(repo, log)
	s.Rules = NewLoyaltyRules(repo, log)
	s.Scoring = NewScoringEngine(s.Params, log, now)
	s.Cards = NewCardService(repo, log, now)
	s.Loans = NewLoanService(repo, notifier, log, now)
	s.Applications = NewApplicationWorkflow(repo, s.Scoring, s.Loans, log, now)
	s.Loyalty = NewLoyaltyEngine(repo, s.Rules, s.Params, log)
	s.Transactions = NewTransactionProcessor(repo, s.Loyalty, log)
	s.Transfers = NewTransferProcessor(repo, log)
	return s
}

// Claims are the JWT claims issued at login
type Claims struct {
	jwt.RegisteredClaims
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	ClientID int64       `json:"client_id,omitempty"`
}

// UserID returns the numeric subject of the token
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}
	return id, nil
}

// RegisterRequest is a self-service or admin-created login
type RegisterRequest struct {
	Username            string          `json:"username"`
	Password            string          `json:"password"`
	Role                models.Role     `json:"role"`
	FullName            string          `json:"full_name"`
	Passport            string          `json:"passport"`
	Email               string          `json:"email"`
	MonthlyIncome       decimal.Decimal `json:"monthly_income"`
	BirthDate           *time.Time      `json:"birth_date"`
	EmploymentStartDate *time.Time      `json:"employment_start_date"`
	MaritalStatus       string          `json:"marital_status"`
}

// AuthResponse is returned by Register and Login. Token is empty while the login is disabled.
type AuthResponse struct {
	Token    string      `json:"token,omitempty"`
	UserID   int64       `json:"user_id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	ClientID int64       `json:"client_id,omitempty"`
}

// Register creates a login. CLIENT logins also get a client profile, a bonus account,
// a default card and an initial score; EMPLOYEE logins start disabled until an admin approves them.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return s.register(ctx, req, false)
}

// CreateUser registers a login on behalf of an admin; it is enabled immediately
func (s *Service) CreateUser(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return s.register(ctx, req, true)
}

func (s *Service) register(ctx context.Context, req RegisterRequest, byAdmin bool) (*AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Role = models.Role(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	if req.Role == "" {
		req.Role = models.RoleClient
	}
	if err := validateRegister(req, byAdmin); err != nil {
		return nil, err
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: string(hashedPassword),
		Role:         req.Role,
		Enabled:      byAdmin || req.Role != models.RoleEmployee,
	}
	var client *models.Client
	err = s.repo.InTx(ctx, func(q repository.Queries) error {
		if err := q.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return newError(ErrValidation, "username %s is already taken", req.Username)
			}
			return err
		}
		if user.Role != models.RoleClient {
			return nil
		}
		client, err = s.createClient(ctx, q, user.ID, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"username": user.Username, "role": user.Role, "enabled": user.Enabled}).Info("User registered")
	resp := &AuthResponse{UserID: user.ID, Username: user.Username, Role: user.Role}
	if client != nil {
		resp.ClientID = client.ID
	}
	if !user.Enabled || byAdmin {
		return resp, nil
	}
	if resp.Token, err = s.issueToken(user, resp.ClientID); err != nil {
		return nil, err
	}
	return resp, nil
}

func validateRegister(req RegisterRequest, byAdmin bool) error {
	switch req.Role {
	case models.RoleClient, models.RoleEmployee:
	case models.RoleAdmin:
		if !byAdmin {
			return newError(ErrAuthorization, "admin accounts cannot be self-registered")
		}
	default:
		return newError(ErrValidation, "unknown role %s", req.Role)
	}
	if req.Username == "" {
		return newError(ErrValidation, "username is required")
	}
	if len(req.Password) < minPasswordLength {
		return newError(ErrValidation, "password must be at least %d characters", minPasswordLength)
	}
	if req.Role != models.RoleClient {
		return nil
	}
	switch {
	case strings.TrimSpace(req.FullName) == "":
		return newError(ErrValidation, "full name is required")
	case strings.TrimSpace(req.Passport) == "":
		return newError(ErrValidation, "passport is required")
	case req.MonthlyIncome.IsNegative():
		return newError(ErrValidation, "monthly income must not be negative")
	case req.BirthDate == nil || req.BirthDate.IsZero():
		return newError(ErrValidation, "birth date is required")
	}
	return nil
}

func (s *Service) createClient(ctx context.Context, q repository.Queries, userID int64, req RegisterRequest) (*models.Client, error) {
	now := s.now()
	employed := req.EmploymentStartDate
	if employed == nil {
		start := truncateDay(now).AddDate(-1, 0, 0)
		employed = &start
	}
	marital := strings.ToUpper(strings.TrimSpace(req.MaritalStatus))
	if marital == "" {
		marital = "SINGLE"
	}
	client := &models.Client{
		UserID:              userID,
		FullName:            strings.TrimSpace(req.FullName),
		Passport:            strings.TrimSpace(req.Passport),
		Email:               strings.TrimSpace(req.Email),
		MonthlyIncome:       req.MonthlyIncome,
		BirthDate:           *req.BirthDate,
		EmploymentStartDate: employed,
		MaritalStatus:       marital,
		RiskClass:           models.RiskNone,
	}
	if err := q.SaveClient(ctx, client); err != nil {
		return nil, err
	}

	if _, err := s.Scoring.rescoreWithin(ctx, q, client); err != nil {
		return nil, err
	}

	if err := q.SaveBonusAccount(ctx, &models.BonusAccount{ClientID: client.ID}); err != nil {
		return nil, err
	}
	if _, err := issueCard(ctx, q, client.ID, now); err != nil {
		return nil, err
	}
	return client, nil
}

// EnsureAdmin creates the initial ADMIN login unless a user with that name exists
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.repo.FindUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if _, err := s.CreateUser(ctx, RegisterRequest{Username: username, Password: password, Role: models.RoleAdmin}); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	s.log.Infof("Admin user %s created", username)
	return nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	user, err := s.repo.FindUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(ErrAuthorization, "invalid credentials")
	}
	if err != nil {
		return nil, err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, newError(ErrAuthorization, "invalid credentials")
	}
	if !user.Enabled {
		return nil, newError(ErrAuthorization, "account is not activated")
	}

	resp := &AuthResponse{UserID: user.ID, Username: user.Username, Role: user.Role}
	if user.Role == models.RoleClient {
		client, err := s.repo.FindClientByUserID(ctx, user.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if client != nil {
			resp.ClientID = client.ID
		}
	}
	if resp.Token, err = s.issueToken(user, resp.ClientID); err != nil {
		return nil, err
	}
	s.log.Infof("User logged in: %s", user.Username)
	return resp, nil
}

func (s *Service) issueToken(user *models.User, clientID int64) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
		},
		Username: user.Username,
		Role:     user.Role,
		ClientID: clientID,
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ParseToken validates a token against the service secret and clock
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	return ParseToken(tokenString, s.config.JWTSecret, s.now)
}

// ParseToken validates a signed token and returns its claims, checking expiry against now
func ParseToken(tokenString, secret string, now func() time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil || !token.Valid {
		return nil, newError(ErrAuthorization, "invalid token")
	}
	return claims, nil
}

// Users lists all logins
func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	return s.repo.ListUsers(ctx)
}

// SetUserEnabled activates or blocks a login
func (s *Service) SetUserEnabled(ctx context.Context, userID int64, enabled bool) error {
	if err := s.repo.SetUserEnabled(ctx, userID, enabled); err != nil {
		return lookup(err, "user")
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "enabled": enabled}).Info("User status changed")
	return nil
}

// ToggleUserBlock flips a login between enabled and disabled
func (s *Service) ToggleUserBlock(ctx context.Context, userID int64) (*models.User, error) {
	var user *models.User
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		var err error
		user, err = q.GetUser(ctx, userID)
		if err != nil {
			return lookup(err, "user")
		}
		user.Enabled = !user.Enabled
		return q.SetUserEnabled(ctx, userID, user.Enabled)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "enabled": user.Enabled}).Info("User status toggled")
	return user, nil
}
