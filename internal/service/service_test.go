package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/bank-core/internal/config"
	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)

const testSecret = "test-secret"

func newTestService(t *testing.T) (*Service, *repository.Memory) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	repo := repository.NewMemory()
	cfg := &config.Config{JWTSecret: testSecret, TokenTTL: time.Hour}
	return newService(repo, log, cfg, nil, func() time.Time { return testNow }), repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// registerClient creates a 25-year-old client with one year of employment and the given income
func registerClient(t *testing.T, s *Service, username, income string) (*AuthResponse, models.Card) {
	t.Helper()
	resp, err := s.Register(context.Background(), RegisterRequest{
		Username:      username,
		Password:      "secret123",
		FullName:      "Client " + username,
		Passport:      "4500 " + username,
		Email:         username + "@example.com",
		MonthlyIncome: dec(income),
		BirthDate:     date(2000, time.January, 1),
	})
	require.NoError(t, err)
	cards, err := s.ClientCards(context.Background(), resp.ClientID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	return resp, cards[0]
}

func fund(t *testing.T, s *Service, clientID, cardID int64, amount string) {
	t.Helper()
	_, err := s.Transactions.TopUp(context.Background(), clientID, cardID, dec(amount))
	require.NoError(t, err)
}

func balance(t *testing.T, repo repository.Queries, cardID int64) decimal.Decimal {
	t.Helper()
	card, err := repo.GetCard(context.Background(), cardID)
	require.NoError(t, err)
	return card.Balance
}

func TestRegisterClientCreatesProfile(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	resp, card := registerClient(t, s, "anna", "2000")
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.RoleClient, resp.Role)

	client, err := repo.GetClient(ctx, resp.ClientID)
	require.NoError(t, err)
	assert.Equal(t, "SINGLE", client.MaritalStatus)
	require.NotNil(t, client.EmploymentStartDate)
	assert.Equal(t, *date(2024, time.March, 15), *client.EmploymentStartDate)
	// income 35 + one year employed 10 + clean history 30
	assert.Equal(t, 75, client.CreditHistoryScore)
	assert.Equal(t, models.RiskLow, client.RiskClass)

	account, err := repo.FindBonusAccountByClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Zero(t, account.PointsBalance)

	assert.Equal(t, models.CardActive, card.Status)
	assert.True(t, card.Balance.IsZero())
	assert.Len(t, card.CardNumber, cardNumberLength)
	assert.Equal(t, 2028, card.ExpirationDate.Year())
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"short password", RegisterRequest{Username: "bob", Password: "123", Role: models.RoleEmployee}, ErrValidation},
		{"missing username", RegisterRequest{Password: "secret123", Role: models.RoleEmployee}, ErrValidation},
		{"unknown role", RegisterRequest{Username: "bob", Password: "secret123", Role: "ROOT"}, ErrValidation},
		{"self admin", RegisterRequest{Username: "bob", Password: "secret123", Role: models.RoleAdmin}, ErrAuthorization},
		{"client without passport", RegisterRequest{Username: "bob", Password: "secret123", FullName: "Bob", BirthDate: date(1990, 1, 1)}, ErrValidation},
		{"client without birth date", RegisterRequest{Username: "bob", Password: "secret123", FullName: "Bob", Passport: "1"}, ErrValidation},
		{"negative income", RegisterRequest{Username: "bob", Password: "secret123", FullName: "Bob", Passport: "1", BirthDate: date(1990, 1, 1), MonthlyIncome: dec("-1")}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	s, _ := newTestService(t)
	registerClient(t, s, "anna", "2000")

	_, err := s.Register(context.Background(), RegisterRequest{Username: "anna", Password: "secret123", Role: models.RoleEmployee})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestEmployeeLoginNeedsActivation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	resp, err := s.Register(ctx, RegisterRequest{Username: "clerk", Password: "secret123", Role: "employee"})
	require.NoError(t, err)
	assert.Empty(t, resp.Token)
	assert.Equal(t, models.RoleEmployee, resp.Role)

	_, err = s.Login(ctx, "clerk", "secret123")
	assert.ErrorIs(t, err, ErrAuthorization)

	require.NoError(t, s.SetUserEnabled(ctx, resp.UserID, true))
	login, err := s.Login(ctx, "clerk", "secret123")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	user, err := s.ToggleUserBlock(ctx, resp.UserID)
	require.NoError(t, err)
	assert.False(t, user.Enabled)
	_, err = s.Login(ctx, "clerk", "secret123")
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s, _ := newTestService(t)
	registerClient(t, s, "anna", "2000")

	_, err := s.Login(context.Background(), "anna", "wrong-password")
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = s.Login(context.Background(), "nobody", "secret123")
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestLoginTokenCarriesClaims(t *testing.T) {
	s, _ := newTestService(t)
	reg, _ := registerClient(t, s, "anna", "2000")

	resp, err := s.Login(context.Background(), "anna", "secret123")
	require.NoError(t, err)
	assert.Equal(t, reg.ClientID, resp.ClientID)

	claims, err := s.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "anna", claims.Username)
	assert.Equal(t, models.RoleClient, claims.Role)
	assert.Equal(t, reg.ClientID, claims.ClientID)
	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, userID)
	assert.Equal(t, testNow.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	_, err = ParseToken(resp.Token, "other-secret", s.now)
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestParseTokenUsesServiceClock(t *testing.T) {
	s, _ := newTestService(t)
	registerClient(t, s, "anna", "2000")
	resp, err := s.Login(context.Background(), "anna", "secret123")
	require.NoError(t, err)

	_, err = ParseToken(resp.Token, testSecret, func() time.Time { return testNow.Add(59 * time.Minute) })
	assert.NoError(t, err)
	_, err = ParseToken(resp.Token, testSecret, func() time.Time { return testNow.Add(61 * time.Minute) })
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestCreateUserAndEnsureAdmin(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureAdmin(ctx, "admin", "admin123"))
	require.NoError(t, s.EnsureAdmin(ctx, "admin", "ignored-second-time"))
	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].Enabled)
	assert.Equal(t, models.RoleAdmin, users[0].Role)

	login, err := s.Login(ctx, "admin", "admin123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, login.Role)

	resp, err := s.CreateUser(ctx, RegisterRequest{Username: "clerk", Password: "secret123", Role: models.RoleEmployee})
	require.NoError(t, err)
	assert.Empty(t, resp.Token)
	_, err = s.Login(ctx, "clerk", "secret123")
	assert.NoError(t, err)
}

func TestSetUserEnabledUnknownUser(t *testing.T) {
	s, _ := newTestService(t)
	err := s.SetUserEnabled(context.Background(), 42, true)
	assert.ErrorIs(t, err, ErrNotFound)
}
