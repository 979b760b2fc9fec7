package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("record already exists")
	// ErrNoTx is returned when row locks are requested outside a transaction
	ErrNoTx = errors.New("row locks require a transaction")
)

// LockSet names the rows a unit of work must hold exclusively.
// Implementations lock applications, then clients, then loans, then bonus accounts,
// then cards, each kind in ascending id order. Callers issuing several Lock calls in
// one unit must follow the same kind order.
type LockSet struct {
	Applications []int64
	Clients      []int64
	Loans        []int64
	BonusClients []int64 // bonus accounts, keyed by client id
	Cards        []int64
}

// Queries is the per-entity repository surface. Every method runs inside the
// caller's transaction when obtained from Store.InTx.
type Queries interface {
	Lock(ctx context.Context, set LockSet) error

	CreateUser(ctx context.Context, user *models.User) error
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserEnabled(ctx context.Context, id int64, enabled bool) error

	GetClient(ctx context.Context, id int64) (*models.Client, error)
	FindClientByUserID(ctx context.Context, userID int64) (*models.Client, error)
	SaveClient(ctx context.Context, client *models.Client) error

	GetCard(ctx context.Context, id int64) (*models.Card, error)
	FindCardByNumber(ctx context.Context, number string) (*models.Card, error)
	FindCardsByClient(ctx context.Context, clientID int64) ([]models.Card, error)
	FindActiveCardsExpiringBefore(ctx context.Context, t time.Time) ([]models.Card, error)
	SaveCard(ctx context.Context, card *models.Card) error

	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	FindTransactionsByCard(ctx context.Context, cardID int64) ([]models.Transaction, error)
	FindTransactionsByClient(ctx context.Context, clientID int64) ([]models.Transaction, error)

	GetApplication(ctx context.Context, id int64) (*models.CreditApplication, error)
	FindApplicationsByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.CreditApplication, error)
	SaveApplication(ctx context.Context, app *models.CreditApplication) error

	GetLoan(ctx context.Context, id int64) (*models.Loan, error)
	FindLoansByClient(ctx context.Context, clientID int64, statuses ...models.LoanStatus) ([]models.Loan, error)
	FindLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error)
	SaveLoan(ctx context.Context, loan *models.Loan) error

	FindBonusAccountByClient(ctx context.Context, clientID int64) (*models.BonusAccount, error)
	SaveBonusAccount(ctx context.Context, account *models.BonusAccount) error
	CreateBonusLedgerEntry(ctx context.Context, entry *models.BonusLedgerEntry) error
	FindBonusLedger(ctx context.Context, bonusAccountID int64) ([]models.BonusLedgerEntry, error)

	FindLoyaltyRuleByMCC(ctx context.Context, mcc string) (*models.LoyaltyRule, error)
	ListLoyaltyRules(ctx context.Context) ([]models.LoyaltyRule, error)
	SaveLoyaltyRule(ctx context.Context, rule *models.LoyaltyRule) error
	DeleteLoyaltyRule(ctx context.Context, id int64) error

	GetParameter(ctx context.Context, key string) (*models.SystemParameter, error)
	ListParameters(ctx context.Context) ([]models.SystemParameter, error)
	SaveParameter(ctx context.Context, param *models.SystemParameter) error
}

// Store is a Queries that can open an all-or-nothing unit of work.
// Calling InTx on a Queries that is already inside a unit joins that unit.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
}

func hasStatus(status models.LoanStatus, statuses []models.LoanStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
