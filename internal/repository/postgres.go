package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository provides database operations
type Repository struct {
	db   *sql.DB
	q    dbtx
	inTx bool
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

// InTx runs fn inside a database transaction, committing when fn returns nil
func (r *Repository) InTx(ctx context.Context, fn func(q Queries) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Repository{db: r.db, q: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Lock takes row locks with SELECT ... FOR UPDATE in the global kind order
func (r *Repository) Lock(ctx context.Context, set LockSet) error {
	if !r.inTx {
		return ErrNoTx
	}
	steps := []struct {
		query string
		ids   []int64
	}{
		{`SELECT id FROM bank.credit_applications WHERE id = ANY($1) ORDER BY id FOR UPDATE`, set.Applications},
		{`SELECT id FROM bank.clients WHERE id = ANY($1) ORDER BY id FOR UPDATE`, set.Clients},
		{`SELECT id FROM bank.loans WHERE id = ANY($1) ORDER BY id FOR UPDATE`, set.Loans},
		{`SELECT id FROM bank.bonus_accounts WHERE client_id = ANY($1) ORDER BY client_id FOR UPDATE`, set.BonusClients},
		{`SELECT id FROM bank.cards WHERE id = ANY($1) ORDER BY id FOR UPDATE`, set.Cards},
	}
	for _, step := range steps {
		if len(step.ids) == 0 {
			continue
		}
		ids := append([]int64(nil), step.ids...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		rows, err := r.q.QueryContext(ctx, step.query, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("failed to lock rows: %w", err)
		}
		for rows.Next() {
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("failed to lock rows: %w", err)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("failed to lock rows: %w", err)
		}
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to find %s: %w", what, err)
}

func writeErr(err error, what string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("failed to save %s: %w", what, err)
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO bank.users (username, password_hash, role, enabled, created_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, user.Username, user.PasswordHash, user.Role, user.Enabled).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return writeErr(err, "user")
	}
	return nil
}

// FindUserByUsername retrieves a user by username
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, password_hash, role, enabled, created_at
		FROM bank.users
		WHERE username = $1`
	err := r.q.QueryRowContext(ctx, query, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Enabled, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

const userColumns = `id, username, password_hash, role, enabled, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Enabled, &u.CreatedAt)
	return u, err
}

// GetUser retrieves a user by id
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM bank.users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return user, nil
}

// ListUsers lists all users ordered by id
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+userColumns+` FROM bank.users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetUserEnabled activates or blocks a login
func (r *Repository) SetUserEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE bank.users SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return nil
}

const clientColumns = `id, user_id, full_name, passport, email, monthly_income, birth_date,
	employment_start_date, marital_status, credit_history_score, risk_class`

func scanClient(row interface{ Scan(...any) error }) (*models.Client, error) {
	c := &models.Client{}
	err := row.Scan(&c.ID, &c.UserID, &c.FullName, &c.Passport, &c.Email, &c.MonthlyIncome, &c.BirthDate,
		&c.EmploymentStartDate, &c.MaritalStatus, &c.CreditHistoryScore, &c.RiskClass)
	return c, err
}

// GetClient retrieves a client by id
func (r *Repository) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	c, err := scanClient(r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM bank.clients WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "client")
	}
	return c, nil
}

// FindClientByUserID retrieves the client profile of a user
func (r *Repository) FindClientByUserID(ctx context.Context, userID int64) (*models.Client, error) {
	c, err := scanClient(r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM bank.clients WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err, "client")
	}
	return c, nil
}

// SaveClient inserts a client when ID is zero and updates it otherwise
func (r *Repository) SaveClient(ctx context.Context, c *models.Client) error {
	if c.ID == 0 {
		query := `
			INSERT INTO bank.clients (user_id, full_name, passport, email, monthly_income, birth_date,
				employment_start_date, marital_status, credit_history_score, risk_class)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`
		err := r.q.QueryRowContext(ctx, query, c.UserID, c.FullName, c.Passport, c.Email, c.MonthlyIncome, c.BirthDate,
			c.EmploymentStartDate, c.MaritalStatus, c.CreditHistoryScore, c.RiskClass).Scan(&c.ID)
		if err != nil {
			return writeErr(err, "client")
		}
		return nil
	}
	query := `
		UPDATE bank.clients SET full_name = $2, passport = $3, email = $4, monthly_income = $5, birth_date = $6,
			employment_start_date = $7, marital_status = $8, credit_history_score = $9, risk_class = $10
		WHERE id = $1`
	_, err := r.q.ExecContext(ctx, query, c.ID, c.FullName, c.Passport, c.Email, c.MonthlyIncome, c.BirthDate,
		c.EmploymentStartDate, c.MaritalStatus, c.CreditHistoryScore, c.RiskClass)
	if err != nil {
		return writeErr(err, "client")
	}
	return nil
}

const cardColumns = `id, client_id, card_number, cvv_hash, expiration_date, credit_limit, balance, status`

func scanCard(row interface{ Scan(...any) error }) (*models.Card, error) {
	c := &models.Card{}
	err := row.Scan(&c.ID, &c.ClientID, &c.CardNumber, &c.CVVHash, &c.ExpirationDate, &c.CreditLimit, &c.Balance, &c.Status)
	return c, err
}

func (r *Repository) queryCards(ctx context.Context, query string, args ...any) ([]models.Card, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cards: %w", err)
	}
	defer rows.Close()
	var cards []models.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, *c)
	}
	return cards, rows.Err()
}

// GetCard retrieves a card by id
func (r *Repository) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	c, err := scanCard(r.q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "card")
	}
	return c, nil
}

// FindCardByNumber retrieves a card by its digits-only number
func (r *Repository) FindCardByNumber(ctx context.Context, number string) (*models.Card, error) {
	c, err := scanCard(r.q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE card_number = $1`, number))
	if err != nil {
		return nil, notFound(err, "card")
	}
	return c, nil
}

// FindCardsByClient lists a client's cards ordered by id
func (r *Repository) FindCardsByClient(ctx context.Context, clientID int64) ([]models.Card, error) {
	return r.queryCards(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE client_id = $1 ORDER BY id`, clientID)
}

// FindActiveCardsExpiringBefore lists ACTIVE cards whose expiration date is before t
func (r *Repository) FindActiveCardsExpiringBefore(ctx context.Context, t time.Time) ([]models.Card, error) {
	return r.queryCards(ctx, `SELECT `+cardColumns+` FROM bank.cards WHERE status = $1 AND expiration_date < $2 ORDER BY id`,
		models.CardActive, t)
}

// SaveCard inserts a card when ID is zero and updates it otherwise
func (r *Repository) SaveCard(ctx context.Context, c *models.Card) error {
	if c.ID == 0 {
		query := `
			INSERT INTO bank.cards (client_id, card_number, cvv_hash, expiration_date, credit_limit, balance, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`
		err := r.q.QueryRowContext(ctx, query, c.ClientID, c.CardNumber, c.CVVHash, c.ExpirationDate, c.CreditLimit,
			c.Balance, c.Status).Scan(&c.ID)
		if err != nil {
			return writeErr(err, "card")
		}
		return nil
	}
	query := `UPDATE bank.cards SET credit_limit = $2, balance = $3, status = $4, expiration_date = $5 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, c.ID, c.CreditLimit, c.Balance, c.Status, c.ExpirationDate); err != nil {
		return writeErr(err, "card")
	}
	return nil
}

// CreateTransaction appends a ledger entry
func (r *Repository) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO bank.transactions (card_id, amount, mcc_code, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, t.CardID, t.Amount, t.MCCCode, t.Description, t.Status).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return writeErr(err, "transaction")
	}
	return nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.CardID, &t.Amount, &t.MCCCode, &t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindTransactionsByCard lists a card's transactions, newest first
func (r *Repository) FindTransactionsByCard(ctx context.Context, cardID int64) ([]models.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT id, card_id, amount, mcc_code, description, status, created_at
		FROM bank.transactions WHERE card_id = $1 ORDER BY id DESC`, cardID)
}

// FindTransactionsByClient lists transactions over all cards of a client, newest first
func (r *Repository) FindTransactionsByClient(ctx context.Context, clientID int64) ([]models.Transaction, error) {
	return r.queryTransactions(ctx, `
		SELECT t.id, t.card_id, t.amount, t.mcc_code, t.description, t.status, t.created_at
		FROM bank.transactions t JOIN bank.cards c ON c.id = t.card_id
		WHERE c.client_id = $1 ORDER BY t.id DESC`, clientID)
}

const applicationColumns = `id, client_id, requested_limit, approved_min_limit, approved_max_limit,
	final_approved_limit, calculated_score, work_experience_years, term_months, status, created_at`

func scanApplication(row interface{ Scan(...any) error }) (*models.CreditApplication, error) {
	a := &models.CreditApplication{}
	err := row.Scan(&a.ID, &a.ClientID, &a.RequestedLimit, &a.ApprovedMinLimit, &a.ApprovedMaxLimit,
		&a.FinalApprovedLimit, &a.CalculatedScore, &a.WorkExperienceYears, &a.TermMonths, &a.Status, &a.CreatedAt)
	return a, err
}

// GetApplication retrieves a credit application by id
func (r *Repository) GetApplication(ctx context.Context, id int64) (*models.CreditApplication, error) {
	a, err := scanApplication(r.q.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM bank.credit_applications WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "credit application")
	}
	return a, nil
}

// FindApplicationsByStatus lists applications in the given status ordered by id
func (r *Repository) FindApplicationsByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.CreditApplication, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM bank.credit_applications WHERE status = $1 ORDER BY id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit applications: %w", err)
	}
	defer rows.Close()
	var out []models.CreditApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit application: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SaveApplication inserts an application when ID is zero and updates its decision otherwise
func (r *Repository) SaveApplication(ctx context.Context, a *models.CreditApplication) error {
	if a.ID == 0 {
		query := `
			INSERT INTO bank.credit_applications (client_id, requested_limit, approved_min_limit, approved_max_limit,
				final_approved_limit, calculated_score, work_experience_years, term_months, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
			RETURNING id, created_at`
		err := r.q.QueryRowContext(ctx, query, a.ClientID, a.RequestedLimit, a.ApprovedMinLimit, a.ApprovedMaxLimit,
			a.FinalApprovedLimit, a.CalculatedScore, a.WorkExperienceYears, a.TermMonths, a.Status).
			Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return writeErr(err, "credit application")
		}
		return nil
	}
	query := `UPDATE bank.credit_applications SET final_approved_limit = $2, status = $3 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, a.ID, a.FinalApprovedLimit, a.Status); err != nil {
		return writeErr(err, "credit application")
	}
	return nil
}

const loanColumns = `id, client_id, principal_amount, interest_rate, total_amount_to_repay, remaining_debt,
	monthly_payment, term_months, start_date, end_date, status`

func (r *Repository) queryLoans(ctx context.Context, query string, args ...any) ([]models.Loan, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()
	var out []models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanLoan(row interface{ Scan(...any) error }) (*models.Loan, error) {
	l := &models.Loan{}
	err := row.Scan(&l.ID, &l.ClientID, &l.PrincipalAmount, &l.InterestRate, &l.TotalAmountToRepay, &l.RemainingDebt,
		&l.MonthlyPayment, &l.TermMonths, &l.StartDate, &l.EndDate, &l.Status)
	return l, err
}

// GetLoan retrieves a loan by id
func (r *Repository) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	l, err := scanLoan(r.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM bank.loans WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "loan")
	}
	return l, nil
}

// FindLoansByClient lists a client's loans, optionally filtered by status
func (r *Repository) FindLoansByClient(ctx context.Context, clientID int64, statuses ...models.LoanStatus) ([]models.Loan, error) {
	if len(statuses) == 0 {
		return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM bank.loans WHERE client_id = $1 ORDER BY id`, clientID)
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM bank.loans WHERE client_id = $1 AND status = ANY($2) ORDER BY id`,
		clientID, pq.Array(names))
}

// FindLoansByStatus lists all loans in a status
func (r *Repository) FindLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	return r.queryLoans(ctx, `SELECT `+loanColumns+` FROM bank.loans WHERE status = $1 ORDER BY id`, status)
}

// SaveLoan inserts a loan when ID is zero and updates its repayment state otherwise
func (r *Repository) SaveLoan(ctx context.Context, l *models.Loan) error {
	if l.ID == 0 {
		query := `
			INSERT INTO bank.loans (client_id, principal_amount, interest_rate, total_amount_to_repay, remaining_debt,
				monthly_payment, term_months, start_date, end_date, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id`
		err := r.q.QueryRowContext(ctx, query, l.ClientID, l.PrincipalAmount, l.InterestRate, l.TotalAmountToRepay,
			l.RemainingDebt, l.MonthlyPayment, l.TermMonths, l.StartDate, l.EndDate, l.Status).Scan(&l.ID)
		if err != nil {
			return writeErr(err, "loan")
		}
		return nil
	}
	query := `UPDATE bank.loans SET remaining_debt = $2, status = $3 WHERE id = $1`
	if _, err := r.q.ExecContext(ctx, query, l.ID, l.RemainingDebt, l.Status); err != nil {
		return writeErr(err, "loan")
	}
	return nil
}

// FindBonusAccountByClient retrieves the bonus account of a client
func (r *Repository) FindBonusAccountByClient(ctx context.Context, clientID int64) (*models.BonusAccount, error) {
	a := &models.BonusAccount{}
	err := r.q.QueryRowContext(ctx, `SELECT id, client_id, points_balance FROM bank.bonus_accounts WHERE client_id = $1`, clientID).
		Scan(&a.ID, &a.ClientID, &a.PointsBalance)
	if err != nil {
		return nil, notFound(err, "bonus account")
	}
	return a, nil
}

// SaveBonusAccount inserts a bonus account when ID is zero and updates its balance otherwise
func (r *Repository) SaveBonusAccount(ctx context.Context, a *models.BonusAccount) error {
	if a.ID == 0 {
		err := r.q.QueryRowContext(ctx,
			`INSERT INTO bank.bonus_accounts (client_id, points_balance) VALUES ($1, $2) RETURNING id`,
			a.ClientID, a.PointsBalance).Scan(&a.ID)
		if err != nil {
			return writeErr(err, "bonus account")
		}
		return nil
	}
	if _, err := r.q.ExecContext(ctx, `UPDATE bank.bonus_accounts SET points_balance = $2 WHERE id = $1`, a.ID, a.PointsBalance); err != nil {
		return writeErr(err, "bonus account")
	}
	return nil
}

// CreateBonusLedgerEntry appends a points or cashback movement
func (r *Repository) CreateBonusLedgerEntry(ctx context.Context, e *models.BonusLedgerEntry) error {
	query := `
		INSERT INTO bank.bonus_ledger (bonus_account_id, transaction_id, amount, type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.q.QueryRowContext(ctx, query, e.BonusAccountID, e.TransactionID, e.Amount, e.Type, e.Description).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return writeErr(err, "bonus ledger entry")
	}
	return nil
}

// FindBonusLedger lists a bonus account's movements, newest first
func (r *Repository) FindBonusLedger(ctx context.Context, bonusAccountID int64) ([]models.BonusLedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, bonus_account_id, transaction_id, amount, type, description, created_at
		FROM bank.bonus_ledger WHERE bonus_account_id = $1 ORDER BY id DESC`, bonusAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonus ledger: %w", err)
	}
	defer rows.Close()
	var out []models.BonusLedgerEntry
	for rows.Next() {
		var e models.BonusLedgerEntry
		if err := rows.Scan(&e.ID, &e.BonusAccountID, &e.TransactionID, &e.Amount, &e.Type, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bonus ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindLoyaltyRuleByMCC retrieves the rule for an MCC code
func (r *Repository) FindLoyaltyRuleByMCC(ctx context.Context, mcc string) (*models.LoyaltyRule, error) {
	rule := &models.LoyaltyRule{}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, mcc_code, category_name, cashback_rate, is_bonus_points
		FROM bank.loyalty_rules WHERE mcc_code = $1`, mcc).
		Scan(&rule.ID, &rule.MCCCode, &rule.CategoryName, &rule.CashbackRate, &rule.IsBonusPoints)
	if err != nil {
		return nil, notFound(err, "loyalty rule")
	}
	return rule, nil
}

// ListLoyaltyRules lists all loyalty rules ordered by MCC code
func (r *Repository) ListLoyaltyRules(ctx context.Context) ([]models.LoyaltyRule, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, mcc_code, category_name, cashback_rate, is_bonus_points
		FROM bank.loyalty_rules ORDER BY mcc_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query loyalty rules: %w", err)
	}
	defer rows.Close()
	var out []models.LoyaltyRule
	for rows.Next() {
		var rule models.LoyaltyRule
		if err := rows.Scan(&rule.ID, &rule.MCCCode, &rule.CategoryName, &rule.CashbackRate, &rule.IsBonusPoints); err != nil {
			return nil, fmt.Errorf("failed to scan loyalty rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// SaveLoyaltyRule inserts a rule when ID is zero and updates it otherwise
func (r *Repository) SaveLoyaltyRule(ctx context.Context, rule *models.LoyaltyRule) error {
	if rule.ID == 0 {
		err := r.q.QueryRowContext(ctx, `
			INSERT INTO bank.loyalty_rules (mcc_code, category_name, cashback_rate, is_bonus_points)
			VALUES ($1, $2, $3, $4) RETURNING id`,
			rule.MCCCode, rule.CategoryName, rule.CashbackRate, rule.IsBonusPoints).Scan(&rule.ID)
		if err != nil {
			return writeErr(err, "loyalty rule")
		}
		return nil
	}
	_, err := r.q.ExecContext(ctx, `
		UPDATE bank.loyalty_rules SET mcc_code = $2, category_name = $3, cashback_rate = $4, is_bonus_points = $5
		WHERE id = $1`, rule.ID, rule.MCCCode, rule.CategoryName, rule.CashbackRate, rule.IsBonusPoints)
	if err != nil {
		return writeErr(err, "loyalty rule")
	}
	return nil
}

// DeleteLoyaltyRule removes a rule by id
func (r *Repository) DeleteLoyaltyRule(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bank.loyalty_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loyalty rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("loyalty rule: %w", ErrNotFound)
	}
	return nil
}

// GetParameter retrieves a system parameter by key
func (r *Repository) GetParameter(ctx context.Context, key string) (*models.SystemParameter, error) {
	p := &models.SystemParameter{}
	err := r.q.QueryRowContext(ctx,
		`SELECT param_key, param_value, description FROM bank.system_parameters WHERE param_key = $1`, key).
		Scan(&p.Key, &p.Value, &p.Description)
	if err != nil {
		return nil, notFound(err, "system parameter")
	}
	return p, nil
}

// ListParameters lists all system parameters ordered by key
func (r *Repository) ListParameters(ctx context.Context) ([]models.SystemParameter, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT param_key, param_value, description FROM bank.system_parameters ORDER BY param_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query system parameters: %w", err)
	}
	defer rows.Close()
	var out []models.SystemParameter
	for rows.Next() {
		var p models.SystemParameter
		if err := rows.Scan(&p.Key, &p.Value, &p.Description); err != nil {
			return nil, fmt.Errorf("failed to scan system parameter: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveParameter upserts a system parameter
func (r *Repository) SaveParameter(ctx context.Context, p *models.SystemParameter) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO bank.system_parameters (param_key, param_value, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (param_key) DO UPDATE SET param_value = EXCLUDED.param_value, description = EXCLUDED.description`,
		p.Key, p.Value, p.Description)
	if err != nil {
		return writeErr(err, "system parameter")
	}
	return nil
}
