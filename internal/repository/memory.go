package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
)

// Memory is an in-process Store used by tests and local runs.
// Writes inside InTx are undone when the unit fails; row locks are per-key
// semaphores held until the unit ends.
type Memory struct {
	data *memData
	tx   *memTx
}

type memData struct {
	mu    sync.RWMutex
	locks *lockTable
	seq   map[string]int64
	now   func() time.Time

	users        map[int64]models.User
	clients      map[int64]models.Client
	cards        map[int64]models.Card
	transactions map[int64]models.Transaction
	applications map[int64]models.CreditApplication
	loans        map[int64]models.Loan
	bonus        map[int64]models.BonusAccount
	ledger       map[int64]models.BonusLedgerEntry
	rules        map[int64]models.LoyaltyRule
	params       map[string]models.SystemParameter
}

type memTx struct {
	held []string
	undo []func()
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: &memData{
		locks:        newLockTable(),
		seq:          make(map[string]int64),
		now:          time.Now,
		users:        make(map[int64]models.User),
		clients:      make(map[int64]models.Client),
		cards:        make(map[int64]models.Card),
		transactions: make(map[int64]models.Transaction),
		applications: make(map[int64]models.CreditApplication),
		loans:        make(map[int64]models.Loan),
		bonus:        make(map[int64]models.BonusAccount),
		ledger:       make(map[int64]models.BonusLedgerEntry),
		rules:        make(map[int64]models.LoyaltyRule),
		params:       make(map[string]models.SystemParameter),
	}}
}

// InTx runs fn as one unit; on error every write made through q is reverted
func (m *Memory) InTx(ctx context.Context, fn func(q Queries) error) error {
	if m.tx != nil {
		return fn(m)
	}
	tx := &memTx{}
	unit := &Memory{data: m.data, tx: tx}
	err := fn(unit)
	if err != nil {
		m.data.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.data.mu.Unlock()
	}
	for i := len(tx.held) - 1; i >= 0; i-- {
		m.data.locks.release(tx.held[i])
	}
	return err
}

// Lock acquires the per-row semaphores of set, skipping keys this unit already holds
func (m *Memory) Lock(ctx context.Context, set LockSet) error {
	if m.tx == nil {
		return ErrNoTx
	}
	for _, key := range lockKeys(set) {
		if m.holds(key) {
			continue
		}
		if err := m.data.locks.acquire(ctx, key); err != nil {
			return fmt.Errorf("failed to lock %s: %w", key, err)
		}
		m.tx.held = append(m.tx.held, key)
	}
	return nil
}

func (m *Memory) holds(key string) bool {
	for _, k := range m.tx.held {
		if k == key {
			return true
		}
	}
	return false
}

func lockKeys(set LockSet) []string {
	var keys []string
	for _, group := range []struct {
		prefix string
		ids    []int64
	}{
		{"application", set.Applications},
		{"client", set.Clients},
		{"loan", set.Loans},
		{"bonus", set.BonusClients},
		{"card", set.Cards},
	} {
		ids := append([]int64(nil), group.ids...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for i, id := range ids {
			if i > 0 && ids[i-1] == id {
				continue
			}
			keys = append(keys, fmt.Sprintf("%s:%d", group.prefix, id))
		}
	}
	return keys
}

func (m *Memory) nextID(table string) int64 {
	m.data.seq[table]++
	return m.data.seq[table]
}

// put stores v under key and registers the inverse write; caller holds data.mu.
func put[K comparable, V any](m *Memory, table map[K]V, key K, v V) {
	prev, existed := table[key]
	table[key] = v
	if m.tx != nil {
		m.tx.undo = append(m.tx.undo, func() {
			if existed {
				table[key] = prev
			} else {
				delete(table, key)
			}
		})
	}
}

func remove[K comparable, V any](m *Memory, table map[K]V, key K) bool {
	prev, existed := table[key]
	if !existed {
		return false
	}
	delete(table, key)
	if m.tx != nil {
		m.tx.undo = append(m.tx.undo, func() { table[key] = prev })
	}
	return true
}

func sortedValues[V any](table map[int64]V, keep func(V) bool, desc bool) []V {
	ids := make([]int64, 0, len(table))
	for id, v := range table {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if desc {
			return ids[i] > ids[j]
		}
		return ids[i] < ids[j]
	})
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, table[id])
	}
	return out
}

// CreateUser stores a new user; usernames are unique
func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for _, u := range m.data.users {
		if u.Username == user.Username {
			return fmt.Errorf("user: %w", ErrConflict)
		}
	}
	user.ID = m.nextID("users")
	user.CreatedAt = m.data.now()
	put(m, m.data.users, user.ID, *user)
	return nil
}

// FindUserByUsername retrieves a user by username
func (m *Memory) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for _, u := range m.data.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user: %w", ErrNotFound)
}

// GetUser retrieves a user by id
func (m *Memory) GetUser(ctx context.Context, id int64) (*models.User, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	u, ok := m.data.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	return &u, nil
}

// ListUsers lists all users ordered by id
func (m *Memory) ListUsers(ctx context.Context) ([]models.User, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.users, nil, false), nil
}

// SetUserEnabled activates or blocks a login
func (m *Memory) SetUserEnabled(ctx context.Context, id int64, enabled bool) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	u, ok := m.data.users[id]
	if !ok {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	u.Enabled = enabled
	put(m, m.data.users, id, u)
	return nil
}

// GetClient retrieves a client by id
func (m *Memory) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	c, ok := m.data.clients[id]
	if !ok {
		return nil, fmt.Errorf("client: %w", ErrNotFound)
	}
	return &c, nil
}

// FindClientByUserID retrieves the client profile of a user
func (m *Memory) FindClientByUserID(ctx context.Context, userID int64) (*models.Client, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for _, c := range m.data.clients {
		if c.UserID == userID {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("client: %w", ErrNotFound)
}

// SaveClient inserts or updates a client
func (m *Memory) SaveClient(ctx context.Context, c *models.Client) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.nextID("clients")
	}
	put(m, m.data.clients, c.ID, *c)
	return nil
}

// GetCard retrieves a card by id
func (m *Memory) GetCard(ctx context.Context, id int64) (*models.Card, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	c, ok := m.data.cards[id]
	if !ok {
		return nil, fmt.Errorf("card: %w", ErrNotFound)
	}
	return &c, nil
}

// FindCardByNumber retrieves a card by number
func (m *Memory) FindCardByNumber(ctx context.Context, number string) (*models.Card, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for _, c := range m.data.cards {
		if c.CardNumber == number {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("card: %w", ErrNotFound)
}

// FindCardsByClient lists a client's cards ordered by id
func (m *Memory) FindCardsByClient(ctx context.Context, clientID int64) ([]models.Card, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.cards, func(c models.Card) bool { return c.ClientID == clientID }, false), nil
}

// FindActiveCardsExpiringBefore lists ACTIVE cards that expire before t
func (m *Memory) FindActiveCardsExpiringBefore(ctx context.Context, t time.Time) ([]models.Card, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.cards, func(c models.Card) bool {
		return c.Status == models.CardActive && c.ExpirationDate.Before(t)
	}, false), nil
}

// SaveCard inserts or updates a card; card numbers are unique
func (m *Memory) SaveCard(ctx context.Context, c *models.Card) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for _, other := range m.data.cards {
		if other.CardNumber == c.CardNumber && other.ID != c.ID {
			return fmt.Errorf("card: %w", ErrConflict)
		}
	}
	if c.ID == 0 {
		c.ID = m.nextID("cards")
	}
	put(m, m.data.cards, c.ID, *c)
	return nil
}

// CreateTransaction appends a ledger entry
func (m *Memory) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	t.ID = m.nextID("transactions")
	t.CreatedAt = m.data.now()
	put(m, m.data.transactions, t.ID, *t)
	return nil
}

// FindTransactionsByCard lists a card's transactions, newest first
func (m *Memory) FindTransactionsByCard(ctx context.Context, cardID int64) ([]models.Transaction, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.transactions, func(t models.Transaction) bool { return t.CardID == cardID }, true), nil
}

// FindTransactionsByClient lists transactions over all cards of a client, newest first
func (m *Memory) FindTransactionsByClient(ctx context.Context, clientID int64) ([]models.Transaction, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.transactions, func(t models.Transaction) bool {
		return m.data.cards[t.CardID].ClientID == clientID
	}, true), nil
}

// GetApplication retrieves a credit application by id
func (m *Memory) GetApplication(ctx context.Context, id int64) (*models.CreditApplication, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	a, ok := m.data.applications[id]
	if !ok {
		return nil, fmt.Errorf("credit application: %w", ErrNotFound)
	}
	return &a, nil
}

// FindApplicationsByStatus lists applications in a status ordered by id
func (m *Memory) FindApplicationsByStatus(ctx context.Context, status models.ApplicationStatus) ([]models.CreditApplication, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.applications, func(a models.CreditApplication) bool { return a.Status == status }, false), nil
}

// SaveApplication inserts or updates a credit application
func (m *Memory) SaveApplication(ctx context.Context, a *models.CreditApplication) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.nextID("applications")
		a.CreatedAt = m.data.now()
	}
	put(m, m.data.applications, a.ID, *a)
	return nil
}

// GetLoan retrieves a loan by id
func (m *Memory) GetLoan(ctx context.Context, id int64) (*models.Loan, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	l, ok := m.data.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan: %w", ErrNotFound)
	}
	return &l, nil
}

// FindLoansByClient lists a client's loans, optionally filtered by status
func (m *Memory) FindLoansByClient(ctx context.Context, clientID int64, statuses ...models.LoanStatus) ([]models.Loan, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.loans, func(l models.Loan) bool {
		return l.ClientID == clientID && hasStatus(l.Status, statuses)
	}, false), nil
}

// FindLoansByStatus lists all loans in a status
func (m *Memory) FindLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.loans, func(l models.Loan) bool { return l.Status == status }, false), nil
}

// SaveLoan inserts or updates a loan
func (m *Memory) SaveLoan(ctx context.Context, l *models.Loan) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if l.ID == 0 {
		l.ID = m.nextID("loans")
	}
	put(m, m.data.loans, l.ID, *l)
	return nil
}

// FindBonusAccountByClient retrieves the bonus account of a client
func (m *Memory) FindBonusAccountByClient(ctx context.Context, clientID int64) (*models.BonusAccount, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for _, a := range m.data.bonus {
		if a.ClientID == clientID {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("bonus account: %w", ErrNotFound)
}

// SaveBonusAccount inserts or updates a bonus account; one per client
func (m *Memory) SaveBonusAccount(ctx context.Context, a *models.BonusAccount) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if a.ID == 0 {
		for _, other := range m.data.bonus {
			if other.ClientID == a.ClientID {
				return fmt.Errorf("bonus account: %w", ErrConflict)
			}
		}
		a.ID = m.nextID("bonus")
	}
	put(m, m.data.bonus, a.ID, *a)
	return nil
}

// CreateBonusLedgerEntry appends a points or cashback movement
func (m *Memory) CreateBonusLedgerEntry(ctx context.Context, e *models.BonusLedgerEntry) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	e.ID = m.nextID("ledger")
	e.CreatedAt = m.data.now()
	put(m, m.data.ledger, e.ID, *e)
	return nil
}

// FindBonusLedger lists a bonus account's movements, newest first
func (m *Memory) FindBonusLedger(ctx context.Context, bonusAccountID int64) ([]models.BonusLedgerEntry, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	return sortedValues(m.data.ledger, func(e models.BonusLedgerEntry) bool { return e.BonusAccountID == bonusAccountID }, true), nil
}

// FindLoyaltyRuleByMCC retrieves the rule for an MCC code
func (m *Memory) FindLoyaltyRuleByMCC(ctx context.Context, mcc string) (*models.LoyaltyRule, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	for _, r := range m.data.rules {
		if r.MCCCode == mcc {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("loyalty rule: %w", ErrNotFound)
}

// ListLoyaltyRules lists all loyalty rules ordered by MCC code
func (m *Memory) ListLoyaltyRules(ctx context.Context) ([]models.LoyaltyRule, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	rules := sortedValues(m.data.rules, nil, false)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].MCCCode < rules[j].MCCCode })
	return rules, nil
}

// SaveLoyaltyRule inserts or updates a rule; MCC codes are unique
func (m *Memory) SaveLoyaltyRule(ctx context.Context, rule *models.LoyaltyRule) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	for _, other := range m.data.rules {
		if other.MCCCode == rule.MCCCode && other.ID != rule.ID {
			return fmt.Errorf("loyalty rule: %w", ErrConflict)
		}
	}
	if rule.ID == 0 {
		rule.ID = m.nextID("rules")
	}
	put(m, m.data.rules, rule.ID, *rule)
	return nil
}

// DeleteLoyaltyRule removes a rule by id
func (m *Memory) DeleteLoyaltyRule(ctx context.Context, id int64) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	if !remove(m, m.data.rules, id) {
		return fmt.Errorf("loyalty rule: %w", ErrNotFound)
	}
	return nil
}

// GetParameter retrieves a system parameter by key
func (m *Memory) GetParameter(ctx context.Context, key string) (*models.SystemParameter, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	p, ok := m.data.params[key]
	if !ok {
		return nil, fmt.Errorf("system parameter: %w", ErrNotFound)
	}
	return &p, nil
}

// ListParameters lists all system parameters ordered by key
func (m *Memory) ListParameters(ctx context.Context) ([]models.SystemParameter, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	out := make([]models.SystemParameter, 0, len(m.data.params))
	for _, p := range m.data.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SaveParameter upserts a system parameter
func (m *Memory) SaveParameter(ctx context.Context, p *models.SystemParameter) error {
	m.data.mu.Lock()
	defer m.data.mu.Unlock()
	put(m, m.data.params, p.Key, *p)
	return nil
}

type lockTable struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{keys: make(map[string]chan struct{})}
}

func (lt *lockTable) acquire(ctx context.Context, key string) error {
	lt.mu.Lock()
	ch, ok := lt.keys[key]
	if !ok {
		ch = make(chan struct{}, 1)
		lt.keys[key] = ch
	}
	lt.mu.Unlock()
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (lt *lockTable) release(key string) {
	lt.mu.Lock()
	ch := lt.keys[key]
	lt.mu.Unlock()
	<-ch
}
