package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	minRequestedLimit = 100
	minTermMonths     = 3
	maxTermMonths     = 60
)

// SubmitRequest is a client's credit application form
type SubmitRequest struct {
	ClientID            int64
	RequestedLimit      decimal.Decimal
	MaritalStatus       string
	HasDelinquency      bool
	WorkExperienceYears float64
	TermMonths          int
}

// Decision is an approved application with the loan issued for it
type Decision struct {
	Application models.CreditApplication `json:"application"`
	Loan        models.Loan              `json:"loan"`
}

// ApplicationWorkflow runs credit applications from submission to approval or rejection
type ApplicationWorkflow struct {
	store   repository.Store
	scoring *ScoringEngine
	loans   *LoanService
	log     *logrus.Logger
	now     func() time.Time
}

// NewApplicationWorkflow initializes the application workflow
func NewApplicationWorkflow(store repository.Store, scoring *ScoringEngine, loans *LoanService, log *logrus.Logger, now func() time.Time) *ApplicationWorkflow {
	return &ApplicationWorkflow{store: store, scoring: scoring, loans: loans, log: log, now: now}
}

func validateSubmit(req SubmitRequest) error {
	switch {
	case req.RequestedLimit.LessThan(decimal.NewFromInt(minRequestedLimit)):
		return newError(ErrValidation, "requested limit must be at least %d", minRequestedLimit)
	case req.TermMonths < minTermMonths || req.TermMonths > maxTermMonths:
		return newError(ErrValidation, "term must be between %d and %d months", minTermMonths, maxTermMonths)
	case req.WorkExperienceYears < 0 || math.IsNaN(req.WorkExperienceYears):
		return newError(ErrValidation, "work experience must not be negative")
	case strings.TrimSpace(req.MaritalStatus) == "":
		return newError(ErrValidation, "marital status is required")
	}
	return nil
}

// Submit scores an application and stores it PENDING when approved or REJECTED otherwise.
// The returned message describes the verdict.
func (w *ApplicationWorkflow) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validateSubmit(req); err != nil {
		return "", err
	}
	var (
		app    models.CreditApplication
		result models.ScoringResult
	)
	err := w.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Clients: []int64{req.ClientID}}); err != nil {
			return err
		}
		client, err := q.GetClient(ctx, req.ClientID)
		if err != nil {
			return lookup(err, "client")
		}
		client.MaritalStatus = strings.ToUpper(strings.TrimSpace(req.MaritalStatus))

		applicant, err := w.scoring.Snapshot(ctx, q, *client)
		if err != nil {
			return err
		}
		if applicant.EmploymentStartDate == nil && req.WorkExperienceYears > 0 {
			months := int(math.Round(req.WorkExperienceYears * 12))
			start := w.now().AddDate(0, -months, 0)
			applicant.EmploymentStartDate = &start
		}
		result, err = w.scoring.Calculate(ctx, applicant, req.HasDelinquency)
		if err != nil {
			return err
		}

		client.CreditHistoryScore = result.Score
		client.RiskClass = result.RiskClass
		if err := q.SaveClient(ctx, client); err != nil {
			return err
		}

		app = models.CreditApplication{
			ClientID:            client.ID,
			RequestedLimit:      money.Round(req.RequestedLimit),
			ApprovedMinLimit:    result.MinLimit,
			ApprovedMaxLimit:    result.MaxLimit,
			CalculatedScore:     result.Score,
			WorkExperienceYears: req.WorkExperienceYears,
			TermMonths:          req.TermMonths,
			Status:              models.ApplicationRejected,
			CreatedAt:           w.now(),
		}
		if result.Approved {
			app.Status = models.ApplicationPending
		}
		return q.SaveApplication(ctx, &app)
	})
	if err != nil {
		return "", err
	}

	w.log.WithFields(logrus.Fields{
		"client_id":      req.ClientID,
		"application_id": app.ID,
		"score":          result.Score,
		"status":         app.Status,
	}).Info("Credit application submitted")

	switch {
	case !result.Approved:
		return fmt.Sprintf("rejected, score: %d", result.Score), nil
	case req.RequestedLimit.GreaterThan(result.MaxLimit):
		return fmt.Sprintf("approved with restriction, available: %s - %s", result.MinLimit, result.MaxLimit), nil
	default:
		return fmt.Sprintf("pre-approved, limit: %s - %s", result.MinLimit, result.MaxLimit), nil
	}
}

// Decide approves an application with finalLimit and issues the loan in the same unit.
// Employees approve PENDING applications within the scored band; admins may force-approve
// PENDING or REJECTED applications with any positive limit.
func (w *ApplicationWorkflow) Decide(ctx context.Context, applicationID int64, finalLimit decimal.Decimal, role models.Role) (*Decision, error) {
	if role != models.RoleEmployee && role != models.RoleAdmin {
		return nil, newError(ErrAuthorization, "role %s cannot approve applications", role)
	}
	if !money.Positive(finalLimit) {
		return nil, newError(ErrInvalidAmount, "final limit must be positive")
	}
	finalLimit = money.Round(finalLimit)

	var (
		decision Decision
		client   *models.Client
	)
	err := w.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Applications: []int64{applicationID}}); err != nil {
			return err
		}
		app, err := q.GetApplication(ctx, applicationID)
		if err != nil {
			return lookup(err, "application")
		}

		switch role {
		case models.RoleEmployee:
			if app.Status != models.ApplicationPending {
				return newError(ErrInvalidState, "application %d is %s", app.ID, app.Status)
			}
			if finalLimit.LessThan(app.ApprovedMinLimit) || finalLimit.GreaterThan(app.ApprovedMaxLimit) {
				return newError(ErrAuthorization, "limit %s is outside the approved range %s - %s",
					finalLimit, app.ApprovedMinLimit, app.ApprovedMaxLimit)
			}
		case models.RoleAdmin:
			if app.Status == models.ApplicationApproved {
				return newError(ErrInvalidState, "application %d is already approved", app.ID)
			}
		}

		app.FinalApprovedLimit = &finalLimit
		app.Status = models.ApplicationApproved
		if err := q.SaveApplication(ctx, app); err != nil {
			return err
		}

		if err := q.Lock(ctx, repository.LockSet{Clients: []int64{app.ClientID}}); err != nil {
			return err
		}
		client, err = q.GetClient(ctx, app.ClientID)
		if err != nil {
			return lookup(err, "client")
		}
		client.RiskClass = RiskClassForScore(app.CalculatedScore)
		if err := q.SaveClient(ctx, client); err != nil {
			return err
		}

		term := app.TermMonths
		if term <= 0 {
			term = 12
		}
		loan, err := w.loans.issueWithin(ctx, q, app.ClientID, finalLimit, term)
		if err != nil {
			return err
		}
		decision = Decision{Application: *app, Loan: *loan}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.log.WithFields(logrus.Fields{
		"application_id": applicationID,
		"limit":          finalLimit.String(),
		"role":           role,
		"loan_id":        decision.Loan.ID,
	}).Info("Credit application approved")
	w.loans.notifyIssued(*client, decision.Loan)
	return &decision, nil
}

// Reject closes a PENDING application
func (w *ApplicationWorkflow) Reject(ctx context.Context, applicationID int64) (*models.CreditApplication, error) {
	var app *models.CreditApplication
	err := w.store.InTx(ctx, func(q repository.Queries) error {
		if err := q.Lock(ctx, repository.LockSet{Applications: []int64{applicationID}}); err != nil {
			return err
		}
		var err error
		app, err = q.GetApplication(ctx, applicationID)
		if err != nil {
			return lookup(err, "application")
		}
		if app.Status != models.ApplicationPending {
			return newError(ErrInvalidState, "application %d is %s", app.ID, app.Status)
		}
		app.Status = models.ApplicationRejected
		return q.SaveApplication(ctx, app)
	})
	if err != nil {
		return nil, err
	}
	w.log.WithField("application_id", applicationID).Info("Credit application rejected")
	return app, nil
}

// Pending lists applications waiting for an employee decision
func (w *ApplicationWorkflow) Pending(ctx context.Context) ([]models.CreditApplication, error) {
	return w.store.FindApplicationsByStatus(ctx, models.ApplicationPending)
}

// All lists every application ordered by id
func (w *ApplicationWorkflow) All(ctx context.Context) ([]models.CreditApplication, error) {
	var apps []models.CreditApplication
	for _, status := range []models.ApplicationStatus{models.ApplicationPending, models.ApplicationApproved, models.ApplicationRejected} {
		found, err := w.store.FindApplicationsByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s applications: %w", status, err)
		}
		apps = append(apps, found...)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID < apps[j].ID })
	return apps, nil
}
