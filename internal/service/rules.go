package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/sirupsen/logrus"
)

// LoyaltyRules is the MCC-keyed registry of cashback and points rules
type LoyaltyRules struct {
	repo repository.Queries
	log  *logrus.Logger
}

// NewLoyaltyRules initializes the rule registry
func NewLoyaltyRules(repo repository.Queries, log *logrus.Logger) *LoyaltyRules {
	return &LoyaltyRules{repo: repo, log: log}
}

// Lookup returns the rule for mcc, or nil when no rule is configured
func (r *LoyaltyRules) Lookup(ctx context.Context, mcc string) (*models.LoyaltyRule, error) {
	rule, err := r.repo.FindLoyaltyRuleByMCC(ctx, strings.TrimSpace(mcc))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, lookup(err, "loyalty rule")
	}
	return rule, nil
}

// List returns all rules ordered by MCC code
func (r *LoyaltyRules) List(ctx context.Context) ([]models.LoyaltyRule, error) {
	return r.repo.ListLoyaltyRules(ctx)
}

// Add validates and stores a new rule
func (r *LoyaltyRules) Add(ctx context.Context, rule models.LoyaltyRule) (*models.LoyaltyRule, error) {
	rule.MCCCode = strings.TrimSpace(rule.MCCCode)
	if rule.MCCCode == "" {
		return nil, newError(ErrValidation, "mcc code is required")
	}
	if rule.CashbackRate.IsNegative() {
		return nil, newError(ErrValidation, "cashback rate must not be negative")
	}
	if !money.HasScaleAtMost(rule.CashbackRate, money.RateScale) {
		return nil, newError(ErrValidation, "cashback rate has more than %d decimal places", money.RateScale)
	}
	if rule.IsBonusPoints && !rule.CashbackRate.IsZero() {
		return nil, newError(ErrValidation, "points rule must not carry a cashback rate")
	}
	rule.ID = 0
	if err := r.repo.SaveLoyaltyRule(ctx, &rule); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, newError(ErrValidation, "rule for mcc %s already exists", rule.MCCCode)
		}
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"mcc": rule.MCCCode, "points": rule.IsBonusPoints}).Info("Loyalty rule added")
	return &rule, nil
}

// Delete removes a rule by id
func (r *LoyaltyRules) Delete(ctx context.Context, id int64) error {
	if err := r.repo.DeleteLoyaltyRule(ctx, id); err != nil {
		return lookup(err, "loyalty rule")
	}
	r.log.Infof("Loyalty rule %d deleted", id)
	return nil
}
