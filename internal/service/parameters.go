package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dan9191/bank-core/internal/models"
	"github.com/Dan9191/bank-core/internal/money"
	"github.com/Dan9191/bank-core/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Parameter keys read by the core.
const (
	ParamBPM        = "BPM"
	ParamPointsRate = "POINTS_RATE"
	ParamKeyRate    = "KEY_RATE"
)

var parameterDefaults = map[string]string{
	ParamBPM:        "400",
	ParamPointsRate: "10",
}

// Parameters reads tunable constants, falling back to built-in defaults with a warning
type Parameters struct {
	repo repository.Queries
	log  *logrus.Logger
}

// NewParameters initializes the parameter store
func NewParameters(repo repository.Queries, log *logrus.Logger) *Parameters {
	return &Parameters{repo: repo, log: log}
}

// String returns the stored value of key or its default
func (p *Parameters) String(ctx context.Context, key string) (string, error) {
	param, err := p.repo.GetParameter(ctx, key)
	if err == nil && strings.TrimSpace(param.Value) != "" {
		return strings.TrimSpace(param.Value), nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("failed to read parameter %s: %w", key, err)
	}
	def, ok := parameterDefaults[key]
	if !ok {
		return "", newError(ErrNotFound, "parameter %s is not set", key)
	}
	p.log.WithField("param", key).Warnf("Parameter not set, using default %s", def)
	return def, nil
}

// Decimal returns key as a decimal; unparsable or non-positive stored values fall back to the default
func (p *Parameters) Decimal(ctx context.Context, key string) (decimal.Decimal, error) {
	raw, err := p.String(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := money.Parse(raw)
	if err == nil && money.Positive(d) {
		return d, nil
	}
	def, ok := parameterDefaults[key]
	if !ok {
		return decimal.Zero, newError(ErrValidation, "parameter %s has invalid value %q", key, raw)
	}
	p.log.WithField("param", key).Warnf("Parameter value %q is invalid, using default %s", raw, def)
	return money.MustParse(def), nil
}

// Set stores a parameter value
func (p *Parameters) Set(ctx context.Context, key, value, description string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return newError(ErrValidation, "parameter key is required")
	}
	if err := p.repo.SaveParameter(ctx, &models.SystemParameter{Key: key, Value: value, Description: description}); err != nil {
		return err
	}
	p.log.Infof("Parameter %s set to %s", key, value)
	return nil
}

// List returns all stored parameters
func (p *Parameters) List(ctx context.Context) ([]models.SystemParameter, error) {
	return p.repo.ListParameters(ctx)
}
