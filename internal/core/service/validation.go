package service

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/core/domain"
)

// Validator guards every operation before the store is touched.
type Validator struct {
	validate           *validator.Validate
	minSessionIDLength int
	maxBatchSize       int
}

func NewValidator(minSessionIDLength, maxBatchSize int) *Validator {
	return &Validator{
		validate:           NewStructValidator(),
		minSessionIDLength: minSessionIDLength,
		maxBatchSize:       maxBatchSize,
	}
}

// NewStructValidator returns a validator with the notblank rule registered.
func NewStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

func (v *Validator) SessionID(sessionID string) error {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return domain.InvalidArgument("session id must not be blank")
	}
	if trimmed != sessionID {
		return domain.InvalidArgument("session id must not have surrounding whitespace")
	}
	if len(trimmed) < v.minSessionIDLength {
		return domain.InvalidArgument("session id must be at least %d characters", v.minSessionIDLength)
	}
	return nil
}

func (v *Validator) RecordID(recordID string) error {
	if strings.TrimSpace(recordID) == "" {
		return domain.InvalidArgument("record id must not be blank")
	}
	return nil
}

func (v *Validator) Record(record domain.ProductRecord) error {
	if err := v.validate.Struct(record); err != nil {
		return domain.InvalidArgument("record %q: %v", record.ID, err)
	}
	if record.Balance != nil {
		if err := v.Balance(*record.Balance); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) Balance(balance domain.Balance) error {
	if balance.IsNegative() {
		return domain.InvalidArgument("balance amounts must not be negative")
	}
	return nil
}

func (v *Validator) Amount(field domain.BalanceField, value decimal.Decimal) error {
	if value.IsNegative() {
		return domain.InvalidArgument("%s must not be negative", field)
	}
	return nil
}

func (v *Validator) BatchSize(n int) error {
	if v.maxBatchSize > 0 && n > v.maxBatchSize {
		return domain.InvalidArgument("batch of %d exceeds the limit of %d", n, v.maxBatchSize)
	}
	return nil
}
