package domain

import "github.com/shopspring/decimal"

type Classification struct {
	Code string `json:"code" validate:"notblank"`
	Name string `json:"name"`
}

// ProductRecord is one account-like product cached for a session.
type ProductRecord struct {
	ID             string          `json:"id" validate:"notblank"`
	Number         string          `json:"number"`
	Classification *Classification `json:"classification,omitempty"`
	Balance        *Balance        `json:"balance,omitempty"`
}

type Balance struct {
	TotalBalance    decimal.Decimal `json:"totalBalance"`
	AvailableAmount decimal.Decimal `json:"availableAmount"`
	UsedAmount      decimal.Decimal `json:"usedAmount"`
}

// IsConsistent reports whether available + used equals total.
// Writes never enforce it.
func (b Balance) IsConsistent() bool {
	return b.AvailableAmount.Add(b.UsedAmount).Equal(b.TotalBalance)
}

// IsNegative reports whether any of the three amounts is below zero.
func (b Balance) IsNegative() bool {
	return b.TotalBalance.IsNegative() || b.AvailableAmount.IsNegative() || b.UsedAmount.IsNegative()
}

// With returns a copy of b with one field set to value.
func (b Balance) With(field BalanceField, value decimal.Decimal) Balance {
	switch field {
	case FieldTotalBalance:
		b.TotalBalance = value
	case FieldAvailableAmount:
		b.AvailableAmount = value
	case FieldUsedAmount:
		b.UsedAmount = value
	}
	return b
}

// Get returns the amount stored under field.
func (b Balance) Get(field BalanceField) decimal.Decimal {
	switch field {
	case FieldTotalBalance:
		return b.TotalBalance
	case FieldAvailableAmount:
		return b.AvailableAmount
	case FieldUsedAmount:
		return b.UsedAmount
	}
	return decimal.Zero
}

type BalanceField string

const (
	FieldTotalBalance    BalanceField = "totalBalance"
	FieldAvailableAmount BalanceField = "availableAmount"
	FieldUsedAmount      BalanceField = "usedAmount"
)

// ParseBalanceField maps a wire name onto one of the three known fields.
func ParseBalanceField(name string) (BalanceField, error) {
	switch f := BalanceField(name); f {
	case FieldTotalBalance, FieldAvailableAmount, FieldUsedAmount:
		return f, nil
	}
	return "", InvalidArgument("unknown balance field %q", name)
}
