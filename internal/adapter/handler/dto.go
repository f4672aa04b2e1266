package handler

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/core/domain"
)

// BalanceRequest keeps each amount as a pointer so a missing field is told apart from zero.
type BalanceRequest struct {
	TotalBalance    *decimal.Decimal `json:"totalBalance"`
	AvailableAmount *decimal.Decimal `json:"availableAmount"`
	UsedAmount      *decimal.Decimal `json:"usedAmount"`
}

type ProductRecordRequest struct {
	ID             string                 `json:"id"`
	Number         string                 `json:"number"`
	Classification *domain.Classification `json:"classification,omitempty"`
	Balance        *BalanceRequest        `json:"balance,omitempty"`
}

func NewBalanceRequest(b domain.Balance) *BalanceRequest {
	return &BalanceRequest{
		TotalBalance:    &b.TotalBalance,
		AvailableAmount: &b.AvailableAmount,
		UsedAmount:      &b.UsedAmount,
	}
}

func NewProductRecordRequest(r domain.ProductRecord) ProductRecordRequest {
	req := ProductRecordRequest{ID: r.ID, Number: r.Number, Classification: r.Classification}
	if r.Balance != nil {
		req.Balance = NewBalanceRequest(*r.Balance)
	}
	return req
}

func (r *BalanceRequest) toDomain() (domain.Balance, error) {
	if r == nil || r.TotalBalance == nil || r.AvailableAmount == nil || r.UsedAmount == nil {
		return domain.Balance{}, domain.InvalidArgument("balance requires totalBalance, availableAmount and usedAmount")
	}
	return domain.Balance{
		TotalBalance:    *r.TotalBalance,
		AvailableAmount: *r.AvailableAmount,
		UsedAmount:      *r.UsedAmount,
	}, nil
}

// toDomain accepts a record without balance but not one with a partial balance.
func (r ProductRecordRequest) toDomain() (domain.ProductRecord, error) {
	record := domain.ProductRecord{ID: r.ID, Number: r.Number, Classification: r.Classification}
	if r.Balance != nil {
		b, err := r.Balance.toDomain()
		if err != nil {
			return domain.ProductRecord{}, domain.InvalidArgument("record %q: balance requires totalBalance, availableAmount and usedAmount", r.ID)
		}
		record.Balance = &b
	}
	return record, nil
}

// toBalanceUpdates keeps complete entries. Incomplete ones count as skipped
// in the batch response.
func toBalanceUpdates(in map[string]BalanceRequest) map[string]domain.Balance {
	updates := make(map[string]domain.Balance, len(in))
	for id, req := range in {
		b, err := req.toDomain()
		if err != nil {
			continue
		}
		updates[id] = b
	}
	return updates
}
