package storage

import (
	"encoding/json"
	"fmt"

	"github.com/rl1809/storefront-cache/internal/core/domain"
)

// Records are stored as plain JSON objects. Amounts are decimal strings so the
// Lua scripts can move them around without touching their precision.

func encodeRecord(record domain.ProductRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode record %s: %w", record.ID, err)
	}
	return string(data), nil
}

func decodeRecord(raw string) (domain.ProductRecord, error) {
	var record domain.ProductRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return domain.ProductRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

func encodeBalance(balance domain.Balance) (string, error) {
	data, err := json.Marshal(balance)
	if err != nil {
		return "", fmt.Errorf("encode balance: %w", err)
	}
	return string(data), nil
}
