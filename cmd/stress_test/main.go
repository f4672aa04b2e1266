package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront-cache/internal/adapter/storage"
	"github.com/rl1809/storefront-cache/internal/core/domain"
	"github.com/rl1809/storefront-cache/internal/core/service"
)

const (
	keyPrefix       = "stress:products:"
	recordCount     = 20
	updatesPerField = 50
	queueSize       = 10000
)

var fields = []domain.BalanceField{
	domain.FieldTotalBalance,
	domain.FieldAvailableAmount,
	domain.FieldUsedAmount,
}

func main() {
	ctx := context.Background()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, PoolSize: 100})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	sessionID := "stress-" + uuid.NewString()
	defer rdb.Del(ctx, storage.SessionKey(keyPrefix, sessionID))

	cache := storage.NewRedisProductCache(rdb, storage.WithKeyPrefix(keyPrefix))
	cacheService := service.NewProductCacheService(cache, cache, service.Settings{
		TTL:                5 * time.Minute,
		MinSessionIDLength: 8,
		MaxBatchSize:       500,
		EventQueueSize:     queueSize,
	})

	// Drain the event queue in background
	var events atomic.Int64
	drained := make(chan struct{})
	go func() {
		for range cacheService.Events() {
			events.Add(1)
		}
		close(drained)
	}()

	records := make([]domain.ProductRecord, 0, recordCount)
	for i := 0; i < recordCount; i++ {
		records = append(records, domain.ProductRecord{
			ID:      fmt.Sprintf("P%03d", i),
			Number:  fmt.Sprintf("ACC-%03d", i),
			Balance: &domain.Balance{},
		})
	}
	if _, err := cacheService.ReplaceAll(ctx, sessionID, records); err != nil {
		log.Fatalf("failed to seed records: %v", err)
	}

	// Every field of every record gets its own writer. Each writer ends on a
	// known value, so any lost update shows up as a wrong final balance.
	var successCount atomic.Int32
	var failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for _, record := range records {
		for fi, field := range fields {
			wg.Add(1)
			go func(recordID string, field domain.BalanceField, base int64) {
				defer wg.Done()
				for n := int64(1); n <= updatesPerField; n++ {
					applied, err := cacheService.UpdateBalanceField(ctx, sessionID, recordID, field, decimal.NewFromInt(base+n))
					if err == nil && applied {
						successCount.Add(1)
					} else {
						failCount.Add(1)
					}
				}
			}(record.ID, field, int64(fi)*1000)
		}
	}

	wg.Wait()
	elapsed := time.Since(start)

	cacheService.Close()
	<-drained

	success := successCount.Load()
	fail := failCount.Load()
	expected := int32(recordCount * len(fields) * updatesPerField)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Records:          %d\n", recordCount)
	fmt.Printf("Field Updates:    %d\n", expected)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Events Observed:  %d\n", events.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == expected && fail == 0 {
		fmt.Println("PASS: every field update was applied")
	} else {
		fmt.Printf("FAIL: expected %d applied updates, got %d\n", expected, success)
	}

	// Verify final balances in Redis
	lost := 0
	stored, err := cacheService.GetAll(ctx, sessionID)
	if err != nil {
		log.Fatalf("failed to read back records: %v", err)
	}
	for _, record := range stored {
		for fi, field := range fields {
			want := decimal.NewFromInt(int64(fi)*1000 + updatesPerField)
			if record.Balance == nil || !record.Balance.Get(field).Equal(want) {
				lost++
			}
		}
	}

	if lost == 0 && len(stored) == recordCount {
		fmt.Println("PASS: no lost field updates")
	} else {
		fmt.Printf("FAIL: %d fields hold a stale value across %d records\n", lost, len(stored))
	}
}
