package job

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"tokensale/internal/config"
	"tokensale/internal/infrastructure/database"
	"tokensale/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func jobTestConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{TokenEvents: "token-events", SaleEvents: "sale-events"},
		},
		Token: config.TokenConfig{TotalSupply: "1000000"},
	}
}

func TestSaleExpiryJob_ClosesExpiredSale(t *testing.T) {
	db := newJobTestDB(t)
	ctx := context.Background()

	start := time.Now().Add(-2 * time.Hour)
	end := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&model.Sale{
		Stage:           model.SaleStageStarted,
		Rate:            1000,
		HardCap:         "10",
		MinContribution: "1",
		ParticipantCap:  "5",
		WeiRaised:       "3",
		StartAt:         &start,
		EndAt:           &end,
		Beneficiary:     "0x0000000000000000000000000000000000000003",
		SaleAddress:     "0x0000000000000000000000000000000000000004",
		OwnerAddress:    "0x0000000000000000000000000000000000000001",
	}).Error)

	j := NewSaleExpiryJob(db, jobTestConfig())
	j.closeExpiredSale(ctx)

	var sale model.Sale
	require.NoError(t, db.First(&sale).Error)
	assert.Equal(t, model.SaleStageEnded, sale.Stage)

	// 收盘事件已入发件箱
	var outbox model.OutboxMessage
	require.NoError(t, db.First(&outbox).Error)
	assert.Equal(t, "sale-events", outbox.Topic)
	assert.Contains(t, outbox.Payload, model.EventSaleClosed)
}

func TestSaleExpiryJob_SkipsActiveSale(t *testing.T) {
	db := newJobTestDB(t)
	ctx := context.Background()

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	require.NoError(t, db.Create(&model.Sale{
		Stage:           model.SaleStageStarted,
		Rate:            1000,
		HardCap:         "10",
		MinContribution: "1",
		ParticipantCap:  "5",
		WeiRaised:       "0",
		StartAt:         &start,
		EndAt:           &end,
		Beneficiary:     "0x0000000000000000000000000000000000000003",
		SaleAddress:     "0x0000000000000000000000000000000000000004",
		OwnerAddress:    "0x0000000000000000000000000000000000000001",
	}).Error)

	j := NewSaleExpiryJob(db, jobTestConfig())
	j.closeExpiredSale(ctx)

	var sale model.Sale
	require.NoError(t, db.First(&sale).Error)
	assert.Equal(t, model.SaleStageStarted, sale.Stage)
}

func TestLedgerAuditJob_SumBurned(t *testing.T) {
	db := newJobTestDB(t)
	ctx := context.Background()

	entries := []model.LedgerEntry{
		{TransactionNo: "TXN1", Kind: model.LedgerKindToken, Type: model.LedgerEntryBurn,
			Address: "0x0000000000000000000000000000000000000011", Amount: "100",
			Direction: -1, BalanceBefore: "500", BalanceAfter: "400"},
		{TransactionNo: "TXN2", Kind: model.LedgerKindToken, Type: model.LedgerEntryBurn,
			Address: "0x0000000000000000000000000000000000000012", Amount: "50",
			Direction: -1, BalanceBefore: "200", BalanceAfter: "150"},
		// 非销毁流水不计入
		{TransactionNo: "TXN3", Kind: model.LedgerKindToken, Type: model.LedgerEntryTransfer,
			Address: "0x0000000000000000000000000000000000000011", Amount: "30",
			Direction: -1, BalanceBefore: "400", BalanceAfter: "370"},
	}
	for i := range entries {
		require.NoError(t, db.Create(&entries[i]).Error)
	}

	j := NewLedgerAuditJob(db, jobTestConfig())
	burned, count, err := j.sumBurned(ctx)
	require.NoError(t, err)
	assert.Equal(t, "150", burned.Dec())
	assert.Equal(t, int64(2), count)
}
