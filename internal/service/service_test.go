package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"tokensale/internal/config"
	"tokensale/internal/infrastructure/database"
	"tokensale/internal/model"
	"tokensale/pkg/amount"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 测试地址全部使用纯数字地址，规范化前后形态一致
const (
	ownerAddr       = "0x0000000000000000000000000000000000000001"
	adminAddr       = "0x0000000000000000000000000000000000000002"
	beneficiaryAddr = "0x0000000000000000000000000000000000000003"
	saleAddr        = "0x0000000000000000000000000000000000000004"
	buyer1Addr      = "0x0000000000000000000000000000000000000011"
	buyer2Addr      = "0x0000000000000000000000000000000000000012"
	outsiderAddr    = "0x0000000000000000000000000000000000000021"
)

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{
				TokenEvents: "token-events",
				SaleEvents:  "sale-events",
			},
		},
		Token: config.TokenConfig{
			Name:           "Test Token",
			Symbol:         "TT",
			Decimals:       18,
			TotalSupply:    "1000000",
			OwnerAddress:   ownerAddr,
			AdminAddress:   adminAddr,
			SaleAllocation: "100000",
		},
		Sale: config.SaleConfig{
			Rate:            1000,
			DurationHours:   24,
			HardCap:         "10",
			MinContribution: "1",
			ParticipantCap:  "5",
			Beneficiary:     beneficiaryAddr,
			OwnerAddress:    ownerAddr,
			SaleAddress:     saleAddr,
		},
		Business: config.BusinessConfig{MaxRetryCount: 3},
	}
}

// newTestEnv 内存数据库 + 创世播种，不依赖 Redis / Kafka
func newTestEnv(t *testing.T) (*gorm.DB, *config.Config) {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	cfg := testConfig()
	require.NoError(t, database.Seed(db, cfg))
	return db, cfg
}

// tokenBalance 直接读库取余额（未开户视为零）
func tokenBalance(t *testing.T, db *gorm.DB, address string) string {
	t.Helper()
	var account model.TokenAccount
	err := db.Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "0"
	}
	require.NoError(t, err)
	return account.Balance
}

func fundsBalance(t *testing.T, db *gorm.DB, address string) string {
	t.Helper()
	var account model.FundsAccount
	err := db.Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "0"
	}
	require.NoError(t, err)
	return account.Balance
}

// assertConservation 校验代币守恒：所有账户余额之和 == 当前总供应量
func assertConservation(t *testing.T, db *gorm.DB) {
	t.Helper()

	var state model.TokenState
	require.NoError(t, db.First(&state).Error)
	totalSupply := amount.MustParse(state.TotalSupply)

	var accounts []model.TokenAccount
	require.NoError(t, db.Find(&accounts).Error)

	sum := amount.Zero()
	for _, account := range accounts {
		next, err := amount.Add(sum, amount.MustParse(account.Balance))
		require.NoError(t, err)
		sum = next
	}
	require.True(t, sum.Eq(totalSupply),
		"账本失衡: 余额之和=%s, 总供应量=%s", amount.Format(sum), amount.Format(totalSupply))
}
