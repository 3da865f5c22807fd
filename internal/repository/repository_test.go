package repository

import (
	"context"
	"fmt"
	"testing"

	"tokensale/internal/infrastructure/database"
	"tokensale/internal/model"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testOwner = "0x0000000000000000000000000000000000000001"
	testAdmin = "0x0000000000000000000000000000000000000002"
	testSale  = "0x0000000000000000000000000000000000000004"
	testUser  = "0x0000000000000000000000000000000000000011"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedTokenState(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Create(&model.TokenState{
		Name:         "Test Token",
		Symbol:       "TT",
		Decimals:     18,
		TotalSupply:  "1000000",
		OwnerAddress: testOwner,
		AdminAddress: testAdmin,
	}).Error)
}

func TestTokenRepository_BindSale_SetOnce(t *testing.T) {
	db := newTestDB(t)
	seedTokenState(t, db)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.BindSale(ctx, nil, testSale))

	state, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSale, state.SaleAddress)

	// 第二次绑定必须失败，且地址不变
	err = repo.BindSale(ctx, nil, testUser)
	assert.ErrorIs(t, err, ErrSaleAlreadyBound)

	state, err = repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, testSale, state.SaleAddress)
}

func TestTokenRepository_EnableTransfers_OneWay(t *testing.T) {
	db := newTestDB(t)
	seedTokenState(t, db)
	repo := NewTokenRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.EnableTransfers(ctx, nil))

	state, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.True(t, state.TransfersEnabled)

	// 开关单向，重复开启报错
	err = repo.EnableTransfers(ctx, nil)
	assert.ErrorIs(t, err, ErrTransfersAlreadyEnabled)
}

func TestTokenRepository_Get_NotInitialized(t *testing.T) {
	db := newTestDB(t)
	repo := NewTokenRepository(db)

	_, err := repo.Get(context.Background())
	assert.ErrorIs(t, err, ErrTokenNotInitialized)
}

func TestAccountRepository_OptimisticLock(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.TokenAccount{Address: testUser, Balance: "100"}).Error)

	account, err := repo.GetByAddress(ctx, nil, testUser)
	require.NoError(t, err)

	// 第一次按当前版本更新成功
	require.NoError(t, repo.UpdateBalance(ctx, nil, testUser, "90", account.Version))

	// 拿着旧版本再更新，条件落空
	err = repo.UpdateBalance(ctx, nil, testUser, "80", account.Version)
	assert.ErrorIs(t, err, ErrOptimisticLock)

	updated, err := repo.GetByAddress(ctx, nil, testUser)
	require.NoError(t, err)
	assert.Equal(t, "90", updated.Balance)
	assert.Equal(t, account.Version+1, updated.Version)
}

func TestAccountRepository_GetByAddress_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)

	_, err := repo.GetByAddress(context.Background(), nil, testUser)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_EnsureExists_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.EnsureExists(ctx, nil, testUser))
	require.NoError(t, repo.EnsureExists(ctx, nil, testUser))

	account, err := repo.GetByAddress(ctx, nil, testUser)
	require.NoError(t, err)
	assert.Equal(t, "0", account.Balance)

	var count int64
	require.NoError(t, db.Model(&model.TokenAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSaleRepository_UpdateStage(t *testing.T) {
	db := newTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Sale{
		Stage:           model.SaleStageSetup,
		Rate:            1000,
		HardCap:         "10",
		MinContribution: "1",
		ParticipantCap:  "5",
		WeiRaised:       "0",
		Beneficiary:     testOwner,
		SaleAddress:     testSale,
		OwnerAddress:    testOwner,
	}).Error)

	// 跳跃推进非法
	err := repo.UpdateStage(ctx, nil, model.SaleStageSetup, model.SaleStageEnded, nil, nil)
	assert.ErrorIs(t, err, ErrStageInvalid)

	require.NoError(t, repo.UpdateStage(ctx, nil, model.SaleStageSetup, model.SaleStageStarted, nil, nil))

	// 当前阶段与 from 不匹配时条件落空
	err = repo.UpdateStage(ctx, nil, model.SaleStageSetup, model.SaleStageStarted, nil, nil)
	assert.Error(t, err)

	sale, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SaleStageStarted, sale.Stage)
}

func TestSaleRepository_UpdateRate_OnlyInSetup(t *testing.T) {
	db := newTestDB(t)
	repo := NewSaleRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Sale{
		Stage:           model.SaleStageStarted,
		Rate:            1000,
		HardCap:         "10",
		MinContribution: "1",
		ParticipantCap:  "5",
		WeiRaised:       "0",
		Beneficiary:     testOwner,
		SaleAddress:     testSale,
		OwnerAddress:    testOwner,
	}).Error)

	err := repo.UpdateRate(ctx, nil, 2000)
	assert.Error(t, err)

	sale, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), sale.Rate)
}

func TestWhitelistRepository_Add_Idempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewWhitelistRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Add(ctx, nil, []string{testUser, testAdmin}))
	// 重复加入不报错、不重复建行
	require.NoError(t, repo.Add(ctx, nil, []string{testUser}))

	exists, err := repo.Exists(ctx, testUser)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.Exists(ctx, testOwner)
	require.NoError(t, err)
	assert.False(t, exists)

	var count int64
	require.NoError(t, db.Model(&model.WhitelistEntry{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestAllowanceRepository_Get_NilWhenAbsent(t *testing.T) {
	db := newTestDB(t)
	repo := NewAllowanceRepository(db)

	allowance, err := repo.Get(context.Background(), nil, testUser, testSale)
	require.NoError(t, err)
	assert.Nil(t, allowance)
}
