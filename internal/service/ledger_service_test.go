package service

import (
	"context"
	"testing"

	"tokensale/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfer_PrivilegedBypassesGate(t *testing.T) {
	db, cfg := newTestEnv(t)
	svc := NewLedgerService(db, cfg)
	ctx := context.Background()

	// 转账未开启，但 admin 是特权地址
	require.NoError(t, svc.Transfer(ctx, adminAddr, buyer1Addr, "500"))

	assert.Equal(t, "500", tokenBalance(t, db, buyer1Addr))
	assert.Equal(t, "999500", tokenBalance(t, db, adminAddr))
	assertConservation(t, db)
}

func TestTransfer_GateBeforeAndAfterEnable(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, ledger.Transfer(ctx, adminAddr, buyer1Addr, "500"))

	// 普通持有者在开关打开前不能转账
	err := ledger.Transfer(ctx, buyer1Addr, buyer2Addr, "100")
	assert.ErrorIs(t, err, ErrTransfersDisabled)
	assert.Equal(t, "500", tokenBalance(t, db, buyer1Addr))

	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	require.NoError(t, ledger.Transfer(ctx, buyer1Addr, buyer2Addr, "100"))
	assert.Equal(t, "400", tokenBalance(t, db, buyer1Addr))
	assert.Equal(t, "100", tokenBalance(t, db, buyer2Addr))
	assertConservation(t, db)
}

func TestTransfer_ForbiddenDestinations(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, token.BindSale(ctx, ownerAddr, saleAddr, ""))
	require.NoError(t, ledger.Transfer(ctx, adminAddr, buyer1Addr, "500"))
	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	err := ledger.Transfer(ctx, buyer1Addr, "0x0000000000000000000000000000000000000000", "1")
	assert.ErrorIs(t, err, ErrInvalidRecipient)

	for _, forbidden := range []string{ownerAddr, adminAddr, saleAddr} {
		err := ledger.Transfer(ctx, buyer1Addr, forbidden, "1")
		assert.ErrorIs(t, err, ErrForbiddenRecipient, forbidden)
	}

	// 全部被拦截，余额原封不动
	assert.Equal(t, "500", tokenBalance(t, db, buyer1Addr))
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	err := ledger.Transfer(ctx, buyer1Addr, buyer2Addr, "1")
	assert.ErrorIs(t, err, ErrBalanceNotEnough)
}

func TestTransfer_SelfTransferKeepsBalance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	require.NoError(t, ledger.Transfer(ctx, adminAddr, buyer1Addr, "500"))

	token := NewTokenService(db, cfg)
	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	require.NoError(t, ledger.Transfer(ctx, buyer1Addr, buyer1Addr, "200"))
	assert.Equal(t, "500", tokenBalance(t, db, buyer1Addr))
	assertConservation(t, db)
}

func TestApprove_TransferFromDecrementsAllowance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, ledger.Transfer(ctx, adminAddr, buyer1Addr, "500"))
	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	require.NoError(t, ledger.Approve(ctx, buyer1Addr, buyer2Addr, "300"))

	allowance, err := ledger.AllowanceOf(ctx, buyer1Addr, buyer2Addr)
	require.NoError(t, err)
	assert.Equal(t, "300", allowance)

	require.NoError(t, ledger.TransferFrom(ctx, buyer2Addr, buyer1Addr, outsiderAddr, "120"))

	allowance, err = ledger.AllowanceOf(ctx, buyer1Addr, buyer2Addr)
	require.NoError(t, err)
	assert.Equal(t, "180", allowance)
	assert.Equal(t, "380", tokenBalance(t, db, buyer1Addr))
	assert.Equal(t, "120", tokenBalance(t, db, outsiderAddr))

	// 超出剩余额度整体失败
	err = ledger.TransferFrom(ctx, buyer2Addr, buyer1Addr, outsiderAddr, "181")
	assert.ErrorIs(t, err, ErrAllowanceNotEnough)
	assert.Equal(t, "380", tokenBalance(t, db, buyer1Addr))
	assertConservation(t, db)
}

func TestTransferFrom_NoAllowance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, ledger.Transfer(ctx, adminAddr, buyer1Addr, "500"))
	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	err := ledger.TransferFrom(ctx, buyer2Addr, buyer1Addr, outsiderAddr, "1")
	assert.ErrorIs(t, err, ErrAllowanceNotEnough)
}

func TestIncreaseDecreaseApproval(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	require.NoError(t, ledger.IncreaseApproval(ctx, buyer1Addr, buyer2Addr, "100"))
	require.NoError(t, ledger.IncreaseApproval(ctx, buyer1Addr, buyer2Addr, "50"))

	allowance, err := ledger.AllowanceOf(ctx, buyer1Addr, buyer2Addr)
	require.NoError(t, err)
	assert.Equal(t, "150", allowance)

	require.NoError(t, ledger.DecreaseApproval(ctx, buyer1Addr, buyer2Addr, "60"))
	allowance, err = ledger.AllowanceOf(ctx, buyer1Addr, buyer2Addr)
	require.NoError(t, err)
	assert.Equal(t, "90", allowance)

	// 减过头截断为零，不报错
	require.NoError(t, ledger.DecreaseApproval(ctx, buyer1Addr, buyer2Addr, "1000"))
	allowance, err = ledger.AllowanceOf(ctx, buyer1Addr, buyer2Addr)
	require.NoError(t, err)
	assert.Equal(t, "0", allowance)
}

func TestBurn_ReducesBalanceAndSupply(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	require.NoError(t, ledger.Burn(ctx, adminAddr, "100000"))

	assert.Equal(t, "900000", tokenBalance(t, db, adminAddr))

	var state model.TokenState
	require.NoError(t, db.First(&state).Error)
	assert.Equal(t, "900000", state.TotalSupply)
	assertConservation(t, db)
}

func TestBurn_MoreThanBalance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	ctx := context.Background()

	err := ledger.Burn(ctx, adminAddr, "1000001")
	assert.ErrorIs(t, err, ErrBalanceNotEnough)

	var state model.TokenState
	require.NoError(t, db.First(&state).Error)
	assert.Equal(t, "1000000", state.TotalSupply)
}

func TestBalanceOf_UnknownIsZero(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)

	balance, err := ledger.BalanceOf(context.Background(), outsiderAddr)
	require.NoError(t, err)
	assert.Equal(t, "0", balance)
}

func TestBindSale_SetOnceAndGrantsAllowance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, token.BindSale(ctx, ownerAddr, saleAddr, ""))

	// 配置的默认销售配额已授予 admin → sale
	allowance, err := ledger.AllowanceOf(ctx, adminAddr, saleAddr)
	require.NoError(t, err)
	assert.Equal(t, cfg.Token.SaleAllocation, allowance)

	// 只允许绑定一次
	err = token.BindSale(ctx, ownerAddr, buyer1Addr, "")
	assert.Error(t, err)

	// 非所有者无权绑定
	err = token.BindSale(ctx, adminAddr, buyer1Addr, "")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestEnableTransfers_RevokesSaleAllowance(t *testing.T) {
	db, cfg := newTestEnv(t)
	ledger := NewLedgerService(db, cfg)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	require.NoError(t, token.BindSale(ctx, ownerAddr, saleAddr, ""))
	require.NoError(t, token.EnableTransfers(ctx, ownerAddr))

	allowance, err := ledger.AllowanceOf(ctx, adminAddr, saleAddr)
	require.NoError(t, err)
	assert.Equal(t, "0", allowance)

	// 开关单向
	err = token.EnableTransfers(ctx, ownerAddr)
	assert.Error(t, err)
}

func TestTokenTransferOwnership(t *testing.T) {
	db, cfg := newTestEnv(t)
	token := NewTokenService(db, cfg)
	ctx := context.Background()

	err := token.TransferOwnership(ctx, buyer1Addr, buyer2Addr)
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, token.TransferOwnership(ctx, ownerAddr, buyer1Addr))

	state, err := token.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, buyer1Addr, state.OwnerAddress)

	// 旧所有者立即失权
	err = token.EnableTransfers(ctx, ownerAddr)
	assert.ErrorIs(t, err, ErrNotOwner)
}
