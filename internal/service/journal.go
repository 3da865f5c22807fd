package service

import (
	"context"
	"fmt"

	"tokensale/internal/model"
	"tokensale/internal/repository"
	"tokensale/pkg/amount"
	"tokensale/pkg/idgen"

	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

// appendEntry 追加一条账本流水（事务内），带变动前后余额便于对账
func appendEntry(ctx context.Context, tx *gorm.DB, ledgerRepo *repository.LedgerRepository,
	kind, entryType, address, counterparty string, v *uint256.Int, direction int,
	before, after *uint256.Int, refNo, remark string) error {

	entry := &model.LedgerEntry{
		TransactionNo: idgen.GenerateTransactionNo(),
		Kind:          kind,
		Type:          entryType,
		Address:       address,
		Counterparty:  counterparty,
		Amount:        amount.Format(v),
		Direction:     direction,
		BalanceBefore: amount.Format(before),
		BalanceAfter:  amount.Format(after),
		RefNo:         refNo,
		Remark:        remark,
	}
	if err := ledgerRepo.Create(ctx, tx, entry); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}
	return nil
}
