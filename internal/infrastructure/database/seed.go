package database

import (
	"errors"
	"fmt"
	"log"

	"tokensale/internal/config"
	"tokensale/internal/model"
	"tokensale/pkg/addr"
	"tokensale/pkg/amount"

	"gorm.io/gorm"
)

// ============================================================================
// 初始状态播种（创世状态）
// ============================================================================
//
// 首次启动时执行一次：
//   1. 创建代币全局状态，总供应量整体铸造到管理员账户，转账开关关闭
//   2. 创建销售全局状态，阶段 SETUP，兑换比例/硬顶/出资上限取自配置
// 此后重启服务不会重复播种，总供应量只能通过销毁减少。
//
// ============================================================================

// Seed 播种代币与销售初始状态（幂等）
func Seed(db *gorm.DB, cfg *config.Config) error {
	if err := seedToken(db, &cfg.Token); err != nil {
		return fmt.Errorf("播种代币状态失败: %w", err)
	}
	if err := seedSale(db, &cfg.Sale); err != nil {
		return fmt.Errorf("播种销售状态失败: %w", err)
	}
	return nil
}

func seedToken(db *gorm.DB, cfg *config.TokenConfig) error {
	var existing model.TokenState
	err := db.First(&existing).Error
	if err == nil {
		return nil // 已播种
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	ownerAddress, err := addr.Normalize(cfg.OwnerAddress)
	if err != nil {
		return fmt.Errorf("所有者地址不合法: %w", err)
	}
	adminAddress, err := addr.Normalize(cfg.AdminAddress)
	if err != nil {
		return fmt.Errorf("管理员地址不合法: %w", err)
	}
	totalSupply, err := amount.Parse(cfg.TotalSupply)
	if err != nil {
		return fmt.Errorf("总供应量不合法: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		state := &model.TokenState{
			Name:         cfg.Name,
			Symbol:       cfg.Symbol,
			Decimals:     cfg.Decimals,
			TotalSupply:  amount.Format(totalSupply),
			OwnerAddress: ownerAddress,
			AdminAddress: adminAddress,
		}
		if err := tx.Create(state).Error; err != nil {
			return err
		}

		// 总供应量一次性铸造给管理员
		adminAccount := &model.TokenAccount{
			Address: adminAddress,
			Balance: amount.Format(totalSupply),
		}
		if err := tx.Create(adminAccount).Error; err != nil {
			return err
		}

		log.Printf("代币状态已播种: symbol=%s, totalSupply=%s, admin=%s",
			cfg.Symbol, amount.Format(totalSupply), adminAddress)
		return nil
	})
}

func seedSale(db *gorm.DB, cfg *config.SaleConfig) error {
	var existing model.Sale
	err := db.First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if cfg.Rate == 0 {
		return errors.New("兑换比例必须大于0")
	}
	beneficiary, err := addr.Normalize(cfg.Beneficiary)
	if err != nil {
		return fmt.Errorf("受益人地址不合法: %w", err)
	}
	if addr.IsZero(beneficiary) {
		return errors.New("受益人不能是零地址")
	}
	ownerAddress, err := addr.Normalize(cfg.OwnerAddress)
	if err != nil {
		return fmt.Errorf("销售所有者地址不合法: %w", err)
	}
	saleAddress, err := addr.Normalize(cfg.SaleAddress)
	if err != nil {
		return fmt.Errorf("销售方地址不合法: %w", err)
	}
	hardCap, err := amount.Parse(cfg.HardCap)
	if err != nil {
		return fmt.Errorf("硬顶不合法: %w", err)
	}
	minContribution, err := amount.Parse(cfg.MinContribution)
	if err != nil {
		return fmt.Errorf("最小出资不合法: %w", err)
	}
	participantCap, err := amount.Parse(cfg.ParticipantCap)
	if err != nil {
		return fmt.Errorf("单人上限不合法: %w", err)
	}

	sale := &model.Sale{
		Stage:           model.SaleStageSetup,
		Rate:            cfg.Rate,
		HardCap:         amount.Format(hardCap),
		MinContribution: amount.Format(minContribution),
		ParticipantCap:  amount.Format(participantCap),
		WeiRaised:       "0",
		Beneficiary:     beneficiary,
		SaleAddress:     saleAddress,
		OwnerAddress:    ownerAddress,
	}
	if err := db.Create(sale).Error; err != nil {
		return err
	}

	log.Printf("销售状态已播种: rate=%d, hardCap=%s, beneficiary=%s",
		cfg.Rate, amount.Format(hardCap), beneficiary)
	return nil
}
