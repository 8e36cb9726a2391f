package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreditConfig 额度入账配置
type CreditConfig struct {
	// TolerancePercent 实收金额不得低于应收金额的该百分比
	TolerancePercent int
	// MaxAmount 单笔入账上限
	MaxAmount models.Money
}

func (c CreditConfig) normalized() CreditConfig {
	if c.TolerancePercent <= 0 || c.TolerancePercent > 100 {
		c.TolerancePercent = 95
	}
	if c.MaxAmount.Decimal.LessThanOrEqual(decimal.Zero) {
		c.MaxAmount = models.NewMoneyFromDecimal(decimal.NewFromInt(10000))
	}
	return c
}

// CreditService 额度账户与入账
type CreditService struct {
	creditRepo repository.CreditRepository
	cfg        CreditConfig
}

// NewCreditService 创建额度服务
func NewCreditService(creditRepo repository.CreditRepository, cfg CreditConfig) *CreditService {
	return &CreditService{creditRepo: creditRepo, cfg: cfg.normalized()}
}

// GetAccount 获取额度账户（不存在时自动创建）
func (s *CreditService) GetAccount(userID uint) (*models.CreditAccount, error) {
	if userID == 0 {
		return nil, ErrCreditAccountNotFound
	}
	account, err := s.creditRepo.GetAccountByUserID(userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	now := time.Now()
	account = &models.CreditAccount{
		UserID:    userID,
		Balance:   models.MoneyZero(),
		Currency:  constants.SiteCurrencyDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.creditRepo.CreateAccount(account); err != nil {
		created, queryErr := s.creditRepo.GetAccountByUserID(userID)
		if queryErr == nil && created != nil {
			return created, nil
		}
		return nil, ErrCreditAccountCreateFailed
	}
	return account, nil
}

// ListTransactions 查询额度流水
func (s *CreditService) ListTransactions(filter repository.CreditTransactionListFilter) ([]models.CreditTransaction, int64, error) {
	return s.creditRepo.ListTransactions(filter)
}

// AllocateInput 入账输入
type AllocateInput struct {
	Payment        *models.UnifiedPayment
	ReceivedAmount models.Money
	Currency       string
}

// AllocateInTx 在事务内将充值支付的实收金额结算到额度账户。
// 以支付单预建的待结算流水为幂等锚点：流水已结算则直接返回，
// 实收金额不低于应收金额的容差下限才允许入账。
func (s *CreditService) AllocateInTx(tx *gorm.DB, input AllocateInput) (*models.CreditTransaction, error) {
	if tx == nil {
		return nil, ErrCreditTransactionCreateFailed
	}
	payment := input.Payment
	if payment == nil || payment.ID == 0 || payment.UserID == 0 {
		return nil, ErrCreditInvalidAmount
	}

	repo := s.creditRepo.WithTx(tx)
	txn, err := repo.GetTransactionByPaymentIDForUpdate(payment.ID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrCreditTransactionNotFound
	}
	// 重放保护：已结算的流水不再动账
	if txn.PaymentCompleted || txn.Status == constants.CreditTxnStatusCompleted {
		return txn, nil
	}

	received := input.ReceivedAmount.Decimal.Round(2)
	expected := payment.Amount.Decimal.Round(2)
	if received.LessThanOrEqual(decimal.Zero) || expected.LessThanOrEqual(decimal.Zero) {
		return nil, ErrCreditInvalidAmount
	}
	if received.GreaterThan(s.cfg.MaxAmount.Decimal) {
		return nil, ErrCreditAmountExceedsLimit
	}

	floor := expected.Mul(decimal.NewFromInt(int64(s.cfg.TolerancePercent))).
		Div(decimal.NewFromInt(100)).Round(2)
	if received.LessThan(floor) {
		return nil, ErrCreditAmountTooLow
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = payment.Currency
	}
	if !strings.EqualFold(currency, txn.Currency) {
		return nil, ErrCreditCurrencyMismatch
	}

	now := time.Now()
	account, err := s.ensureAccountForUpdate(repo, payment.UserID, currency, now)
	if err != nil {
		return nil, err
	}

	before := account.Balance.Decimal.Round(2)
	after := before.Add(received).Round(2)
	account.Balance = models.NewMoneyFromDecimal(after)
	account.UpdatedAt = now
	if err := repo.UpdateAccount(account); err != nil {
		return nil, ErrCreditAccountUpdateFailed
	}

	completedAt := now
	txn.AccountID = account.ID
	txn.Amount = models.NewMoneyFromDecimal(received)
	txn.BalanceBefore = models.NewMoneyFromDecimal(before)
	txn.BalanceAfter = models.NewMoneyFromDecimal(after)
	txn.Status = constants.CreditTxnStatusCompleted
	txn.PaymentCompleted = true
	txn.CompletedAt = &completedAt
	txn.UpdatedAt = now
	if err := repo.UpdateTransaction(txn); err != nil {
		return nil, ErrCreditTransactionCreateFailed
	}
	return txn, nil
}

// DebitInTx 在事务内扣减额度并写入唯一参考号流水（退款冲正等场景）
func (s *CreditService) DebitInTx(tx *gorm.DB, userID uint, amount models.Money, txnType, reference, remark string, refundID *uint) (*models.CreditTransaction, error) {
	if tx == nil {
		return nil, ErrCreditTransactionCreateFailed
	}
	if userID == 0 {
		return nil, ErrCreditAccountNotFound
	}
	value := amount.Decimal.Round(2)
	if value.LessThanOrEqual(decimal.Zero) {
		return nil, ErrCreditInvalidAmount
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrCreditTransactionCreateFailed
	}

	repo := s.creditRepo.WithTx(tx)
	exists, err := repo.GetTransactionByReference(reference)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return exists, nil
	}

	now := time.Now()
	account, err := s.ensureAccountForUpdate(repo, userID, "", now)
	if err != nil {
		return nil, err
	}
	before := account.Balance.Decimal.Round(2)
	after := before.Sub(value).Round(2)
	if after.LessThan(decimal.Zero) {
		return nil, ErrCreditInsufficientBalance
	}
	account.Balance = models.NewMoneyFromDecimal(after)
	account.UpdatedAt = now
	if err := repo.UpdateAccount(account); err != nil {
		return nil, ErrCreditAccountUpdateFailed
	}

	completedAt := now
	txn := &models.CreditTransaction{
		UserID:           userID,
		AccountID:        account.ID,
		RefundID:         refundID,
		Type:             txnType,
		Direction:        constants.CreditTxnDirectionOut,
		Status:           constants.CreditTxnStatusCompleted,
		Amount:           models.NewMoneyFromDecimal(value),
		BalanceBefore:    models.NewMoneyFromDecimal(before),
		BalanceAfter:     models.NewMoneyFromDecimal(after),
		Currency:         account.Currency,
		Reference:        reference,
		Remark:           strings.TrimSpace(remark),
		PaymentCompleted: true,
		CompletedAt:      &completedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, ErrCreditTransactionCreateFailed
	}
	return txn, nil
}

// CreditInTx 在事务内增加额度并写入唯一参考号流水（退款失败回滚等场景）
func (s *CreditService) CreditInTx(tx *gorm.DB, userID uint, amount models.Money, txnType, reference, remark string, refundID *uint) (*models.CreditTransaction, error) {
	if tx == nil {
		return nil, ErrCreditTransactionCreateFailed
	}
	if userID == 0 {
		return nil, ErrCreditAccountNotFound
	}
	value := amount.Decimal.Round(2)
	if value.LessThanOrEqual(decimal.Zero) {
		return nil, ErrCreditInvalidAmount
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrCreditTransactionCreateFailed
	}

	repo := s.creditRepo.WithTx(tx)
	exists, err := repo.GetTransactionByReference(reference)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return exists, nil
	}

	now := time.Now()
	account, err := s.ensureAccountForUpdate(repo, userID, "", now)
	if err != nil {
		return nil, err
	}
	before := account.Balance.Decimal.Round(2)
	after := before.Add(value).Round(2)
	account.Balance = models.NewMoneyFromDecimal(after)
	account.UpdatedAt = now
	if err := repo.UpdateAccount(account); err != nil {
		return nil, ErrCreditAccountUpdateFailed
	}

	completedAt := now
	txn := &models.CreditTransaction{
		UserID:           userID,
		AccountID:        account.ID,
		RefundID:         refundID,
		Type:             txnType,
		Direction:        constants.CreditTxnDirectionIn,
		Status:           constants.CreditTxnStatusCompleted,
		Amount:           models.NewMoneyFromDecimal(value),
		BalanceBefore:    models.NewMoneyFromDecimal(before),
		BalanceAfter:     models.NewMoneyFromDecimal(after),
		Currency:         account.Currency,
		Reference:        reference,
		Remark:           strings.TrimSpace(remark),
		PaymentCompleted: true,
		CompletedAt:      &completedAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, ErrCreditTransactionCreateFailed
	}
	return txn, nil
}

func (s *CreditService) ensureAccountForUpdate(repo *repository.GormCreditRepository, userID uint, currency string, now time.Time) (*models.CreditAccount, error) {
	account, err := repo.GetAccountByUserIDForUpdate(userID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		return account, nil
	}
	if strings.TrimSpace(currency) == "" {
		currency = constants.SiteCurrencyDefault
	}
	account = &models.CreditAccount{
		UserID:    userID,
		Balance:   models.MoneyZero(),
		Currency:  strings.ToUpper(strings.TrimSpace(currency)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateAccount(account); err != nil {
		created, queryErr := repo.GetAccountByUserIDForUpdate(userID)
		if queryErr == nil && created != nil {
			return created, nil
		}
		return nil, ErrCreditAccountCreateFailed
	}
	return account, nil
}

func buildRefundReference(refundID uint, action string) string {
	return fmt.Sprintf("refund:%d:%s", refundID, action)
}
