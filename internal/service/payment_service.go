package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/paystatus"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService 支付单创建与查询
type PaymentService struct {
	paymentRepo      repository.PaymentRepository
	orderRepo        repository.OrderRepository
	subscriptionRepo repository.SubscriptionRepository
	creditRepo       repository.CreditRepository
	queueClient      *queue.Client
	gateways         map[string]ProviderClient
	siteCurrency     string
	expireMinutes    int
}

// NewPaymentService 创建支付服务
func NewPaymentService(
	paymentRepo repository.PaymentRepository,
	orderRepo repository.OrderRepository,
	subscriptionRepo repository.SubscriptionRepository,
	creditRepo repository.CreditRepository,
	queueClient *queue.Client,
	gateways map[string]ProviderClient,
	siteCurrency string,
	expireMinutes int,
) *PaymentService {
	if expireMinutes <= 0 {
		expireMinutes = 30
	}
	if strings.TrimSpace(siteCurrency) == "" {
		siteCurrency = constants.SiteCurrencyDefault
	}
	return &PaymentService{
		paymentRepo:      paymentRepo,
		orderRepo:        orderRepo,
		subscriptionRepo: subscriptionRepo,
		creditRepo:       creditRepo,
		queueClient:      queueClient,
		gateways:         gateways,
		siteCurrency:     siteCurrency,
		expireMinutes:    expireMinutes,
	}
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// CreateCheckoutPaymentInput 下单支付输入
type CreateCheckoutPaymentInput struct {
	Context  context.Context
	OrderID  uint
	UserID   uint
	Provider string
}

// CreateTopUpPaymentInput 额度充值支付输入
type CreateTopUpPaymentInput struct {
	Context  context.Context
	UserID   uint
	Amount   models.Money
	Currency string
	Provider string
}

// CreateRenewalPaymentInput 续费扣款输入
type CreateRenewalPaymentInput struct {
	Context        context.Context
	SubscriptionID uint
}

func (s *PaymentService) gateway(provider string) (ProviderClient, error) {
	client, ok := s.gateways[provider]
	if !ok || client == nil {
		return nil, ErrPaymentInvalid
	}
	return client, nil
}

// CreateCheckoutPayment 为待支付订单创建支付单
func (s *PaymentService) CreateCheckoutPayment(input CreateCheckoutPaymentInput) (*models.UnifiedPayment, error) {
	if input.OrderID == 0 {
		return nil, ErrPaymentInvalid
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	log := paymentLogger(
		"order_id", input.OrderID,
		"user_id", input.UserID,
		"provider", input.Provider,
	)

	client, err := s.gateway(input.Provider)
	if err != nil {
		log.Warnw("payment_create_provider_unknown")
		return nil, err
	}

	order, err := s.orderRepo.GetByID(input.OrderID)
	if err != nil {
		log.Errorw("payment_create_order_fetch_failed", "error", err)
		return nil, ErrOrderFetchFailed
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if input.UserID != 0 && order.UserID != input.UserID {
		return nil, ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPendingPayment {
		return nil, ErrOrderStatusInvalid
	}
	if order.TotalAmount.Decimal.LessThanOrEqual(decimal.Zero) {
		return nil, ErrPaymentInvalid
	}

	result, err := client.CreatePayment(ctx, ProviderCreateInput{
		Reference:   buildPaymentReference("co", order.OrderNo),
		Amount:      order.TotalAmount.String(),
		Currency:    order.Currency,
		Description: fmt.Sprintf("订单 %s", order.OrderNo),
	})
	if err != nil {
		log.Errorw("payment_create_provider_failed", "error", err)
		return nil, ErrPaymentProviderFailed
	}

	now := time.Now()
	expiredAt := now.Add(time.Duration(s.expireMinutes) * time.Minute)
	payment := &models.UnifiedPayment{
		Provider:          input.Provider,
		ProviderPaymentID: result.ProviderPaymentID,
		Purpose:           constants.PaymentPurposeCheckout,
		Status:            paystatus.Normalize(input.Provider, result.Status),
		ProviderStatus:    result.Status,
		UserID:            order.UserID,
		OrderID:           &order.ID,
		Amount:            order.TotalAmount,
		Currency:          strings.ToUpper(strings.TrimSpace(order.Currency)),
		PayURL:            result.PayURL,
		ExpiredAt:         &expiredAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		log.Errorw("payment_create_persist_failed", "error", err)
		return nil, ErrPaymentCreateFailed
	}

	s.schedulePostExpirySync(payment, log)
	log.Infow("payment_created",
		"payment_id", payment.ID,
		"provider_payment_id", payment.ProviderPaymentID,
		"amount", payment.Amount.String(),
	)
	return payment, nil
}

// CreateTopUpPayment 创建额度充值支付单，并预建待结算的入账流水。
// 流水金额在对账入账时按实收金额回填。
func (s *PaymentService) CreateTopUpPayment(input CreateTopUpPaymentInput) (*models.UnifiedPayment, error) {
	if input.UserID == 0 {
		return nil, ErrPaymentInvalid
	}
	amount := input.Amount.Decimal.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrCreditInvalidAmount
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.siteCurrency
	}

	log := paymentLogger(
		"user_id", input.UserID,
		"provider", input.Provider,
		"amount", amount.String(),
		"currency", currency,
	)

	client, err := s.gateway(input.Provider)
	if err != nil {
		log.Warnw("payment_create_provider_unknown")
		return nil, err
	}

	reference := buildPaymentReference("tu", fmt.Sprintf("%d", input.UserID))
	result, err := client.CreatePayment(ctx, ProviderCreateInput{
		Reference:   reference,
		Amount:      amount.String(),
		Currency:    currency,
		Description: "额度充值",
	})
	if err != nil {
		log.Errorw("payment_create_provider_failed", "error", err)
		return nil, ErrPaymentProviderFailed
	}

	now := time.Now()
	expiredAt := now.Add(time.Duration(s.expireMinutes) * time.Minute)
	payment := &models.UnifiedPayment{
		Provider:          input.Provider,
		ProviderPaymentID: result.ProviderPaymentID,
		Purpose:           constants.PaymentPurposeTopUp,
		Status:            paystatus.Normalize(input.Provider, result.Status),
		ProviderStatus:    result.Status,
		UserID:            input.UserID,
		Amount:            models.NewMoneyFromDecimal(amount),
		Currency:          currency,
		PayURL:            result.PayURL,
		ExpiredAt:         &expiredAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.creditRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.paymentRepo.WithTx(tx).Create(payment); err != nil {
			return ErrPaymentCreateFailed
		}
		txn := &models.CreditTransaction{
			UserID:    input.UserID,
			PaymentID: &payment.ID,
			Type:      constants.CreditTxnTypeTopUp,
			Direction: constants.CreditTxnDirectionIn,
			Status:    constants.CreditTxnStatusPending,
			Amount:    models.MoneyZero(),
			Currency:  currency,
			Reference: reference,
			Remark:    "额度充值（待到账）",
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.creditRepo.WithTx(tx).CreateTransaction(txn); err != nil {
			return ErrCreditTransactionCreateFailed
		}
		return nil
	}); err != nil {
		log.Errorw("payment_create_persist_failed", "error", err)
		return nil, err
	}

	s.schedulePostExpirySync(payment, log)
	log.Infow("payment_created",
		"payment_id", payment.ID,
		"provider_payment_id", payment.ProviderPaymentID,
	)
	return payment, nil
}

// CreateRenewalPayment 为到期订阅发起续费扣款
func (s *PaymentService) CreateRenewalPayment(input CreateRenewalPaymentInput) (*models.UnifiedPayment, error) {
	if input.SubscriptionID == 0 {
		return nil, ErrPaymentInvalid
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	log := paymentLogger("subscription_id", input.SubscriptionID)

	sub, err := s.subscriptionRepo.GetByID(input.SubscriptionID)
	if err != nil {
		log.Errorw("renewal_subscription_fetch_failed", "error", err)
		return nil, err
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	if sub.Status != constants.SubscriptionStatusActive || !sub.AutoRenew {
		return nil, ErrSubscriptionUpdateFailed
	}

	item, err := s.orderRepo.GetItemByID(sub.OrderItemID)
	if err != nil {
		log.Errorw("renewal_order_item_fetch_failed", "error", err)
		return nil, ErrOrderFetchFailed
	}
	if item == nil {
		return nil, ErrOrderNotFound
	}

	// 续费统一走卡支付：加密货币无法发起主动扣款
	client, err := s.gateway(constants.PaymentProviderCard)
	if err != nil {
		return nil, err
	}

	amount := item.UnitPrice.Decimal.Round(2)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrPaymentInvalid
	}

	cycleEnd := repository.TruncateCycleDate(sub.EndDate)
	reference := fmt.Sprintf("rn-%d-%s", sub.ID, cycleEnd.Format("20060102"))
	result, err := client.CreatePayment(ctx, ProviderCreateInput{
		Reference:   reference,
		Amount:      amount.String(),
		Currency:    s.siteCurrency,
		Description: fmt.Sprintf("订阅 %s 续费", sub.PlanName),
	})
	if err != nil {
		log.Errorw("payment_create_provider_failed", "error", err)
		return nil, ErrPaymentProviderFailed
	}

	now := time.Now()
	payment := &models.UnifiedPayment{
		Provider:          constants.PaymentProviderCard,
		ProviderPaymentID: result.ProviderPaymentID,
		Purpose:           constants.PaymentPurposeRenewal,
		Status:            paystatus.Normalize(constants.PaymentProviderCard, result.Status),
		ProviderStatus:    result.Status,
		UserID:            sub.UserID,
		SubscriptionID:    &sub.ID,
		Amount:            models.NewMoneyFromDecimal(amount),
		Currency:          s.siteCurrency,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.paymentRepo.Create(payment); err != nil {
		log.Errorw("payment_create_persist_failed", "error", err)
		return nil, ErrPaymentCreateFailed
	}

	log.Infow("renewal_payment_created",
		"payment_id", payment.ID,
		"provider_payment_id", payment.ProviderPaymentID,
		"amount", payment.Amount.String(),
	)
	return payment, nil
}

// GetByID 查询支付单
func (s *PaymentService) GetByID(id uint) (*models.UnifiedPayment, error) {
	if id == 0 {
		return nil, ErrPaymentNotFound
	}
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetByIDForUser 查询当前用户的支付单
func (s *PaymentService) GetByIDForUser(id, userID uint) (*models.UnifiedPayment, error) {
	payment, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// ListAdmin 管理端查询支付单
func (s *PaymentService) ListAdmin(filter repository.PaymentListFilter) ([]models.UnifiedPayment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}

// schedulePostExpirySync 支付单到期后兜底拉取一次网关状态
func (s *PaymentService) schedulePostExpirySync(payment *models.UnifiedPayment, log *zap.SugaredLogger) {
	if payment.ExpiredAt == nil {
		return
	}
	delay := time.Until(payment.ExpiredAt.Add(time.Minute))
	if delay < 0 {
		delay = 0
	}
	if err := s.queueClient.EnqueuePaymentSync(queue.PaymentSyncStatusPayload{
		PaymentID: payment.ID,
	}, asynq.ProcessIn(delay)); err != nil {
		log.Warnw("payment_sync_enqueue_failed", "error", err)
	}
}

func buildPaymentReference(prefix, seed string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s-%s-%s", prefix, strings.TrimSpace(seed), suffix)
}
