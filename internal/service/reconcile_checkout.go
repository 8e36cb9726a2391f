package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// settleCheckout 在事务内结算下单支付：
// 金额货币精确匹配才放行，不匹配则取消订单并释放优惠券。
func (s *ReconcileService) settleCheckout(tx *gorm.DB, payment *models.UnifiedPayment, received models.Money, eventCurrency string, now time.Time) error {
	if payment.OrderID == nil {
		return ErrOrderNotFound
	}
	orderRepo := s.orderRepo.WithTx(tx)
	order, err := orderRepo.GetByIDForUpdate(*payment.OrderID)
	if err != nil {
		return ErrOrderFetchFailed
	}
	if order == nil {
		return ErrOrderNotFound
	}
	// 订单已结算或已终结：重复事件不再动单
	if order.Status != constants.OrderStatusPendingPayment {
		return nil
	}

	currency := strings.ToUpper(strings.TrimSpace(eventCurrency))
	if currency == "" {
		currency = payment.Currency
	}
	amountOK := received.Decimal.Round(2).Equal(order.TotalAmount.Decimal.Round(2))
	currencyOK := strings.EqualFold(currency, order.Currency)
	if !amountOK || !currencyOK {
		return s.cancelMismatchedOrder(tx, payment, order, received, currency, now)
	}

	items := make([]models.PaymentItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.PaymentItem{
			PaymentID:   payment.ID,
			OrderItemID: item.ID,
			Amount:      item.TotalPrice,
			CostAmount:  item.CostPrice,
			Currency:    order.Currency,
			CreatedAt:   now,
		})
	}
	if err := s.paymentItemRepo.WithTx(tx).CreateBatch(items); err != nil {
		return err
	}

	if order.CouponID != nil {
		redemption, err := s.couponRepo.WithTx(tx).GetReservedByOrderID(order.ID)
		if err != nil {
			return err
		}
		if redemption != nil {
			if err := s.couponRepo.WithTx(tx).Finalize(redemption.ID, now); err != nil {
				return err
			}
		}
	}

	if err := orderRepo.UpdateStatus(order.ID, constants.OrderStatusInProcess, map[string]interface{}{
		"status_reason": constants.OrderReasonPaid,
		"paid_at":       now,
		"updated_at":    now,
	}); err != nil {
		return ErrOrderUpdateFailed
	}
	return nil
}

// cancelMismatchedOrder 金额或货币不匹配：取消订单、释放优惠券、留痕人工复核。
// 支付单保持成功态，款项去向由人工任务跟进。
func (s *ReconcileService) cancelMismatchedOrder(tx *gorm.DB, payment *models.UnifiedPayment, order *models.Order, received models.Money, currency string, now time.Time) error {
	if err := s.orderRepo.WithTx(tx).UpdateStatus(order.ID, constants.OrderStatusCanceled, map[string]interface{}{
		"status_reason": constants.OrderReasonAmountMismatch,
		"canceled_at":   now,
		"updated_at":    now,
	}); err != nil {
		return ErrOrderUpdateFailed
	}

	if order.CouponID != nil {
		redemption, err := s.couponRepo.WithTx(tx).GetReservedByOrderID(order.ID)
		if err != nil {
			return err
		}
		if redemption != nil {
			if err := s.couponRepo.WithTx(tx).Void(redemption.ID, now); err != nil {
				return err
			}
		}
	}

	task := &models.AdminTask{
		Type:      constants.AdminTaskTypePaymentEscalation,
		Status:    constants.AdminTaskStatusOpen,
		Title:     "支付金额与订单不符，订单已取消",
		PaymentID: &payment.ID,
		OrderID:   &order.ID,
		Detail: models.JSON{
			"expected_amount":   order.TotalAmount.String(),
			"received_amount":   received.String(),
			"expected_currency": order.Currency,
			"received_currency": currency,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.adminTaskRepo.WithTx(tx).Create(task)
}

// ensureSubscriptions 支付结算提交后按订单项幂等开通订阅。
// 开通失败不回滚已入账的款项，转人工修复。
func (s *ReconcileService) ensureSubscriptions(payment *models.UnifiedPayment, log *zap.SugaredLogger) {
	if payment.OrderID == nil {
		return
	}
	order, err := s.orderRepo.GetByID(*payment.OrderID)
	if err != nil || order == nil {
		log.Errorw("subscription_provision_order_fetch_failed", "error", err)
		return
	}
	if order.Status != constants.OrderStatusInProcess {
		return
	}

	now := time.Now()
	var failed []uint
	for _, item := range order.Items {
		existing, err := s.subscriptionRepo.GetByOrderItemID(item.ID)
		if err != nil {
			log.Errorw("subscription_lookup_failed", "order_item_id", item.ID, "error", err)
			failed = append(failed, item.ID)
			continue
		}
		if existing != nil {
			continue
		}

		endDate := addBillingTerm(now, item.BillingTerm)
		sub := &models.Subscription{
			UserID:        order.UserID,
			OrderItemID:   item.ID,
			PlanID:        item.PlanID,
			PlanName:      item.PlanName,
			Status:        constants.SubscriptionStatusActive,
			BillingTerm:   item.BillingTerm,
			AutoRenew:     true,
			StartDate:     now,
			EndDate:       endDate,
			NextBillingAt: &endDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.subscriptionRepo.Create(sub); err != nil {
			// 并发下的唯一键冲突说明订阅已由他方开通
			if existing, lookupErr := s.subscriptionRepo.GetByOrderItemID(item.ID); lookupErr == nil && existing != nil {
				continue
			}
			log.Errorw("subscription_create_failed", "order_item_id", item.ID, "error", err)
			failed = append(failed, item.ID)
		}
	}

	if len(failed) == 0 {
		return
	}

	if err := s.orderRepo.UpdateStatus(order.ID, constants.OrderStatusInProcess, map[string]interface{}{
		"status_reason": constants.OrderReasonSubscriptionCreateError,
		"updated_at":    now,
	}); err != nil {
		log.Errorw("order_reason_update_failed", "error", err)
	}

	task := &models.AdminTask{
		Type:      constants.AdminTaskTypeSubscriptionFix,
		Status:    constants.AdminTaskStatusOpen,
		Title:     fmt.Sprintf("订单 %s 订阅开通失败，需人工修复", order.OrderNo),
		PaymentID: &payment.ID,
		OrderID:   &order.ID,
		Detail: models.JSON{
			"failed_order_item_ids": failed,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.adminTaskRepo.Create(task); err != nil {
		log.Errorw("subscription_fix_task_create_failed", "error", err)
	}
}

// addBillingTerm 按计费周期推进时间
func addBillingTerm(t time.Time, term string) time.Time {
	switch term {
	case constants.BillingTermQuarterly:
		return t.AddDate(0, 3, 0)
	case constants.BillingTermYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}
