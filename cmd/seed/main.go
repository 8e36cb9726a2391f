package main

import (
	"fmt"
	"log"
	"time"

	"github.com/subpay-core/internal/config"
	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 添加演示用户（由上游商城同步，本地只保留档案）
	users := []models.User{
		{Email: "alice@example.com", DisplayName: "Alice", Locale: "en-US", Status: constants.UserStatusActive},
		{Email: "bob@example.com", DisplayName: "Bob", Locale: "zh-CN", Status: constants.UserStatusActive},
		{Email: "carol@example.com", DisplayName: "Carol", Locale: "en-US", Status: constants.UserStatusDisabled},
	}

	userIDs := map[string]uint{}
	for _, u := range users {
		var existing models.User
		if err := models.DB.Where("email = ?", u.Email).First(&existing).Error; err != nil {
			if err := models.DB.Create(&u).Error; err != nil {
				stdLog.Printf("Failed to create user %s: %v", u.Email, err)
				continue
			}
			stdLog.Printf("Created user: %s", u.Email)
			userIDs[u.Email] = u.ID
		} else {
			stdLog.Printf("User already exists: %s", u.Email)
			userIDs[u.Email] = existing.ID
		}
	}
	aliceID := userIDs["alice@example.com"]
	bobID := userIDs["bob@example.com"]

	// 为演示用户开立额度账户
	accounts := []models.CreditAccount{
		{UserID: aliceID, Balance: models.NewMoneyFromDecimal(decimal.NewFromFloat(25.00)), Currency: cfg.Site.Currency},
		{UserID: bobID, Balance: models.NewMoneyFromDecimal(decimal.Zero), Currency: cfg.Site.Currency},
	}
	for _, acct := range accounts {
		if acct.UserID == 0 {
			continue
		}
		var existing models.CreditAccount
		if err := models.DB.Where("user_id = ?", acct.UserID).First(&existing).Error; err != nil {
			if err := models.DB.Create(&acct).Error; err != nil {
				stdLog.Printf("Failed to create credit account for user %d: %v", acct.UserID, err)
			} else {
				stdLog.Printf("Created credit account for user %d", acct.UserID)
			}
		} else {
			stdLog.Printf("Credit account already exists for user %d", acct.UserID)
		}
	}

	// 待支付订单：用于演示 checkout 支付单的创建与对账
	type orderPlan struct {
		OrderNo     string
		UserID      uint
		PlanID      uint
		PlanName    string
		BillingTerm string
		UnitPrice   float64
	}
	pendingOrders := []orderPlan{
		{OrderNo: "SEED-ORD-PENDING-001", UserID: aliceID, PlanID: 101, PlanName: "Pro Monthly", BillingTerm: constants.BillingTermMonthly, UnitPrice: 9.90},
		{OrderNo: "SEED-ORD-PENDING-002", UserID: bobID, PlanID: 102, PlanName: "Team Yearly", BillingTerm: constants.BillingTermYearly, UnitPrice: 99.00},
	}
	for _, plan := range pendingOrders {
		if plan.UserID == 0 {
			stdLog.Printf("Skip order %s: user missing", plan.OrderNo)
			continue
		}
		var existing models.Order
		if err := models.DB.Where("order_no = ?", plan.OrderNo).First(&existing).Error; err == nil {
			stdLog.Printf("Order already exists: %s", plan.OrderNo)
			continue
		}
		amount := models.NewMoneyFromDecimal(decimal.NewFromFloat(plan.UnitPrice))
		order := models.Order{
			OrderNo:        plan.OrderNo,
			UserID:         plan.UserID,
			Status:         constants.OrderStatusPendingPayment,
			Currency:       cfg.Site.Currency,
			OriginalAmount: amount,
			TotalAmount:    amount,
			Items: []models.OrderItem{
				{
					PlanID:      plan.PlanID,
					PlanName:    plan.PlanName,
					BillingTerm: plan.BillingTerm,
					UnitPrice:   amount,
					Quantity:    1,
					TotalPrice:  amount,
				},
			},
		}
		if err := models.DB.Create(&order).Error; err != nil {
			stdLog.Printf("Failed to create order %s: %v", plan.OrderNo, err)
		} else {
			stdLog.Printf("Created order: %s", plan.OrderNo)
		}
	}

	// 到期订阅：next_billing_at 已过期，worker 扫描后会发起续费扣款
	seedDueSubscription(stdLog, aliceID, cfg.Site.Currency)

	fmt.Println("\n✅ Seed data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- 3 Users (2 active + 1 disabled)")
	fmt.Println("- 2 Credit accounts")
	fmt.Println("- 2 Pending-payment orders")
	fmt.Println("- 1 Active subscription due for renewal")
}

func seedDueSubscription(stdLog *log.Logger, userID uint, currency string) {
	if userID == 0 {
		stdLog.Printf("Skip due subscription: user missing")
		return
	}

	const orderNo = "SEED-ORD-RENEWAL-001"
	var order models.Order
	if err := models.DB.Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		amount := models.NewMoneyFromDecimal(decimal.NewFromFloat(9.90))
		paidAt := time.Now().AddDate(0, -1, 0)
		order = models.Order{
			OrderNo:        orderNo,
			UserID:         userID,
			Status:         constants.OrderStatusCompleted,
			Currency:       currency,
			OriginalAmount: amount,
			TotalAmount:    amount,
			PaidAt:         &paidAt,
			Items: []models.OrderItem{
				{
					PlanID:      101,
					PlanName:    "Pro Monthly",
					BillingTerm: constants.BillingTermMonthly,
					UnitPrice:   amount,
					Quantity:    1,
					TotalPrice:  amount,
				},
			},
		}
		if err := models.DB.Create(&order).Error; err != nil {
			stdLog.Printf("Failed to create order %s: %v", orderNo, err)
			return
		}
		stdLog.Printf("Created order: %s", orderNo)
	}

	var item models.OrderItem
	if err := models.DB.Where("order_id = ?", order.ID).First(&item).Error; err != nil {
		stdLog.Printf("Skip due subscription: order item missing for %s", orderNo)
		return
	}

	var existing models.Subscription
	if err := models.DB.Where("order_item_id = ?", item.ID).First(&existing).Error; err == nil {
		stdLog.Printf("Subscription already exists for order item %d", item.ID)
		return
	}

	now := time.Now()
	start := now.AddDate(0, -1, 0)
	end := now.Add(-2 * time.Hour)
	nextBilling := end
	sub := models.Subscription{
		UserID:        userID,
		OrderItemID:   item.ID,
		PlanID:        item.PlanID,
		PlanName:      item.PlanName,
		Status:        constants.SubscriptionStatusActive,
		BillingTerm:   item.BillingTerm,
		AutoRenew:     true,
		StartDate:     start,
		EndDate:       end,
		NextBillingAt: &nextBilling,
	}
	if err := models.DB.Create(&sub).Error; err != nil {
		stdLog.Printf("Failed to create subscription: %v", err)
		return
	}
	stdLog.Printf("Created due subscription %d for user %d", sub.ID, userID)
}
