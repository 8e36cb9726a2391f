package provider

import (
	"time"

	"github.com/subpay-core/internal/cache"
	"github.com/subpay-core/internal/config"
	"github.com/subpay-core/internal/lock"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/queue"
	"github.com/subpay-core/internal/repository"
	"github.com/subpay-core/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	LockManager *lock.Manager
	Gateways    map[string]service.ProviderClient

	// Repositories
	AdminRepo            repository.AdminRepository
	UserRepo             repository.UserRepository
	OrderRepo            repository.OrderRepository
	PaymentRepo          repository.PaymentRepository
	PaymentEventRepo     repository.PaymentEventRepository
	PaymentItemRepo      repository.PaymentItemRepository
	SubscriptionRepo     repository.SubscriptionRepository
	CreditRepo           repository.CreditRepository
	RefundRepo           repository.RefundRepository
	CouponRedemptionRepo repository.CouponRedemptionRepository
	AdminTaskRepo        repository.AdminTaskRepository

	// Services
	AuthService         *service.AuthService
	PaymentService      *service.PaymentService
	CreditService       *service.CreditService
	FailureService      *service.FailureService
	ReconcileService    *service.ReconcileService
	RefundService       *service.RefundService
	NotificationService *service.NotificationService
	AdminTaskService    *service.AdminTaskService
	SubscriptionService *service.SubscriptionService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		LockManager: lock.NewManager(models.DB),
	}

	gateways, err := service.BuildProviderClients(
		cfg.Providers.CardGate,
		cfg.Providers.CryptoGate,
		cfg.Site.Currency,
	)
	if err != nil {
		logger.Errorw("provider_init_gateways_failed", "error", err)
		panic(err)
	}
	c.Gateways = gateways

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.AdminRepo = repository.NewAdminRepository(db)
	c.UserRepo = repository.NewUserRepository(db)
	c.OrderRepo = repository.NewOrderRepository(db)
	c.PaymentRepo = repository.NewPaymentRepository(db)
	c.PaymentEventRepo = repository.NewPaymentEventRepository(db)
	c.PaymentItemRepo = repository.NewPaymentItemRepository(db)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(db)
	c.CreditRepo = repository.NewCreditRepository(db)
	c.RefundRepo = repository.NewRefundRepository(db)
	c.CouponRedemptionRepo = repository.NewCouponRedemptionRepository(db)
	c.AdminTaskRepo = repository.NewAdminTaskRepository(db)
}

func (c *Container) initServices() {
	cfg := c.Config

	c.AuthService = service.NewAuthService(cfg, c.AdminRepo)
	c.NotificationService = service.NewNotificationService(c.QueueClient)

	maxCredit, err := models.NewMoneyFromString(cfg.Payment.MaxCreditAmount)
	if err != nil {
		logger.Warnw("provider_parse_max_credit_failed", "value", cfg.Payment.MaxCreditAmount, "error", err)
		maxCredit = models.MoneyZero()
	}
	c.CreditService = service.NewCreditService(c.CreditRepo, service.CreditConfig{
		TolerancePercent: cfg.Payment.AmountTolerancePercent,
		MaxAmount:        maxCredit,
	})

	c.FailureService = service.NewFailureService(
		c.PaymentRepo,
		c.AdminTaskRepo,
		c.CouponRedemptionRepo,
		c.QueueClient,
		service.FailureConfig{
			RetryBaseDelay: time.Duration(cfg.Payment.RetryBaseDelaySeconds) * time.Second,
			RetryMaxDelay:  time.Duration(cfg.Payment.RetryMaxDelaySeconds) * time.Second,
			MaxAttempts:    cfg.Payment.MaxRetryAttempts,
		},
	)

	c.PaymentService = service.NewPaymentService(
		c.PaymentRepo,
		c.OrderRepo,
		c.SubscriptionRepo,
		c.CreditRepo,
		c.QueueClient,
		c.Gateways,
		cfg.Site.Currency,
		cfg.Payment.ExpireMinutes,
	)

	c.ReconcileService = service.NewReconcileService(
		c.PaymentRepo,
		c.PaymentEventRepo,
		c.OrderRepo,
		c.SubscriptionRepo,
		c.PaymentItemRepo,
		c.CouponRedemptionRepo,
		c.AdminTaskRepo,
		c.CreditService,
		c.FailureService,
		c.NotificationService,
		c.LockManager,
		c.Gateways,
		cfg.Payment.SyncBatchSize,
	)

	refundMin, err := models.NewMoneyFromString(cfg.Refund.MinAmount)
	if err != nil {
		refundMin = models.MoneyZero()
	}
	refundMax, err := models.NewMoneyFromString(cfg.Refund.MaxAmount)
	if err != nil {
		refundMax = models.MoneyZero()
	}
	c.RefundService = service.NewRefundService(
		c.RefundRepo,
		c.PaymentRepo,
		c.CreditRepo,
		c.CreditService,
		c.NotificationService,
		c.QueueClient,
		c.Gateways,
		service.RefundServiceConfig{
			WindowDays: cfg.Refund.WindowDays,
			MinAmount:  refundMin,
			MaxAmount:  refundMax,
		},
	)

	c.AdminTaskService = service.NewAdminTaskService(c.AdminTaskRepo)
	c.SubscriptionService = service.NewSubscriptionService(c.SubscriptionRepo, c.PaymentService)
}
