package worker

import (
	"context"
	"errors"
	"time"

	"github.com/subpay-core/internal/config"
	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	renewalScanInterval  = time.Minute
	renewalScanBatchSize = 50
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.SubscriptionService != nil {
		go s.runRenewalScanLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runRenewalScanLoop 周期扫描：发起到期续费扣款，并补拉未终结支付的状态
func (s *Service) runRenewalScanLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.SubscriptionService == nil {
		return
	}
	runOnce := func() {
		initiated, err := s.consumer.SubscriptionService.InitiateDueRenewals(ctx, renewalScanBatchSize)
		if err != nil {
			logger.Warnw("worker_renewal_scan_failed", "error", err)
		} else if initiated > 0 {
			logger.Infow("worker_renewal_scan_initiated", "count", initiated)
		}
		if s.consumer.ReconcileService == nil {
			return
		}
		for _, providerName := range []string{constants.PaymentProviderCard, constants.PaymentProviderCrypto} {
			if _, err := s.consumer.ReconcileService.SyncOpenPayments(ctx, providerName); err != nil {
				logger.Warnw("worker_payment_sweep_failed", "provider", providerName, "error", err)
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(renewalScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
