package service

import (
	"context"
	"fmt"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/payment/cardgate"
	"github.com/subpay-core/internal/payment/cryptogate"
)

// ProviderCreateInput 网关创建支付输入
type ProviderCreateInput struct {
	Reference   string
	Amount      string
	Currency    string
	Description string
}

// ProviderCreateResult 网关创建支付结果
type ProviderCreateResult struct {
	ProviderPaymentID string
	Status            string
	PayURL            string
	Raw               map[string]interface{}
}

// ProviderStatus 网关侧支付状态
type ProviderStatus struct {
	ProviderPaymentID string
	Status            string
	Amount            string
	ReceivedAmount    string
	Currency          string
	DeclineCode       string
}

// ProviderClient 支付网关操作的统一抽象
type ProviderClient interface {
	CreatePayment(ctx context.Context, input ProviderCreateInput) (*ProviderCreateResult, error)
	GetStatus(ctx context.Context, providerPaymentID string) (*ProviderStatus, error)
	Cancel(ctx context.Context, providerPaymentID string) error
	Refund(ctx context.Context, providerPaymentID, amount, reference string) (string, error)
}

// CardGateClient 卡支付网关客户端
type CardGateClient struct {
	cfg *cardgate.Config
}

// NewCardGateClient 创建卡支付网关客户端
func NewCardGateClient(raw map[string]interface{}) (*CardGateClient, error) {
	cfg, err := cardgate.ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cardgate.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &CardGateClient{cfg: cfg}, nil
}

func (c *CardGateClient) CreatePayment(ctx context.Context, input ProviderCreateInput) (*ProviderCreateResult, error) {
	result, err := cardgate.CreatePayment(ctx, c.cfg, cardgate.CreateInput{
		Reference:   input.Reference,
		Amount:      input.Amount,
		Currency:    input.Currency,
		Description: input.Description,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderCreateResult{
		ProviderPaymentID: result.IntentID,
		Status:            result.Status,
		PayURL:            result.PayURL,
		Raw:               result.Raw,
	}, nil
}

func (c *CardGateClient) GetStatus(ctx context.Context, providerPaymentID string) (*ProviderStatus, error) {
	result, err := cardgate.GetStatus(ctx, c.cfg, providerPaymentID)
	if err != nil {
		return nil, err
	}
	return &ProviderStatus{
		ProviderPaymentID: result.IntentID,
		Status:            result.Status,
		Amount:            result.Amount,
		ReceivedAmount:    result.AmountReceived,
		Currency:          result.Currency,
		DeclineCode:       result.DeclineCode,
	}, nil
}

func (c *CardGateClient) Cancel(ctx context.Context, providerPaymentID string) error {
	return cardgate.Cancel(ctx, c.cfg, providerPaymentID)
}

func (c *CardGateClient) Refund(ctx context.Context, providerPaymentID, amount, reference string) (string, error) {
	result, err := cardgate.Refund(ctx, c.cfg, providerPaymentID, amount, reference)
	if err != nil {
		return "", err
	}
	return result.RefundID, nil
}

// CryptoGateClient 加密货币网关客户端
type CryptoGateClient struct {
	cfg          *cryptogate.Config
	siteCurrency string
}

// NewCryptoGateClient 创建加密货币网关客户端
func NewCryptoGateClient(raw map[string]interface{}, siteCurrency string) (*CryptoGateClient, error) {
	cfg, err := cryptogate.ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cryptogate.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &CryptoGateClient{cfg: cfg, siteCurrency: siteCurrency}, nil
}

func (c *CryptoGateClient) CreatePayment(ctx context.Context, input ProviderCreateInput) (*ProviderCreateResult, error) {
	result, err := cryptogate.CreatePayment(ctx, c.cfg, cryptogate.CreateInput{
		Reference:     input.Reference,
		PriceAmount:   input.Amount,
		PriceCurrency: input.Currency,
		Description:   input.Description,
	})
	if err != nil {
		return nil, err
	}
	return &ProviderCreateResult{
		ProviderPaymentID: result.InvoiceID,
		Status:            result.Status,
		PayURL:            result.PayURL,
		Raw:               result.Raw,
	}, nil
}

func (c *CryptoGateClient) GetStatus(ctx context.Context, providerPaymentID string) (*ProviderStatus, error) {
	result, err := cryptogate.GetStatus(ctx, c.cfg, providerPaymentID)
	if err != nil {
		return nil, err
	}
	return &ProviderStatus{
		ProviderPaymentID: result.InvoiceID,
		Status:            result.Status,
		Amount:            result.PriceAmount,
		ReceivedAmount:    result.ActuallyPaid,
		Currency:          result.PriceCurrency,
	}, nil
}

// Cancel 链上账单无法在网关侧取消，仅本地作废
func (c *CryptoGateClient) Cancel(ctx context.Context, providerPaymentID string) error {
	return nil
}

// Refund 加密货币网关不支持原路退回，需人工处理
func (c *CryptoGateClient) Refund(ctx context.Context, providerPaymentID, amount, reference string) (string, error) {
	return "", fmt.Errorf("%w: crypto refund requires manual transfer", ErrPaymentProviderFailed)
}

// BuildProviderClients 根据配置构建各网关客户端
func BuildProviderClients(cardCfg, cryptoCfg map[string]interface{}, siteCurrency string) (map[string]ProviderClient, error) {
	clients := make(map[string]ProviderClient, 2)
	if len(cardCfg) > 0 {
		client, err := NewCardGateClient(cardCfg)
		if err != nil {
			return nil, err
		}
		clients[constants.PaymentProviderCard] = client
	}
	if len(cryptoCfg) > 0 {
		client, err := NewCryptoGateClient(cryptoCfg, siteCurrency)
		if err != nil {
			return nil, err
		}
		clients[constants.PaymentProviderCrypto] = client
	}
	return clients, nil
}
