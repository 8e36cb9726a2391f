// Package cryptogate 封装加密货币支付网关的 API 调用与回调验签。
package cryptogate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConfigInvalid        = errors.New("cryptogate config invalid")
	ErrRequestFailed        = errors.New("cryptogate request failed")
	ErrResponseInvalid      = errors.New("cryptogate response invalid")
	ErrSignatureInvalid     = errors.New("cryptogate signature invalid")
	ErrCurrencyNotSupported = errors.New("cryptogate currency not supported")
)

// Config 加密货币网关配置
type Config struct {
	APIBase    string `json:"api_base"`    // 网关地址
	APIKey     string `json:"api_key"`     // API Key
	IPNSecret  string `json:"ipn_secret"`  // 回调验签密钥
	PayCurrency string `json:"pay_currency"` // 默认收款币种，如 usdttrc20
	NotifyURL  string `json:"notify_url"`  // 异步通知地址
}

// CreateInput 创建账单输入
type CreateInput struct {
	Reference    string // 业务侧唯一引用
	PriceAmount  string // 计价金额（法币）
	PriceCurrency string
	PayCurrency  string
	Description  string
	NotifyURL    string
}

// CreateResult 创建账单结果
type CreateResult struct {
	InvoiceID   string
	Status      string
	PayAddress  string
	PayAmount   string
	PayCurrency string
	PayURL      string
	Raw         map[string]interface{}
}

// StatusResult 查询账单结果
type StatusResult struct {
	InvoiceID     string
	Status        string
	PriceAmount   string
	PriceCurrency string
	ActuallyPaid  string
	Raw           map[string]interface{}
}

// IPNData 回调数据
type IPNData struct {
	InvoiceID     string `json:"invoice_id"`
	Reference     string `json:"order_id"`
	Status        string `json:"payment_status"`
	PriceAmount   string `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
	ActuallyPaid  string `json:"actually_paid"`
	PayCurrency   string `json:"pay_currency"`
	Raw           map[string]interface{}
}

// ParseConfig 解析配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBase) == "" {
		return fmt.Errorf("%w: api_base is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.IPNSecret) == "" {
		return fmt.Errorf("%w: ipn_secret is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.APIBase = strings.TrimRight(strings.TrimSpace(c.APIBase), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.IPNSecret = strings.TrimSpace(c.IPNSecret)
	c.PayCurrency = strings.ToLower(strings.TrimSpace(c.PayCurrency))
	c.NotifyURL = strings.TrimSpace(c.NotifyURL)
	if c.PayCurrency == "" {
		c.PayCurrency = "usdttrc20"
	}
}

// IsCurrencySupported 判断收款币种是否受支持
func IsCurrencySupported(currency string) bool {
	supported := []string{
		"usdttrc20", "usdterc20", "usdtbsc",
		"usdcerc20", "btc", "eth", "ltc", "trx",
	}
	c := strings.ToLower(strings.TrimSpace(currency))
	for _, s := range supported {
		if s == c {
			return true
		}
	}
	return false
}

// CreatePayment 创建账单
func CreatePayment(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	if input.Reference == "" || input.PriceAmount == "" || input.PriceCurrency == "" {
		return nil, ErrConfigInvalid
	}

	payCurrency := strings.ToLower(strings.TrimSpace(input.PayCurrency))
	if payCurrency == "" {
		payCurrency = cfg.PayCurrency
	}
	if !IsCurrencySupported(payCurrency) {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyNotSupported, payCurrency)
	}

	notifyURL := input.NotifyURL
	if notifyURL == "" {
		notifyURL = cfg.NotifyURL
	}

	params := map[string]interface{}{
		"order_id":       input.Reference,
		"price_amount":   input.PriceAmount,
		"price_currency": strings.ToLower(input.PriceCurrency),
		"pay_currency":   payCurrency,
		"ipn_callback_url": notifyURL,
	}
	if input.Description != "" {
		params["order_description"] = input.Description
	}

	respBytes, err := doRequest(ctx, cfg, http.MethodPost, "/v1/invoice", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		InvoiceID   string `json:"invoice_id"`
		Status      string `json:"payment_status"`
		PayAddress  string `json:"pay_address"`
		PayAmount   string `json:"pay_amount"`
		PayCurrency string `json:"pay_currency"`
		InvoiceURL  string `json:"invoice_url"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.InvoiceID == "" {
		return nil, fmt.Errorf("%w: missing invoice id", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &CreateResult{
		InvoiceID:   resp.InvoiceID,
		Status:      resp.Status,
		PayAddress:  resp.PayAddress,
		PayAmount:   resp.PayAmount,
		PayCurrency: resp.PayCurrency,
		PayURL:      resp.InvoiceURL,
		Raw:         raw,
	}, nil
}

// GetStatus 查询账单状态
func GetStatus(ctx context.Context, cfg *Config, invoiceID string) (*StatusResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, ErrConfigInvalid
	}

	respBytes, err := doRequest(ctx, cfg, http.MethodGet, "/v1/invoice/"+invoiceID, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		InvoiceID     string `json:"invoice_id"`
		Status        string `json:"payment_status"`
		PriceAmount   string `json:"price_amount"`
		PriceCurrency string `json:"price_currency"`
		ActuallyPaid  string `json:"actually_paid"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &StatusResult{
		InvoiceID:     resp.InvoiceID,
		Status:        resp.Status,
		PriceAmount:   resp.PriceAmount,
		PriceCurrency: resp.PriceCurrency,
		ActuallyPaid:  resp.ActuallyPaid,
		Raw:           raw,
	}, nil
}

// GetMinAmount 查询指定币种的最小收款金额
func GetMinAmount(ctx context.Context, cfg *Config, currency string) (string, error) {
	if cfg == nil {
		return "", ErrConfigInvalid
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return "", ErrConfigInvalid
	}

	respBytes, err := doRequest(ctx, cfg, http.MethodGet, "/v1/min-amount?currency="+currency, nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		MinAmount string `json:"min_amount"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return resp.MinAmount, nil
}

// GetEstimate 估算法币金额折算的加密货币数量
func GetEstimate(ctx context.Context, cfg *Config, amount, from, to string) (string, error) {
	if cfg == nil {
		return "", ErrConfigInvalid
	}
	if amount == "" || from == "" || to == "" {
		return "", ErrConfigInvalid
	}

	path := fmt.Sprintf("/v1/estimate?amount=%s&currency_from=%s&currency_to=%s",
		amount, strings.ToLower(from), strings.ToLower(to))
	respBytes, err := doRequest(ctx, cfg, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	var resp struct {
		EstimatedAmount string `json:"estimated_amount"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return resp.EstimatedAmount, nil
}

// VerifyIPN 验证回调签名。
// 签名规则：对回调 JSON 的键按 ASCII 排序后重新序列化，
// 取 hex(hmac_sha256(ipn_secret, sorted_json))，与签名头比较。
func VerifyIPN(cfg *Config, body []byte, signature string) error {
	if cfg == nil {
		return ErrConfigInvalid
	}
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return ErrSignatureInvalid
	}

	expected, err := SignIPN(cfg.IPNSecret, body)
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureInvalid
	}
	return nil
}

// SignIPN 计算回调签名
func SignIPN(secret string, body []byte) (string, error) {
	sorted, err := sortedJSON(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(sorted)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// ParseIPN 解析回调数据
func ParseIPN(body []byte) (*IPNData, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var data IPNData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if data.InvoiceID == "" {
		return nil, fmt.Errorf("%w: missing invoice id", ErrResponseInvalid)
	}
	_ = json.Unmarshal(body, &data.Raw)
	return &data, nil
}

// sortedJSON 重新序列化为键有序的 JSON。encoding/json 对 map 的键按字典序输出。
func sortedJSON(body []byte) ([]byte, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func doRequest(ctx context.Context, cfg *Config, method, path string, params map[string]interface{}) ([]byte, error) {
	var reqBody io.Reader
	if params != nil {
		body, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		reqBody = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.APIBase+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrRequestFailed, resp.StatusCode)
	}
	return respBytes, nil
}
