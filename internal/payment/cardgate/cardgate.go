// Package cardgate 封装卡支付处理器的 API 调用与回调验签。
package cardgate

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
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("cardgate config invalid")
	ErrRequestFailed    = errors.New("cardgate request failed")
	ErrResponseInvalid  = errors.New("cardgate response invalid")
	ErrSignatureInvalid = errors.New("cardgate signature invalid")
)

// 回调签名的时间戳容差，超过视为重放
const signatureTolerance = 5 * time.Minute

// Config 卡支付网关配置
type Config struct {
	APIBase       string `json:"api_base"`       // API 地址
	SecretKey     string `json:"secret_key"`     // API 密钥
	WebhookSecret string `json:"webhook_secret"` // 回调验签密钥
	ReturnURL     string `json:"return_url"`     // 支付完成跳转地址
}

// CreateInput 创建支付意图输入
type CreateInput struct {
	Reference   string // 业务侧唯一引用（幂等键）
	Amount      string // 金额，十进制字符串
	Currency    string
	Description string
	ReturnURL   string
	Metadata    map[string]string
}

// CreateResult 创建支付意图结果
type CreateResult struct {
	IntentID     string                 // 网关支付意图 ID
	Status       string                 // 网关原始状态
	ClientSecret string                 // 前端确认用凭据
	PayURL       string                 // 收银台地址
	Raw          map[string]interface{} // 原始响应
}

// StatusResult 查询支付意图结果
type StatusResult struct {
	IntentID       string
	Status         string
	Amount         string
	AmountReceived string
	Currency       string
	DeclineCode    string
	Raw            map[string]interface{}
}

// RefundResult 退款结果
type RefundResult struct {
	RefundID string
	Status   string
	Raw      map[string]interface{}
}

// EventData 回调事件数据
type EventData struct {
	EventID  string `json:"id"`
	Type     string `json:"type"`
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Received string `json:"amount_received"`
	Currency string `json:"currency"`
	Decline  string `json:"decline_code"`
	Raw      map[string]interface{}
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
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.APIBase = strings.TrimRight(strings.TrimSpace(c.APIBase), "/")
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.WebhookSecret = strings.TrimSpace(c.WebhookSecret)
	c.ReturnURL = strings.TrimSpace(c.ReturnURL)
}

// CreatePayment 创建支付意图
func CreatePayment(ctx context.Context, cfg *Config, input CreateInput) (*CreateResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	if input.Reference == "" || input.Amount == "" || input.Currency == "" {
		return nil, ErrConfigInvalid
	}

	returnURL := input.ReturnURL
	if returnURL == "" {
		returnURL = cfg.ReturnURL
	}

	params := map[string]interface{}{
		"reference":  input.Reference,
		"amount":     input.Amount,
		"currency":   strings.ToUpper(input.Currency),
		"return_url": returnURL,
	}
	if input.Description != "" {
		params["description"] = input.Description
	}
	if len(input.Metadata) > 0 {
		params["metadata"] = input.Metadata
	}

	respBytes, err := doRequest(ctx, cfg, http.MethodPost, "/v1/payment_intents", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		ClientSecret string `json:"client_secret"`
		PayURL       string `json:"pay_url"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: missing intent id", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &CreateResult{
		IntentID:     resp.ID,
		Status:       resp.Status,
		ClientSecret: resp.ClientSecret,
		PayURL:       resp.PayURL,
		Raw:          raw,
	}, nil
}

// GetStatus 查询支付意图
func GetStatus(ctx context.Context, cfg *Config, intentID string) (*StatusResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, ErrConfigInvalid
	}

	respBytes, err := doRequest(ctx, cfg, http.MethodGet, "/v1/payment_intents/"+intentID, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		Amount         string `json:"amount"`
		AmountReceived string `json:"amount_received"`
		Currency       string `json:"currency"`
		DeclineCode    string `json:"decline_code"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &StatusResult{
		IntentID:       resp.ID,
		Status:         resp.Status,
		Amount:         resp.Amount,
		AmountReceived: resp.AmountReceived,
		Currency:       resp.Currency,
		DeclineCode:    resp.DeclineCode,
		Raw:            raw,
	}, nil
}

// Cancel 取消支付意图
func Cancel(ctx context.Context, cfg *Config, intentID string) error {
	if cfg == nil {
		return ErrConfigInvalid
	}
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return ErrConfigInvalid
	}
	_, err := doRequest(ctx, cfg, http.MethodPost, "/v1/payment_intents/"+intentID+"/cancel", nil)
	return err
}

// Refund 对已成功的支付意图发起退款
func Refund(ctx context.Context, cfg *Config, intentID, amount, reference string) (*RefundResult, error) {
	if cfg == nil {
		return nil, ErrConfigInvalid
	}
	if strings.TrimSpace(intentID) == "" || strings.TrimSpace(amount) == "" {
		return nil, ErrConfigInvalid
	}

	params := map[string]interface{}{
		"intent_id": intentID,
		"amount":    amount,
	}
	if reference != "" {
		params["reference"] = reference
	}

	respBytes, err := doRequest(ctx, cfg, http.MethodPost, "/v1/refunds", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: missing refund id", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	return &RefundResult{RefundID: resp.ID, Status: resp.Status, Raw: raw}, nil
}

// VerifyWebhook 验证回调签名。
// 签名头格式：t=<unix>,v1=<hex(hmac_sha256(secret, "<unix>.<body>"))>
func VerifyWebhook(cfg *Config, body []byte, signatureHeader string, now time.Time) error {
	if cfg == nil {
		return ErrConfigInvalid
	}
	ts, sig, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return err
	}

	eventTime := time.Unix(ts, 0)
	if now.Sub(eventTime) > signatureTolerance || eventTime.Sub(now) > signatureTolerance {
		return fmt.Errorf("%w: timestamp out of tolerance", ErrSignatureInvalid)
	}

	expected := Sign(cfg.WebhookSecret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign 计算回调签名
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, string, error) {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: bad timestamp", ErrSignatureInvalid)
			}
			ts = parsed
		case "v1":
			sig = kv[1]
		}
	}
	if ts == 0 || sig == "" {
		return 0, "", fmt.Errorf("%w: missing timestamp or signature", ErrSignatureInvalid)
	}
	return ts, sig, nil
}

// ParseEvent 解析回调事件
func ParseEvent(body []byte) (*EventData, error) {
	if len(body) == 0 {
		return nil, ErrResponseInvalid
	}
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			ID             string `json:"id"`
			Status         string `json:"status"`
			Amount         string `json:"amount"`
			AmountReceived string `json:"amount_received"`
			Currency       string `json:"currency"`
			DeclineCode    string `json:"decline_code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if envelope.Data.ID == "" {
		return nil, fmt.Errorf("%w: missing intent id", ErrResponseInvalid)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)

	return &EventData{
		EventID:  envelope.ID,
		Type:     envelope.Type,
		IntentID: envelope.Data.ID,
		Status:   envelope.Data.Status,
		Amount:   envelope.Data.Amount,
		Received: envelope.Data.AmountReceived,
		Currency: envelope.Data.Currency,
		Decline:  envelope.Data.DeclineCode,
		Raw:      raw,
	}, nil
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
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
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
