package public

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/subpay-core/internal/constants"
	"github.com/subpay-core/internal/http/handlers/shared"
	"github.com/subpay-core/internal/models"
	"github.com/subpay-core/internal/payment/cardgate"
	"github.com/subpay-core/internal/payment/cryptogate"
	"github.com/subpay-core/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 网关回调签名头
const (
	cardSignatureHeader   = "Cardgate-Signature"
	cryptoSignatureHeader = "X-Ipn-Signature"
)

// CardWebhook 卡支付网关回调。
// 回调方只认 HTTP 状态码：2xx 停止重试，4xx 表示请求非法，5xx 触发重试。
func (h *Handler) CardWebhook(c *gin.Context) {
	log := shared.RequestLog(c)

	cfg, err := cardgate.ParseConfig(h.container.Config.Providers.CardGate)
	if err != nil {
		log.Errorw("card_webhook_config_invalid", "error", err)
		c.String(http.StatusInternalServerError, "provider not configured")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "read body failed")
		return
	}
	if err := cardgate.VerifyWebhook(cfg, body, c.GetHeader(cardSignatureHeader), time.Now()); err != nil {
		log.Warnw("card_webhook_signature_invalid", "error", err)
		c.String(http.StatusBadRequest, "signature invalid")
		return
	}

	event, err := cardgate.ParseEvent(body)
	if err != nil {
		log.Warnw("card_webhook_parse_failed", "error", err)
		c.String(http.StatusBadRequest, "payload invalid")
		return
	}

	result, err := h.container.ReconcileService.ProcessEvent(service.ReconcileEventInput{
		Context:           c.Request.Context(),
		Provider:          constants.PaymentProviderCard,
		EventID:           event.EventID,
		ProviderPaymentID: event.IntentID,
		EventType:         event.Type,
		RawStatus:         event.Status,
		Amount:            event.Amount,
		ReceivedAmount:    event.Received,
		Currency:          event.Currency,
		DeclineCode:       event.Decline,
		Payload:           models.JSON(event.Raw),
	})
	respondWebhookResult(c, log, result, err)
}

// CryptoWebhook 加密货币网关 IPN 回调
func (h *Handler) CryptoWebhook(c *gin.Context) {
	log := shared.RequestLog(c)

	cfg, err := cryptogate.ParseConfig(h.container.Config.Providers.CryptoGate)
	if err != nil {
		log.Errorw("crypto_webhook_config_invalid", "error", err)
		c.String(http.StatusInternalServerError, "provider not configured")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "read body failed")
		return
	}
	if err := cryptogate.VerifyIPN(cfg, body, c.GetHeader(cryptoSignatureHeader)); err != nil {
		log.Warnw("crypto_webhook_signature_invalid", "error", err)
		c.String(http.StatusBadRequest, "signature invalid")
		return
	}

	ipn, err := cryptogate.ParseIPN(body)
	if err != nil {
		log.Warnw("crypto_webhook_parse_failed", "error", err)
		c.String(http.StatusBadRequest, "payload invalid")
		return
	}

	result, err := h.container.ReconcileService.ProcessEvent(service.ReconcileEventInput{
		Context:           c.Request.Context(),
		Provider:          constants.PaymentProviderCrypto,
		ProviderPaymentID: ipn.InvoiceID,
		EventType:         "ipn",
		RawStatus:         ipn.Status,
		Amount:            ipn.PriceAmount,
		ReceivedAmount:    ipn.ActuallyPaid,
		Currency:          ipn.PriceCurrency,
		Payload:           models.JSON(ipn.Raw),
	})
	respondWebhookResult(c, log, result, err)
}

func respondWebhookResult(c *gin.Context, log *zap.SugaredLogger, result *service.ReconcileResult, err error) {
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEventInvalid):
			c.String(http.StatusBadRequest, "event invalid")
		case errors.Is(err, service.ErrPaymentNotFound):
			// 支付单尚未落库或不属于本系统，事件已留痕，由状态同步兜底
			log.Warnw("webhook_payment_not_found")
			c.String(http.StatusOK, "ok")
		default:
			log.Errorw("webhook_process_failed", "error", err)
			c.String(http.StatusInternalServerError, "process failed")
		}
		return
	}
	log.Infow("webhook_processed", "outcome", string(result.Outcome))
	c.String(http.StatusOK, "ok")
}
