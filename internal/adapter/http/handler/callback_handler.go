package handler

import (
	"io"
	"net/http"

	"agropay/internal/adapter/http/dto"
	"agropay/internal/adapter/http/middleware"
	"agropay/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Providers send callbacks of at most a few KB; anything larger is junk.
const maxCallbackBody = 64 * 1024

// CallbackHandler receives asynchronous payment confirmations from the
// provider. It always answers HTTP 200: the ResultCode in the body is what
// steers the provider's redelivery behavior, not the HTTP status.
type CallbackHandler struct {
	svc    ports.PaymentService
	logger zerolog.Logger
}

func NewCallbackHandler(svc ports.PaymentService, logger zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		svc:    svc,
		logger: logger.With().Str("component", "callback_handler").Logger(),
	}
}

// MpesaCallback handles POST /api/v1/payments/mpesa/callback.
func (h *CallbackHandler) MpesaCallback(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read callback body")
		middleware.ObserveCallback("acked")
		c.JSON(http.StatusOK, dto.StkCallbackAck{ResultCode: 0, ResultDesc: "Success"})
		return
	}

	if err := h.svc.HandleCallback(c.Request.Context(), raw); err != nil {
		h.logger.Error().Err(err).Msg("callback reconciliation failed, requesting redelivery")
		middleware.ObserveCallback("fault")
		c.JSON(http.StatusOK, dto.StkCallbackAck{ResultCode: 1, ResultDesc: "Internal error, please retry"})
		return
	}

	middleware.ObserveCallback("acked")
	c.JSON(http.StatusOK, dto.StkCallbackAck{ResultCode: 0, ResultDesc: "Success"})
}
