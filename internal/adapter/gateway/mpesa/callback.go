package mpesa

import (
	"encoding/json"
	"fmt"

	"agropay/internal/core/ports"

	"github.com/shopspring/decimal"
)

// resultCode tolerates both the numeric and string encodings Daraja has been
// observed to send for Body.stkCallback.ResultCode.
type resultCode string

func (r *resultCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = resultCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("result code is neither string nor number: %s", data)
	}
	*r = resultCode(n.String())
	return nil
}

type callbackMetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string     `json:"MerchantRequestID"`
			CheckoutRequestID string     `json:"CheckoutRequestID"`
			ResultCode        resultCode `json:"ResultCode"`
			ResultDesc        string     `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []callbackMetadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback implements ports.PaymentGateway. It returns nil when the
// payload is not a recognizable STK callback; such deliveries cannot be
// attributed to any transaction and are acknowledged without processing.
func (c *Client) ParseCallback(raw []byte) *ports.CallbackResult {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil
	}

	result := &ports.CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		Success:           cb.ResultCode == "0",
		ResultCode:        string(cb.ResultCode),
		ResultDesc:        cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if amt, err := decimal.NewFromString(rawScalar(item.Value)); err == nil {
				result.Amount = amt
			}
		case "MpesaReceiptNumber":
			result.ReceiptNumber = rawScalar(item.Value)
		case "PhoneNumber":
			result.PhoneNumber = rawScalar(item.Value)
		case "TransactionDate":
			result.TransactionDate = rawScalar(item.Value)
		}
	}

	return result
}

// rawScalar renders a JSON scalar (string or number) as its plain string
// value. Metadata items mix the two: receipts are strings, amounts and
// phone numbers arrive as numbers.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
