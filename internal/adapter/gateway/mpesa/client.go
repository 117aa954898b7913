package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"agropay/internal/core/ports"
	"agropay/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	oauthPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	// Daraja timestamps are local Nairobi time in this layout.
	timestampLayout = "20060102150405"
)

// HTTPClient abstracts the HTTP transport for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials holds the Daraja API credentials and endpoints.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	BaseURL        string
	CallbackURL    string
}

// Client is the Daraja STK push gateway client. It implements
// ports.PaymentGateway. Each initiation acquires its own access token;
// tokens are never cached or shared across requests.
type Client struct {
	creds      Credentials
	httpClient HTTPClient
	logger     zerolog.Logger

	now func() time.Time
}

// NewClient creates a Daraja gateway client.
func NewClient(creds Credentials, httpClient HTTPClient, logger zerolog.Logger) *Client {
	return &Client{
		creds:      creds,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "mpesa_gateway").Logger(),
		now:        time.Now,
	}
}

// Name implements ports.PaymentGateway.
func (c *Client) Name() string {
	return "mpesa"
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// fetchAccessToken acquires a fresh token for a single initiation. The
// Daraja OAuth endpoint takes the consumer key/secret as HTTP basic auth.
func (c *Client) fetchAccessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.creds.BaseURL+oauthPath, nil)
	if err != nil {
		return "", apperror.ErrGatewayAuth(err)
	}
	req.SetBasicAuth(c.creds.ConsumerKey, c.creds.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperror.ErrGatewayAuth(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperror.ErrGatewayAuth(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperror.ErrGatewayAuth(fmt.Errorf("token endpoint returned status %d", resp.StatusCode))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", apperror.ErrGatewayAuth(fmt.Errorf("decode token response: %w", err))
	}
	if tok.AccessToken == "" {
		return "", apperror.ErrGatewayAuth(fmt.Errorf("token response missing access_token"))
	}

	return tok.AccessToken, nil
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type darajaErrorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// InitiateSTKPush implements ports.PaymentGateway. The password is the
// base64 of shortcode+passkey+timestamp, recomputed per request so it always
// matches the Timestamp field.
func (c *Client) InitiateSTKPush(ctx context.Context, req ports.STKPushRequest) (*ports.STKPushResponse, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	token, err := c.fetchAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ts := c.now().Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(c.creds.ShortCode + c.creds.Passkey + ts))

	payload := stkPushPayload{
		BusinessShortCode: c.creds.ShortCode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.String(),
		PartyA:            phone,
		PartyB:            c.creds.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.creds.CallbackURL,
		AccountReference:  fmt.Sprintf("AGROPAY-%d", req.TransactionID),
		TransactionDesc:   req.Description,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperror.ErrGatewayRequest("", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, apperror.ErrGatewayRequest("", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperror.ErrGatewayRequest("", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperror.ErrGatewayRequest("", err)
	}

	if resp.StatusCode != http.StatusOK {
		var derr darajaErrorResponse
		_ = json.Unmarshal(respBody, &derr)
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_code", derr.ErrorCode).
			Str("error_message", derr.ErrorMessage).
			Msg("stk push rejected by provider")
		return nil, apperror.ErrGatewayRequest(derr.ErrorMessage, fmt.Errorf("stk push returned status %d", resp.StatusCode))
	}

	var pushResp stkPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		return nil, apperror.ErrGatewayRequest("", fmt.Errorf("decode stk push response: %w", err))
	}
	if pushResp.ResponseCode != "0" {
		return nil, apperror.ErrGatewayRequest(pushResp.ResponseDescription, fmt.Errorf("stk push response code %q", pushResp.ResponseCode))
	}

	c.logger.Info().
		Int64("transaction_id", req.TransactionID).
		Str("checkout_request_id", pushResp.CheckoutRequestID).
		Msg("stk push accepted")

	return &ports.STKPushResponse{
		CheckoutRequestID:   pushResp.CheckoutRequestID,
		MerchantRequestID:   pushResp.MerchantRequestID,
		ResponseCode:        pushResp.ResponseCode,
		ResponseDescription: pushResp.ResponseDescription,
	}, nil
}
