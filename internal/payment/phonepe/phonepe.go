// Package phonepe is a client for the PhonePe hosted-checkout gateway. Every
// request carries an X-VERIFY checksum: SHA-256 over the request material
// concatenated with the salt key, suffixed with "###" and the salt index.
package phonepe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	payPath    = "/pg/v1/pay"
	statusPath = "/pg/v1/status"
	refundPath = "/pg/v1/refund"
)

// Gateway payment states, as reported by the status endpoint and webhook.
const (
	StateCompleted = "COMPLETED"
	StatePending   = "PENDING"
	StateFailed    = "FAILED"
)

type Config struct {
	BaseURL     string
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	RedirectURL string
	CallbackURL string
	Timeout     time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a gateway client. The HTTP timeout bounds checkout
// initiation and status polls; a timed-out initiation leaves the order
// pending and uncharged.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" || cfg.MerchantID == "" || cfg.SaltKey == "" {
		return nil, fmt.Errorf("phonepe config incomplete")
	}
	if cfg.SaltIndex == "" {
		cfg.SaltIndex = "1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Result is the gateway's view of one transaction, shared by the status
// poll and the webhook.
type Result struct {
	MerchantTransactionID string
	TransactionID         string
	State                 string
	ResponseCode          string
	PaymentMethod         string
	Amount                int64
	Message               string
}

type payPayload struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	PaymentInstrument     map[string]string `json:"paymentInstrument"`
}

type gatewayEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type payData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		Type         string `json:"type"`
		RedirectInfo struct {
			URL string `json:"url"`
		} `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type statusData struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
	PaymentInstrument     struct {
		Type string `json:"type"`
	} `json:"paymentInstrument"`
}

// Pay creates a transaction for amount (paise) correlated by
// merchantTransactionID and returns the hosted checkout URL the shopper is
// redirected to.
func (c *Client) Pay(ctx context.Context, merchantTransactionID, merchantUserID string, amount int64) (string, error) {
	payload := payPayload{
		MerchantID:            c.cfg.MerchantID,
		MerchantTransactionID: merchantTransactionID,
		MerchantUserID:        merchantUserID,
		Amount:                amount,
		RedirectURL:           c.cfg.RedirectURL,
		RedirectMode:          "REDIRECT",
		CallbackURL:           c.cfg.CallbackURL,
		PaymentInstrument:     map[string]string{"type": "PAY_PAGE"},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling pay payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return "", fmt.Errorf("marshaling pay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+payPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating pay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", c.checksum(encoded+payPath))

	var envelope gatewayEnvelope
	if err := c.do(req, &envelope); err != nil {
		return "", err
	}
	if !envelope.Success {
		return "", fmt.Errorf("gateway rejected payment: %s (%s)", envelope.Code, envelope.Message)
	}

	var data payData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return "", fmt.Errorf("decoding pay response: %w", err)
	}
	if data.InstrumentResponse.RedirectInfo.URL == "" {
		return "", fmt.Errorf("gateway returned no checkout url")
	}
	return data.InstrumentResponse.RedirectInfo.URL, nil
}

// Status polls the gateway's own record for the transaction. This is the
// ground truth both reconciliation paths converge to; redirect query
// parameters are never trusted.
func (c *Client) Status(ctx context.Context, merchantTransactionID string) (Result, error) {
	path := fmt.Sprintf("%s/%s/%s", statusPath, c.cfg.MerchantID, merchantTransactionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", c.checksum(path))
	req.Header.Set("X-MERCHANT-ID", c.cfg.MerchantID)

	var envelope gatewayEnvelope
	if err := c.do(req, &envelope); err != nil {
		return Result{}, err
	}

	var data statusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return Result{}, fmt.Errorf("decoding status response: %w", err)
	}

	return Result{
		MerchantTransactionID: data.MerchantTransactionID,
		TransactionID:         data.TransactionID,
		State:                 data.State,
		ResponseCode:          data.ResponseCode,
		PaymentMethod:         data.PaymentInstrument.Type,
		Amount:                data.Amount,
		Message:               envelope.Message,
	}, nil
}

// WebhookBody is the callback shape: a base64 encoded status envelope.
type WebhookBody struct {
	Response string `json:"response"`
}

// VerifyAndDecodeWebhook authenticates a gateway callback against the
// shared salt and decodes it into a Result. The comparison is constant
// time.
func (c *Client) VerifyAndDecodeWebhook(body []byte, xVerify string) (Result, error) {
	var wb WebhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return Result{}, fmt.Errorf("decoding webhook body: %w", err)
	}
	if wb.Response == "" {
		return Result{}, fmt.Errorf("webhook body missing response")
	}

	expected := c.checksum(wb.Response)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(xVerify)) != 1 {
		return Result{}, ErrInvalidSignature
	}

	decoded, err := base64.StdEncoding.DecodeString(wb.Response)
	if err != nil {
		return Result{}, fmt.Errorf("decoding webhook payload: %w", err)
	}

	var envelope gatewayEnvelope
	if err := json.Unmarshal(decoded, &envelope); err != nil {
		return Result{}, fmt.Errorf("decoding webhook envelope: %w", err)
	}
	var data statusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return Result{}, fmt.Errorf("decoding webhook data: %w", err)
	}

	return Result{
		MerchantTransactionID: data.MerchantTransactionID,
		TransactionID:         data.TransactionID,
		State:                 data.State,
		ResponseCode:          data.ResponseCode,
		PaymentMethod:         data.PaymentInstrument.Type,
		Amount:                data.Amount,
		Message:               envelope.Message,
	}, nil
}

func (c *Client) do(req *http.Request, out *gatewayEnvelope) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gateway response: %w", err)
	}
	return nil
}

func (c *Client) checksum(data string) string {
	sum := sha256.Sum256([]byte(data + c.cfg.SaltKey))
	return hex.EncodeToString(sum[:]) + "###" + c.cfg.SaltIndex
}
