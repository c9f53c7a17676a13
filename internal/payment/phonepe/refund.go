package phonepe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidSignature is returned when a webhook's X-VERIFY header does not
// match the recomputed checksum. Callers must reject the payload without
// touching any order.
var ErrInvalidSignature = errors.New("invalid webhook signature")

type refundPayload struct {
	MerchantID            string `json:"merchantId"`
	MerchantUserID        string `json:"merchantUserId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	Amount                int64  `json:"amount"`
	CallbackURL           string `json:"callbackUrl"`
}

// RefundResult mirrors the gateway's refund record.
type RefundResult struct {
	MerchantRefundID string
	TransactionID    string
	State            string
	Amount           int64
}

// Refund asks the gateway to return amount (paise) of the original
// transaction. merchantRefundID is a fresh correlation id for the refund
// itself.
func (c *Client) Refund(ctx context.Context, merchantRefundID, originalMerchantTxID, merchantUserID string, amount int64) (RefundResult, error) {
	payload := refundPayload{
		MerchantID:            c.cfg.MerchantID,
		MerchantUserID:        merchantUserID,
		OriginalTransactionID: originalMerchantTxID,
		MerchantTransactionID: merchantRefundID,
		Amount:                amount,
		CallbackURL:           c.cfg.CallbackURL,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return RefundResult{}, fmt.Errorf("marshaling refund payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	body, err := json.Marshal(map[string]string{"request": encoded})
	if err != nil {
		return RefundResult{}, fmt.Errorf("marshaling refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+refundPath, bytes.NewReader(body))
	if err != nil {
		return RefundResult{}, fmt.Errorf("creating refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-VERIFY", c.checksum(encoded+refundPath))

	var envelope gatewayEnvelope
	if err := c.do(req, &envelope); err != nil {
		return RefundResult{}, err
	}
	if !envelope.Success {
		return RefundResult{}, fmt.Errorf("gateway rejected refund: %s (%s)", envelope.Code, envelope.Message)
	}

	var data statusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return RefundResult{}, fmt.Errorf("decoding refund response: %w", err)
	}
	return RefundResult{
		MerchantRefundID: data.MerchantTransactionID,
		TransactionID:    data.TransactionID,
		State:            data.State,
		Amount:           data.Amount,
	}, nil
}

// RefundStatus polls the gateway for the refund's state; refunds share the
// status endpoint with payments, keyed by the merchant refund id.
func (c *Client) RefundStatus(ctx context.Context, merchantRefundID string) (RefundResult, error) {
	result, err := c.Status(ctx, merchantRefundID)
	if err != nil {
		return RefundResult{}, err
	}
	return RefundResult{
		MerchantRefundID: result.MerchantTransactionID,
		TransactionID:    result.TransactionID,
		State:            result.State,
		Amount:           result.Amount,
	}, nil
}
