package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// facilitatorRequest is the body of both /verify and /settle calls: the
// still-encoded X-PAYMENT header value.
type facilitatorRequest struct {
	Payment string `json:"payment"`
}

// FacilitatorClient talks to the external facilitator service that owns
// signature and ledger validation. The facilitator is ground truth for
// payment validity; this client never inspects the payload itself.
type FacilitatorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFacilitatorClient creates a facilitator client with a bounded HTTP
// timeout so a stalled facilitator surfaces as FACILITATOR_UNAVAILABLE
// instead of hanging the negotiation.
func NewFacilitatorClient(baseURL string, logger *slog.Logger) *FacilitatorClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FacilitatorClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Verify submits the encoded payment to POST {base}/verify. Transport errors
// and non-2xx statuses fail with FACILITATOR_UNAVAILABLE.
func (c *FacilitatorClient) Verify(ctx context.Context, encodedPayment string) (*VerifyResponse, error) {
	var verifyResp VerifyResponse
	if err := c.post(ctx, "/verify", encodedPayment, &verifyResp); err != nil {
		return nil, NewPaymentError(ErrCodeFacilitatorUnavailable, "failed to verify payment", err)
	}
	return &verifyResp, nil
}

// Settle submits the encoded payment to POST {base}/settle synchronously.
// The facilitator settles idempotently keyed by paymentId.
func (c *FacilitatorClient) Settle(ctx context.Context, encodedPayment string) (*SettleResponse, error) {
	var settleResp SettleResponse
	if err := c.post(ctx, "/settle", encodedPayment, &settleResp); err != nil {
		return nil, NewPaymentError(ErrCodeFacilitatorUnavailable, "failed to settle payment", err)
	}
	return &settleResp, nil
}

// SettleAsync fires settlement in the background and returns immediately.
// The response path never blocks on, or fails because of, settlement: the
// resource has already been granted once verification succeeded. Failures
// are logged only. At most one attempt per call; the facilitator is
// responsible for idempotency.
//
// The goroutine runs on a detached context so it survives the request's
// cancellation, bounded by its own timeout.
func (c *FacilitatorClient) SettleAsync(encodedPayment string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		settleResp, err := c.Settle(ctx, encodedPayment)
		if err != nil {
			c.logger.Error("background settlement failed", "error", err)
			return
		}
		if !settleResp.Settled {
			c.logger.Error("background settlement not confirmed",
				"paymentId", settleResp.PaymentID, "txHash", settleResp.TxHash)
			return
		}
		c.logger.Info("payment settled",
			"paymentId", settleResp.PaymentID,
			"txHash", settleResp.TxHash,
			"blockNumber", settleResp.BlockNumber)
	}()
}

func (c *FacilitatorClient) post(ctx context.Context, endpoint, encodedPayment string, out interface{}) error {
	body, err := json.Marshal(facilitatorRequest{Payment: encodedPayment})
	if err != nil {
		return fmt.Errorf("failed to marshal facilitator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create facilitator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to call facilitator %s endpoint: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("facilitator %s returned status %d: %s", endpoint, resp.StatusCode, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator %s response: %w", endpoint, err)
	}
	return nil
}
