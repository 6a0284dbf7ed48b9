package x402

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// CartExtractor derives cart items from a request so the middleware can
// price it. body is the request body, already read and restored by the
// middleware. Returning an empty slice means flat generic-access pricing.
type CartExtractor func(r *http.Request, body []byte) ([]CartItem, error)

// JSONCartExtractor reads cart items from a JSON body of the form
// {"items": [{"productId": ..., "quantity": ...}]}. An empty or absent body
// yields an empty cart.
func JSONCartExtractor(r *http.Request, body []byte) ([]CartItem, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var req struct {
		Items []CartItem `json:"items"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return req.Items, nil
}

// MiddlewareOption customizes the HTTP middleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	cart CartExtractor
}

// WithCartExtractor makes the middleware price each request from its cart
// instead of the flat configured amount.
func WithCartExtractor(extract CartExtractor) MiddlewareOption {
	return func(o *middlewareOptions) { o.cart = extract }
}

// PaymentMiddleware creates standard http.Handler middleware enforcing x402
// payment negotiation on the negotiator's protected paths. On success the
// verified PaymentInfo is injected into the request context and echoed in
// the X-PAYMENT-RESPONSE header; on any rejection the client gets a 402 with
// a machine-readable accepts array.
func PaymentMiddleware(n *Negotiator, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var o middlewareOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !n.cfg.RequiresPayment(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			var items []CartItem
			if o.cart != nil {
				body, err := readAndRestoreBody(r)
				if err != nil {
					sendError(w, http.StatusBadRequest, "failed to read request body")
					return
				}
				items, err = o.cart(r, body)
				if err != nil {
					sendError(w, http.StatusBadRequest, "invalid request body")
					return
				}
			}

			result, err := n.Negotiate(r.Context(), r.Header.Get(PaymentHeader), items, r.URL.Path)
			if err != nil {
				// Failures upstream of the negotiation, like an unknown
				// product id, must not masquerade as 402s.
				switch ErrorCode(err) {
				case ErrCodeProductNotFound:
					sendError(w, http.StatusNotFound, err.Error())
				case ErrCodeInvalidCart:
					sendError(w, http.StatusBadRequest, err.Error())
				default:
					sendError(w, http.StatusInternalServerError, err.Error())
				}
				return
			}

			if !result.Success {
				sendPaymentRequired(w, result.ErrorResponse)
				return
			}

			if encoded, err := EncodePaymentInfo(result.PaymentInfo); err == nil {
				w.Header().Set(PaymentResponseHeader, encoded)
			}

			ctx := context.WithValue(r.Context(), PaymentContextKey, result.PaymentInfo)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sendPaymentRequired writes a 402 response with the requirement descriptor.
func sendPaymentRequired(w http.ResponseWriter, response *PaymentRequiredResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(response)
}

// sendError writes a JSON error response.
func sendError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// readAndRestoreBody consumes the request body and puts an equivalent reader
// back so downstream handlers can read it again.
func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// GetPaymentFromContext extracts verified payment info from the request
// context. ok is false when the request did not go through a successful
// negotiation.
func GetPaymentFromContext(ctx context.Context) (*PaymentInfo, bool) {
	info, ok := ctx.Value(PaymentContextKey).(*PaymentInfo)
	return info, ok
}

// RequirePayment extracts payment info from the context and errors if the
// request was not paid for. Useful in handlers that must have valid payment.
func RequirePayment(ctx context.Context) (*PaymentInfo, error) {
	info, ok := GetPaymentFromContext(ctx)
	if !ok {
		return nil, errors.New("payment context not found")
	}
	return info, nil
}
