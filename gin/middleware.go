// Package gin adapts the x402 negotiation flow to the Gin framework. It is a
// thin translation layer: all verification and settlement logic lives in the
// shared negotiator.
package gin

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	x402 "github.com/oliverpay/x402"
)

// PaymentContextKey is the gin context key under which verified payment info
// is stored.
const PaymentContextKey = "x402-payment"

// Option customizes the Gin middleware.
type Option func(*options)

type options struct {
	cart x402.CartExtractor
}

// WithCartExtractor makes the middleware price each request from its cart
// instead of the flat configured amount.
func WithCartExtractor(extract x402.CartExtractor) Option {
	return func(o *options) { o.cart = extract }
}

// PaymentMiddleware creates a Gin middleware enforcing x402 payment
// negotiation on the negotiator's protected paths. On rejection the handler
// chain is aborted with a 402 and the requirement descriptor; on success the
// verified payment info is stored under PaymentContextKey and echoed in the
// X-PAYMENT-RESPONSE header.
func PaymentMiddleware(n *x402.Negotiator, opts ...Option) gin.HandlerFunc {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		if !n.Config().RequiresPayment(c.Request.URL.Path) {
			c.Next()
			return
		}

		var items []x402.CartItem
		if o.cart != nil {
			body, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))

			items, err = o.cart(c.Request, body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}

		result, err := n.Negotiate(c.Request.Context(), c.GetHeader(x402.PaymentHeader), items, c.Request.URL.Path)
		if err != nil {
			switch x402.ErrorCode(err) {
			case x402.ErrCodeProductNotFound:
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			case x402.ErrCodeInvalidCart:
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		if !result.Success {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, result.ErrorResponse)
			return
		}

		if encoded, err := x402.EncodePaymentInfo(result.PaymentInfo); err == nil {
			c.Header(x402.PaymentResponseHeader, encoded)
		}

		c.Set(PaymentContextKey, result.PaymentInfo)
		ctx := context.WithValue(c.Request.Context(), x402.PaymentContextKey, result.PaymentInfo)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetPayment extracts verified payment info from the gin context.
func GetPayment(c *gin.Context) (*x402.PaymentInfo, bool) {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil, false
	}
	info, ok := value.(*x402.PaymentInfo)
	return info, ok
}
