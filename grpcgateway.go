package x402

import (
	"context"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/metadata"
)

// WithPaymentMetadata returns a ServeMuxOption that propagates verified
// payment info from the HTTP middleware into gRPC metadata, making it
// accessible in gRPC handlers behind a grpc-gateway.
func WithPaymentMetadata() runtime.ServeMuxOption {
	return runtime.WithMetadata(func(ctx context.Context, r *http.Request) metadata.MD {
		md := metadata.MD{}

		info, ok := GetPaymentFromContext(ctx)
		if !ok || info == nil {
			return md
		}

		md.Set("x-payment-id", info.PaymentID)
		md.Set("x-payment-payer", info.Payer)
		md.Set("x-payment-amount", info.Amount)
		if info.TxHash != "" {
			md.Set("x-payment-tx-hash", info.TxHash)
		}

		return md
	})
}

// GetPaymentFromGRPCContext extracts payment info forwarded by
// WithPaymentMetadata from incoming gRPC metadata.
func GetPaymentFromGRPCContext(ctx context.Context) (*PaymentInfo, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, false
	}

	id := md.Get("x-payment-id")
	if len(id) == 0 || id[0] == "" {
		return nil, false
	}

	info := &PaymentInfo{PaymentID: id[0]}

	if payer := md.Get("x-payment-payer"); len(payer) > 0 {
		info.Payer = payer[0]
	}
	if amount := md.Get("x-payment-amount"); len(amount) > 0 {
		info.Amount = amount[0]
	}
	if txHash := md.Get("x-payment-tx-hash"); len(txHash) > 0 {
		info.TxHash = txHash[0]
	}

	return info, true
}

// GetHTTPPathPattern extracts the HTTP path pattern from grpc-gateway
// context, for payment decisions based on the matched route.
func GetHTTPPathPattern(ctx context.Context) (string, bool) {
	pattern, ok := runtime.HTTPPathPattern(ctx)
	return pattern, ok
}
