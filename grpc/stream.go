package grpc

import (
	"context"

	x402 "github.com/oliverpay/x402"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// StreamServerInterceptor creates a gRPC stream interceptor enforcing x402
// payments. Payment is negotiated once, before the stream begins; per-message
// payment is not supported.
func StreamServerInterceptor(n *x402.Negotiator) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if !n.Config().RequiresPayment(info.FullMethod) {
			return handler(srv, ss)
		}

		result, err := negotiate(ss.Context(), n, info.FullMethod)
		if err != nil {
			return err
		}

		ctx := context.WithValue(ss.Context(), x402.PaymentContextKey, result.PaymentInfo)
		wrapped := &paymentServerStream{ServerStream: ss, ctx: ctx}

		if err := handler(srv, wrapped); err != nil {
			return err
		}

		if encoded, encErr := EncodePaymentInfo(result.PaymentInfo); encErr == nil {
			wrapped.SetTrailer(metadata.Pairs(MetadataKeyPaymentResponse, encoded))
		}
		return nil
	}
}

// paymentServerStream wraps grpc.ServerStream to expose the payment-enriched
// context.
type paymentServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *paymentServerStream) Context() context.Context {
	return s.ctx
}
