// Package grpc adapts the x402 negotiation flow to native gRPC servers,
// carrying the payment payload and requirement descriptor over metadata
// instead of HTTP headers.
package grpc

import (
	"context"
	"fmt"

	x402 "github.com/oliverpay/x402"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor creates a gRPC unary interceptor enforcing x402
// payment negotiation. The negotiation is identical to the HTTP middleware's:
// methods outside the configured protected paths pass through unpaid, absent
// payment metadata yields the requirement descriptor, and a verified payment
// proceeds with fire-and-forget settlement. gRPC has no 402 status;
// rejections use RESOURCE_EXHAUSTED, following Google Cloud's precedent for
// billing and quota enforcement, with the encoded descriptor as the message.
func UnaryServerInterceptor(n *x402.Negotiator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !n.Config().RequiresPayment(info.FullMethod) {
			return handler(ctx, req)
		}

		result, err := negotiate(ctx, n, info.FullMethod)
		if err != nil {
			return nil, err
		}

		ctx = context.WithValue(ctx, x402.PaymentContextKey, result.PaymentInfo)

		resp, err := handler(ctx, req)
		if err != nil {
			return nil, err
		}

		if encoded, encErr := EncodePaymentInfo(result.PaymentInfo); encErr == nil {
			trailer := metadata.Pairs(MetadataKeyPaymentResponse, encoded)
			grpc.SetTrailer(ctx, trailer)
		}

		return resp, nil
	}
}

// negotiate runs the shared state machine against incoming metadata and maps
// rejections to gRPC statuses. gRPC methods carry no cart; they price at the
// flat configured amount.
func negotiate(ctx context.Context, n *x402.Negotiator, fullMethod string) (*x402.Result, error) {
	var paymentHeader string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		paymentHeader = PaymentFromMetadata(md)
	}

	result, err := n.Negotiate(ctx, paymentHeader, nil, fullMethod)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("payment negotiation error: %v", err))
	}

	if !result.Success {
		encoded, encErr := EncodePaymentRequired(result.ErrorResponse)
		if encErr != nil {
			return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode payment requirements: %v", encErr))
		}
		return nil, status.Error(codes.ResourceExhausted, encoded)
	}

	return result, nil
}

// GetPaymentFromContext extracts payment info from the gRPC context inside
// service handlers.
func GetPaymentFromContext(ctx context.Context) (*x402.PaymentInfo, bool) {
	return x402.GetPaymentFromContext(ctx)
}

// RequirePayment extracts payment info and returns a RESOURCE_EXHAUSTED
// status when the call was not paid for.
func RequirePayment(ctx context.Context) (*x402.PaymentInfo, error) {
	info, ok := GetPaymentFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.ResourceExhausted, "payment context not found")
	}
	return info, nil
}
