package grpc

import (
	"context"
	"fmt"

	x402 "github.com/becomeliminal/x402-paywall"
	"github.com/becomeliminal/x402-paywall/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor creates a gRPC unary server interceptor that enforces x402 payments
// It runs the same negotiation as the HTTP middleware over gRPC metadata.
// Methods listed in the service's SkipPaths (full method names) are not charged.
func UnaryServerInterceptor(svc *x402.Service) grpc.UnaryServerInterceptor {
	cfg := svc.Config()
	log := logger.Named("x402-grpc")

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if cfg.ShouldSkip(info.FullMethod) {
			return handler(ctx, req)
		}

		ctx, n, paymentCtx, err := negotiate(ctx, svc)
		if err != nil {
			return nil, err
		}

		resp, err := handler(ctx, req)
		if err != nil {
			return nil, err
		}

		settled, msg := svc.Settle(ctx, n)
		if !settled.Success {
			return nil, paymentRequired(svc, msg)
		}
		svc.RecordSettlement(paymentCtx, settled)

		encoded, err := x402.EncodePaymentResponse(svc.PaymentResponse(settled))
		if err != nil {
			logger.C(ctx, log).Error().Err(err).Msg("failed to encode payment response")
			return resp, nil
		}
		if err := grpc.SetTrailer(ctx, metadata.Pairs(MetadataKeyPaymentResponse, encoded)); err != nil {
			logger.C(ctx, log).Warn().Err(err).Msg("failed to set payment response trailer")
		}

		return resp, nil
	}
}

// negotiate decodes, matches and verifies the payment in ctx's metadata.
// On success the returned context carries the payment context.
func negotiate(ctx context.Context, svc *x402.Service) (context.Context, *x402.Negotiation, *x402.PaymentContext, error) {
	var raw string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		raw = ExtractPaymentFromMetadata(md)
	}

	n, err := svc.NegotiatePayment(raw)
	if err != nil {
		return ctx, nil, nil, paymentRequired(svc, x402.ErrorMessage(err))
	}
	ctx = logger.WithOrder(ctx, n.OrderID)

	verified, msg := svc.Verify(ctx, n)
	if !verified.IsValid {
		return ctx, nil, nil, paymentRequired(svc, msg)
	}

	paymentCtx := svc.PaymentContext(n, verified)
	return context.WithValue(ctx, x402.PaymentContextKey, paymentCtx), n, paymentCtx, nil
}

// paymentRequired returns a RESOURCE_EXHAUSTED status whose message is the
// base64 JSON payment-required body.
// RESOURCE_EXHAUSTED follows Google Cloud's precedent for billing/quota enforcement.
func paymentRequired(svc *x402.Service, errMsg string) error {
	encoded, err := EncodePaymentRequirements(svc.PaymentRequired(errMsg))
	if err != nil {
		return status.Error(codes.Internal, fmt.Sprintf("failed to encode payment requirements: %v", err))
	}
	return status.Error(codes.ResourceExhausted, encoded)
}

// GetPaymentFromContext extracts payment information from the gRPC context
func GetPaymentFromContext(ctx context.Context) (*x402.PaymentContext, bool) {
	return x402.GetPaymentFromContext(ctx)
}

// RequirePayment is a helper that extracts payment from context and returns error if not found
// Useful for gRPC handlers that must have valid payment
func RequirePayment(ctx context.Context) (*x402.PaymentContext, error) {
	payment, ok := GetPaymentFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.ResourceExhausted, "payment context not found")
	}
	if !payment.Verified {
		return nil, status.Error(codes.ResourceExhausted, "payment not verified")
	}
	return payment, nil
}
