package grpc

import (
	"context"

	x402 "github.com/becomeliminal/x402-paywall"
	"github.com/becomeliminal/x402-paywall/internal/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// StreamServerInterceptor creates a gRPC stream server interceptor that enforces x402 payments
// Payment is verified before the stream begins and settled after the handler
// returns without error. Per-message payment is not supported.
func StreamServerInterceptor(svc *x402.Service) grpc.StreamServerInterceptor {
	cfg := svc.Config()
	log := logger.Named("x402-grpc")

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg.ShouldSkip(info.FullMethod) {
			return handler(srv, ss)
		}

		ctx, n, paymentCtx, err := negotiate(ss.Context(), svc)
		if err != nil {
			return err
		}

		wrapped := &paymentServerStream{ServerStream: ss, ctx: ctx}
		if err := handler(srv, wrapped); err != nil {
			return err
		}

		settled, msg := svc.Settle(ctx, n)
		if !settled.Success {
			return paymentRequired(svc, msg)
		}
		svc.RecordSettlement(paymentCtx, settled)

		encoded, err := x402.EncodePaymentResponse(svc.PaymentResponse(settled))
		if err != nil {
			logger.C(ctx, log).Error().Err(err).Msg("failed to encode payment response")
			return nil
		}
		wrapped.SetTrailer(metadata.Pairs(MetadataKeyPaymentResponse, encoded))
		return nil
	}
}

// paymentServerStream wraps grpc.ServerStream to provide updated context with payment info
type paymentServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context with payment information
func (s *paymentServerStream) Context() context.Context {
	return s.ctx
}
