package x402

import (
	"context"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/metadata"
)

// Metadata keys carrying the payment context from grpc-gateway to gRPC handlers.
const (
	MetadataPaymentVerified = "x-payment-verified"
	MetadataPaymentScheme   = "x-payment-scheme"
	MetadataPaymentPayer    = "x-payment-payer"
	MetadataPaymentAmount   = "x-payment-amount"
	MetadataPaymentNetwork  = "x-payment-network"
	MetadataPaymentTxHash   = "x-payment-tx-hash"
	MetadataPaymentTxLink   = "x-payment-tx-link"
	MetadataPaymentSettled  = "x-payment-settled-at"
)

// WithPaymentMetadata returns a ServeMuxOption that propagates payment information
// from HTTP context to gRPC metadata, making it accessible in gRPC handlers
func WithPaymentMetadata() runtime.ServeMuxOption {
	return runtime.WithMetadata(func(ctx context.Context, r *http.Request) metadata.MD {
		return PaymentMetadata(ctx)
	})
}

// PaymentMetadata converts the payment context in ctx to gRPC metadata.
// It returns empty metadata when ctx carries no verified payment.
func PaymentMetadata(ctx context.Context) metadata.MD {
	md := metadata.MD{}

	payment, ok := GetPaymentFromContext(ctx)
	if !ok || payment == nil || !payment.Verified {
		return md
	}

	md.Set(MetadataPaymentVerified, "true")
	md.Set(MetadataPaymentScheme, string(payment.Scheme))
	md.Set(MetadataPaymentPayer, payment.PayerAddress)
	md.Set(MetadataPaymentAmount, payment.Amount)
	md.Set(MetadataPaymentNetwork, payment.Network)

	if payment.TransactionHash != "" {
		md.Set(MetadataPaymentTxHash, payment.TransactionHash)
	}
	if payment.TransactionLink != "" {
		md.Set(MetadataPaymentTxLink, payment.TransactionLink)
	}
	if !payment.SettledAt.IsZero() {
		md.Set(MetadataPaymentSettled, payment.SettledAt.UTC().Format(time.RFC3339))
	}

	return md
}

// GetPaymentFromGRPCContext extracts payment information from gRPC metadata
// Use this in gRPC handlers to access payment details
func GetPaymentFromGRPCContext(ctx context.Context) (*PaymentContext, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, false
	}

	if first(md, MetadataPaymentVerified) != "true" {
		return nil, false
	}

	payment := &PaymentContext{
		Verified:        true,
		Scheme:          PaymentScheme(first(md, MetadataPaymentScheme)),
		PayerAddress:    first(md, MetadataPaymentPayer),
		Amount:          first(md, MetadataPaymentAmount),
		Network:         first(md, MetadataPaymentNetwork),
		TransactionHash: first(md, MetadataPaymentTxHash),
		TransactionLink: first(md, MetadataPaymentTxLink),
	}
	if settled := first(md, MetadataPaymentSettled); settled != "" {
		if t, err := time.Parse(time.RFC3339, settled); err == nil {
			payment.SettledAt = t
		}
	}

	return payment, true
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// GetHTTPPathPattern extracts the HTTP path pattern from grpc-gateway context
// This is useful if you need to make payment decisions based on the matched route
func GetHTTPPathPattern(ctx context.Context) (string, bool) {
	pattern, ok := runtime.HTTPPathPattern(ctx)
	return pattern, ok
}
