package grpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/becomeliminal/x402-paywall"
	"google.golang.org/grpc/metadata"
)

const (
	// MetadataKeyPayment is the metadata key for the payment payload, the
	// gRPC counterpart of the X-PAYMENT header
	MetadataKeyPayment = "x-payment"

	// MetadataKeyPaymentResponse is the trailer key for the settlement response
	MetadataKeyPaymentResponse = "x-payment-response"
)

// EncodePaymentRequirements encodes a payment-required body to base64 JSON.
// It is carried as the message of the RESOURCE_EXHAUSTED status.
func EncodePaymentRequirements(response x402.PaymentRequiredResponse) (string, error) {
	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment requirements: %w", err)
	}

	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodePaymentRequirements decodes a base64 JSON payment-required body
func DecodePaymentRequirements(encoded string) (*x402.PaymentRequiredResponse, error) {
	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var response x402.PaymentRequiredResponse
	if err := json.Unmarshal(jsonBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment requirements: %w", err)
	}

	return &response, nil
}

// ExtractPaymentFromMetadata returns the raw payment header value, or "" when absent
func ExtractPaymentFromMetadata(md metadata.MD) string {
	values := md.Get(MetadataKeyPayment)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// ExtractPaymentResponseFromMetadata decodes the settlement response from trailer metadata
func ExtractPaymentResponseFromMetadata(md metadata.MD) (*x402.PaymentResponse, error) {
	values := md.Get(MetadataKeyPaymentResponse)
	if len(values) == 0 {
		return nil, fmt.Errorf("no payment response found in metadata")
	}

	return x402.DecodePaymentResponse(values[0])
}

// WithPayment attaches an encoded payment to an outgoing client context
func WithPayment(ctx context.Context, encodedPayment string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyPayment, encodedPayment)
}
