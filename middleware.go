package x402

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/becomeliminal/x402-paywall/internal/logger"
)

// PaymentMiddleware creates HTTP middleware that enforces x402 payment for
// every path not listed in the service's SkipPaths.
//
// The protected handler runs after verification with its response buffered.
// Settlement happens only when the handler answered with a status below 400;
// on success the buffered response is sent with X-PAYMENT-RESPONSE set.
func PaymentMiddleware(svc *Service) func(http.Handler) http.Handler {
	cfg := svc.Config()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.ShouldSkip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			n, err := svc.Negotiate(r.Header)
			if err != nil {
				sendPaymentRequired(w, r, svc, ErrorMessage(err))
				return
			}
			ctx = logger.WithOrder(ctx, n.OrderID)

			verified, msg := svc.Verify(ctx, n)
			if !verified.IsValid {
				sendPaymentRequired(w, r, svc, msg)
				return
			}

			paymentCtx := svc.PaymentContext(n, verified)
			ctx = context.WithValue(ctx, PaymentContextKey, paymentCtx)

			buf := newBufferedWriter()
			next.ServeHTTP(buf, r.WithContext(ctx))

			if buf.status >= http.StatusBadRequest {
				logger.C(ctx, svc.log).Info().Int("status", buf.status).Msg("handler failed, payment not settled")
				buf.flush(w)
				return
			}

			settled, msg := svc.Settle(ctx, n)
			if !settled.Success {
				sendPaymentRequired(w, r, svc, msg)
				return
			}
			svc.RecordSettlement(paymentCtx, settled)

			header, err := EncodePaymentResponse(svc.PaymentResponse(settled))
			if err != nil {
				logger.C(ctx, svc.log).Error().Err(err).Msg("failed to encode payment response")
			} else {
				buf.Header().Set(HeaderPaymentResponse, header)
			}
			buf.flush(w)
		})
	}
}

// bufferedWriter holds a handler's response until payment is settled.
type bufferedWriter struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: http.Header{}, status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = status
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

// flush copies the buffered response to w.
func (b *bufferedWriter) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	w.WriteHeader(b.status)
	w.Write(b.body.Bytes())
}

// sendPaymentRequired writes the composed 402 (or browser paywall) response
func sendPaymentRequired(w http.ResponseWriter, r *http.Request, svc *Service, errMsg string) {
	body, contentType, status := svc.Respond(r.Header, errMsg)
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}

// GetPaymentFromContext extracts payment information from the request context
// This can be used in gRPC handlers to access payment details
func GetPaymentFromContext(ctx context.Context) (*PaymentContext, bool) {
	payment, ok := ctx.Value(PaymentContextKey).(*PaymentContext)
	return payment, ok
}

// RequirePayment is a helper that extracts payment from context and returns error if not found
func RequirePayment(ctx context.Context) (*PaymentContext, error) {
	payment, ok := GetPaymentFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("payment context not found")
	}
	if !payment.Verified {
		return nil, fmt.Errorf("payment not verified")
	}
	return payment, nil
}

// EncodePaymentResponse encodes a PaymentResponse to X-PAYMENT-RESPONSE format (base64 JSON)
func EncodePaymentResponse(response PaymentResponse) (string, error) {
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(responseJSON), nil
}

// DecodePaymentResponse decodes an X-PAYMENT-RESPONSE header
func DecodePaymentResponse(xPaymentResponse string) (*PaymentResponse, error) {
	responseBytes, err := base64.StdEncoding.DecodeString(xPaymentResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	var response PaymentResponse
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &response, nil
}

// ReadPaymentRequirements is a helper to extract payment requirements from a 402 response
func ReadPaymentRequirements(resp *http.Response) (*PaymentRequiredResponse, error) {
	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("expected status 402, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var paymentReq PaymentRequiredResponse
	if err := json.Unmarshal(body, &paymentReq); err != nil {
		return nil, fmt.Errorf("failed to parse payment requirements: %w", err)
	}

	return &paymentReq, nil
}
