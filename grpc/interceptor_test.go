package grpc

import (
	"context"
	"errors"
	"testing"

	x402 "github.com/becomeliminal/x402-paywall"
	"github.com/becomeliminal/x402-paywall/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const payTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"

// mockFacilitator is a Facilitator with overridable behavior
type mockFacilitator struct {
	verifyFunc func(p *x402.PaymentPayload) x402.VerifyOutcome
	settleFunc func(p *x402.PaymentPayload) x402.SettleOutcome
	settled    int
}

func (m *mockFacilitator) Verify(_ context.Context, p *x402.PaymentPayload, _ *x402.PaymentRequirements) x402.VerifyOutcome {
	if m.verifyFunc != nil {
		return m.verifyFunc(p)
	}
	return x402.VerifyOutcome{IsValid: true, Payer: p.Payer()}
}

func (m *mockFacilitator) Settle(_ context.Context, p *x402.PaymentPayload, req *x402.PaymentRequirements) x402.SettleOutcome {
	m.settled++
	if m.settleFunc != nil {
		return m.settleFunc(p)
	}
	return x402.SettleOutcome{Success: true, TransactionHash: p.Native.TxHash, Network: req.Network}
}

func newService(t *testing.T, f x402.Facilitator) *x402.Service {
	t.Helper()
	svc, err := x402.NewService(x402.Config{
		ResourceURL:    "grpc://jokes.v1.JokeService/GetJoke",
		Price:          "0.001",
		Network:        "base-sepolia",
		PayTo:          payTo,
		FacilitatorURL: "https://facilitator.example.com",
		NativeToken:    true,
		SkipPaths:      []string{"/grpc.health.v1.Health/*"},
	}, x402.WithFacilitator(f), x402.WithLogger(logger.Nop()))
	require.NoError(t, err)
	return svc
}

func nativePayment(t *testing.T) string {
	t.Helper()
	encoded, err := x402.EncodePayment(&x402.PaymentPayload{
		Scheme: x402.SchemeNative,
		Native: &x402.NativePayload{
			TxHash:    "0xdeadbeef",
			From:      "0x857b06519E91e3A54538791bDbb0E22373e36b66",
			To:        payTo,
			AmountWei: "1000000000000000",
		},
	})
	require.NoError(t, err)
	return encoded
}

func incoming(payment string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKeyPayment, payment))
}

func decodeStatus(t *testing.T, err error) *x402.PaymentRequiredResponse {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.ResourceExhausted, st.Code())
	body, decErr := DecodePaymentRequirements(st.Message())
	require.NoError(t, decErr)
	return body
}

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/jokes.v1.JokeService/GetJoke"}

func TestUnaryServerInterceptor_MissingPayment(t *testing.T) {
	f := &mockFacilitator{}
	interceptor := UnaryServerInterceptor(newService(t, f))

	called := false
	_, err := interceptor(context.Background(), nil, unaryInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		called = true
		return "joke", nil
	})

	body := decodeStatus(t, err)
	assert.False(t, called)
	assert.Equal(t, "No X-PAYMENT header provided", body.Error)
	require.Len(t, body.Accepts, 1)
	assert.Equal(t, "native", body.Accepts[0].Scheme)
	assert.Equal(t, "1000000000000000", body.Accepts[0].MaxAmountRequired)
}

func TestUnaryServerInterceptor_SkipPath(t *testing.T) {
	interceptor := UnaryServerInterceptor(newService(t, &mockFacilitator{}))

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestUnaryServerInterceptor_ValidPayment(t *testing.T) {
	f := &mockFacilitator{}
	interceptor := UnaryServerInterceptor(newService(t, f))

	var seen *x402.PaymentContext
	resp, err := interceptor(incoming(nativePayment(t)), nil, unaryInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		p, err := RequirePayment(ctx)
		if err != nil {
			return nil, err
		}
		seen = p
		return "joke", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "joke", resp)
	assert.Equal(t, 1, f.settled)
	require.NotNil(t, seen)
	assert.Equal(t, x402.SchemeNative, seen.Scheme)
	assert.Equal(t, "0x857b06519E91e3A54538791bDbb0E22373e36b66", seen.PayerAddress)
	assert.Equal(t, "0xdeadbeef", seen.TransactionHash)
	assert.Equal(t, "https://sepolia.basescan.org/tx/0xdeadbeef", seen.TransactionLink)
}

func TestUnaryServerInterceptor_VerifyRejected(t *testing.T) {
	f := &mockFacilitator{
		verifyFunc: func(*x402.PaymentPayload) x402.VerifyOutcome {
			return x402.VerifyOutcome{InvalidReason: "insufficient_funds"}
		},
	}
	interceptor := UnaryServerInterceptor(newService(t, f))

	_, err := interceptor(incoming(nativePayment(t)), nil, unaryInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})

	body := decodeStatus(t, err)
	assert.Equal(t, "Payment verification failed: insufficient_funds", body.Error)
	assert.Zero(t, f.settled)
}

func TestUnaryServerInterceptor_HandlerErrorSkipsSettlement(t *testing.T) {
	f := &mockFacilitator{}
	interceptor := UnaryServerInterceptor(newService(t, f))

	handlerErr := status.Error(codes.NotFound, "no joke")
	_, err := interceptor(incoming(nativePayment(t)), nil, unaryInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, handlerErr
	})

	assert.True(t, errors.Is(err, handlerErr))
	assert.Zero(t, f.settled)
}

func TestUnaryServerInterceptor_SettleFailure(t *testing.T) {
	f := &mockFacilitator{
		settleFunc: func(*x402.PaymentPayload) x402.SettleOutcome {
			return x402.SettleOutcome{ErrorReason: "tx_reverted"}
		},
	}
	interceptor := UnaryServerInterceptor(newService(t, f))

	_, err := interceptor(incoming(nativePayment(t)), nil, unaryInfo, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "joke", nil
	})

	body := decodeStatus(t, err)
	assert.Equal(t, "Payment settlement not success: tx_reverted", body.Error)
}

// fakeStream is a minimal grpc.ServerStream
type fakeStream struct {
	grpc.ServerStream
	ctx     context.Context
	trailer metadata.MD
}

func (s *fakeStream) Context() context.Context    { return s.ctx }
func (s *fakeStream) SetTrailer(md metadata.MD)   { s.trailer = metadata.Join(s.trailer, md) }
func (s *fakeStream) SendMsg(m interface{}) error { return nil }
func (s *fakeStream) RecvMsg(m interface{}) error { return nil }

func TestStreamServerInterceptor_ValidPayment(t *testing.T) {
	f := &mockFacilitator{}
	interceptor := StreamServerInterceptor(newService(t, f))
	stream := &fakeStream{ctx: incoming(nativePayment(t))}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: "/jokes.v1.JokeService/StreamJokes"},
		func(srv interface{}, ss grpc.ServerStream) error {
			_, err := RequirePayment(ss.Context())
			return err
		})

	require.NoError(t, err)
	assert.Equal(t, 1, f.settled)

	resp, err := ExtractPaymentResponseFromMetadata(stream.trailer)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "0xdeadbeef", resp.Transaction)
	assert.Equal(t, "base-sepolia", resp.Network)
}

func TestStreamServerInterceptor_MissingPayment(t *testing.T) {
	interceptor := StreamServerInterceptor(newService(t, &mockFacilitator{}))
	stream := &fakeStream{ctx: context.Background()}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: "/jokes.v1.JokeService/StreamJokes"},
		func(srv interface{}, ss grpc.ServerStream) error {
			t.Fatal("handler must not run")
			return nil
		})

	body := decodeStatus(t, err)
	assert.Equal(t, "No X-PAYMENT header provided", body.Error)
	assert.Empty(t, stream.trailer)
}

func TestRequirePayment_Missing(t *testing.T) {
	_, err := RequirePayment(context.Background())
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
