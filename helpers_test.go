package x402

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/becomeliminal/x402-paywall/internal/logger"

	"github.com/stretchr/testify/require"
)

const (
	testPayTo = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	testPayer = "0x857b06519E91e3A54538791bDbb0E22373e36b66"
)

func testConfig() Config {
	return Config{
		AppName:        "Jokes",
		ResourceURL:    "https://api.example.com/joke",
		Price:          "0.01",
		Description:    "A premium joke",
		Network:        "base-sepolia",
		PayTo:          testPayTo,
		FacilitatorURL: "https://facilitator.example.com",
		SkipPaths:      []string{"/health", "/public/*"},
	}
}

// MockFacilitator is a Facilitator whose behavior tests override
type MockFacilitator struct {
	VerifyFunc func(ctx context.Context, p *PaymentPayload, req *PaymentRequirements) VerifyOutcome
	SettleFunc func(ctx context.Context, p *PaymentPayload, req *PaymentRequirements) SettleOutcome

	VerifyCalls int
	SettleCalls int
}

func (m *MockFacilitator) Verify(ctx context.Context, p *PaymentPayload, req *PaymentRequirements) VerifyOutcome {
	m.VerifyCalls++
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, p, req)
	}
	return VerifyOutcome{IsValid: true, Payer: p.Payer()}
}

func (m *MockFacilitator) Settle(ctx context.Context, p *PaymentPayload, req *PaymentRequirements) SettleOutcome {
	m.SettleCalls++
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, p, req)
	}
	return SettleOutcome{Success: true, TransactionHash: "0xtxhash", Network: req.Network, Payer: p.Payer()}
}

func newTestService(t *testing.T, cfg Config, f Facilitator, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithFacilitator(f), WithLogger(logger.Nop())}, opts...)
	svc, err := NewService(cfg, opts...)
	require.NoError(t, err)
	return svc
}

// encodeJSON base64-encodes an arbitrary JSON document as a payment header
func encodeJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(b)
}

func exactPaymentJSON(to string) map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"scheme":      "exact",
		"network":     "base-sepolia",
		"payload": map[string]interface{}{
			"signature": "0x2d6a7588d6acca505cbf0d9a4a227e0c52c6c34008c8e8986a1283259764173608a2ce6496642e377d6da8dbbf5836e9bd15092f9ecab05ded3d6293af148b571c",
			"authorization": map[string]interface{}{
				"from":        testPayer,
				"to":          to,
				"value":       "10000",
				"validAfter":  "1740672089",
				"validBefore": "1740672154",
				"nonce":       "0xf3746613c2d920b5fdabc0856f2aeb2d4f88ee6037b8cc5d04a71a4462f13480",
			},
		},
	}
}

func nativePaymentJSON(to string) map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"scheme":      "native",
		"payload": map[string]interface{}{
			"txHash":    "0xdeadbeef",
			"from":      testPayer,
			"to":        to,
			"amountWei": "10000000000000000",
		},
	}
}

func eip2612PaymentJSON(to string) map[string]interface{} {
	return map[string]interface{}{
		"x402Version": 1,
		"scheme":      "exact",
		"payload": map[string]interface{}{
			"permit": map[string]interface{}{
				"owner":     testPayer,
				"spender":   to,
				"value":     "10000",
				"nonce":     0,
				"deadline":  "1740672154",
				"signature": "0xabc",
			},
			"transfer": map[string]interface{}{
				"from":   testPayer,
				"to":     to,
				"amount": "10000",
			},
		},
	}
}
