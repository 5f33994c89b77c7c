package x402

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRequirement(t *testing.T) {
	exact := PaymentRequirements{Scheme: "exact", Network: "base-sepolia", PayTo: testPayTo}
	native := PaymentRequirements{Scheme: "native", Network: "base-sepolia", PayTo: testPayTo}
	other := PaymentRequirements{Scheme: "exact", Network: "base-sepolia", PayTo: "0x0000000000000000000000000000000000000001"}

	tests := []struct {
		name    string
		doc     map[string]interface{}
		reqs    []PaymentRequirements
		wantIdx int
	}{
		{name: "native lowercase recipient", doc: nativePaymentJSON(strings.ToLower(testPayTo)), reqs: []PaymentRequirements{native}, wantIdx: 0},
		{name: "native uppercase recipient", doc: nativePaymentJSON("0x" + strings.ToUpper(testPayTo[2:])), reqs: []PaymentRequirements{native}, wantIdx: 0},
		{name: "native wrong recipient", doc: nativePaymentJSON(other.PayTo), reqs: []PaymentRequirements{native}, wantIdx: -1},
		{name: "eip2612 transfer recipient", doc: eip2612PaymentJSON(strings.ToLower(testPayTo)), reqs: []PaymentRequirements{other, exact}, wantIdx: 1},
		{name: "exact scheme and network", doc: exactPaymentJSON(testPayTo), reqs: []PaymentRequirements{native, exact}, wantIdx: 1},
		{name: "exact wrong recipient", doc: exactPaymentJSON(testPayTo), reqs: []PaymentRequirements{other}, wantIdx: -1},
		{name: "first match wins", doc: exactPaymentJSON(testPayTo), reqs: []PaymentRequirements{exact, exact}, wantIdx: 0},
		{name: "empty list", doc: exactPaymentJSON(testPayTo), reqs: nil, wantIdx: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DecodePayment(encodeJSON(t, tt.doc))
			require.NoError(t, err)

			got, ok := MatchRequirement(p, tt.reqs)
			if tt.wantIdx < 0 {
				assert.False(t, ok)
				assert.Nil(t, got)
				return
			}
			require.True(t, ok)
			assert.Same(t, &tt.reqs[tt.wantIdx], got)
		})
	}
}

func TestMatchRequirement_ExactNetworkMismatch(t *testing.T) {
	p, err := DecodePayment(encodeJSON(t, exactPaymentJSON(testPayTo)))
	require.NoError(t, err)

	_, ok := MatchRequirement(p, []PaymentRequirements{{Scheme: "exact", Network: "base", PayTo: testPayTo}})
	assert.False(t, ok)
}

func TestMatchRequirement_Nil(t *testing.T) {
	_, ok := MatchRequirement(nil, []PaymentRequirements{{Scheme: "exact"}})
	assert.False(t, ok)
}

func TestSameAddress(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{testPayTo, strings.ToLower(testPayTo), true},
		{" " + testPayTo + " ", testPayTo, true},
		{testPayTo, testPayer, false},
		{"alice", "ALICE", true},
		{"alice", "bob", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SameAddress(tt.a, tt.b), "SameAddress(%q, %q)", tt.a, tt.b)
	}
}
