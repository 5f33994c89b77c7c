package x402

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MatchRequirement selects the first requirement the payload satisfies.
// The second return value is false when nothing matches.
func MatchRequirement(p *PaymentPayload, requirements []PaymentRequirements) (*PaymentRequirements, bool) {
	if p == nil {
		return nil, false
	}

	var pred func(req *PaymentRequirements) bool
	switch p.Scheme {
	case SchemeNative:
		pred = func(req *PaymentRequirements) bool {
			return SameAddress(req.PayTo, p.Native.To)
		}
	case SchemeEIP2612:
		pred = func(req *PaymentRequirements) bool {
			return SameAddress(req.PayTo, p.EIP2612.Transfer.To)
		}
	case SchemeERC3009:
		pred = func(req *PaymentRequirements) bool {
			return matchExact(p.ERC3009, req)
		}
	default:
		return nil, false
	}

	for i := range requirements {
		if pred(&requirements[i]) {
			return &requirements[i], true
		}
	}
	return nil, false
}

// matchExact is the generic x402 matcher: scheme and network must agree and
// the authorization must pay the advertised recipient.
func matchExact(p *ExactPayment, req *PaymentRequirements) bool {
	if p.Scheme != req.Scheme || p.Network != req.Network {
		return false
	}
	if to := p.Payload.Authorization.To; to != "" && !SameAddress(to, req.PayTo) {
		return false
	}
	return true
}

// SameAddress compares two addresses case-insensitively. Hex addresses are
// compared by value so checksummed and lowercase forms are equal.
func SameAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if common.IsHexAddress(a) && common.IsHexAddress(b) {
		return common.HexToAddress(a) == common.HexToAddress(b)
	}
	return strings.EqualFold(a, b)
}
