package x402

import (
	"sort"
	"strings"
)

// NativeTokenAddress is the ERC-7528 native asset address convention.
// https://eips.ethereum.org/EIPS/eip-7528
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// TokenInfo is a token deployment on one network. Name and Version are the
// EIP-712 domain fields.
type TokenInfo struct {
	Address  string
	Decimals int
	Name     string
	Version  string
}

// eip3009Tokens maps token key -> network -> deployment.
var eip3009Tokens = map[string]map[string]TokenInfo{
	"usdc": {
		"base": {
			Address:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
			Decimals: 6,
			Name:     "USDC",
			Version:  "2",
		},
		"base-sepolia": {
			Address:  "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
			Decimals: 6,
			Name:     "USDC",
			Version:  "2",
		},
	},
	"kii": {
		"base": {
			Address:  "0x0c59d37a843d2632AE93BA2eb4253e426CAC038C",
			Decimals: 6,
			Name:     "KII",
			Version:  "1",
		},
		"base-sepolia": {
			Address:  "0xb3f5d498D8Ef4E91d2c95AfDF711b66Cee6A49f3",
			Decimals: 6,
			Name:     "KII",
			Version:  "1",
		},
	},
}

// explorerTxURL maps network -> transaction URL prefix.
var explorerTxURL = map[string]string{
	"base-sepolia": "https://sepolia.basescan.org/tx/",
	"base":         "https://basescan.org/tx/",
}

// LookupEIP3009Token returns the deployment of a built-in ERC-3009 token.
// The token key is case-insensitive.
func LookupEIP3009Token(key, network string) (TokenInfo, bool) {
	networks, ok := eip3009Tokens[strings.ToLower(key)]
	if !ok {
		return TokenInfo{}, false
	}
	info, ok := networks[network]
	return info, ok
}

// SupportedEIP3009Tokens lists the built-in token keys in sorted order.
func SupportedEIP3009Tokens() []string {
	keys := make([]string, 0, len(eip3009Tokens))
	for k := range eip3009Tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// tokenNetworks lists the networks a token key is deployed on, sorted.
func tokenNetworks(key string) []string {
	networks := eip3009Tokens[strings.ToLower(key)]
	out := make([]string, 0, len(networks))
	for n := range networks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TransactionLink returns the block explorer URL for a transaction, or an
// empty string when the hash is empty or the network has no known explorer.
func TransactionLink(txHash, network string) string {
	if txHash == "" {
		return ""
	}
	prefix, ok := explorerTxURL[network]
	if !ok {
		return ""
	}
	return prefix + txHash
}
