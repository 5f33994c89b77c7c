package x402

import (
	"context"
	"encoding/json"
	"time"
)

// X402Version is the protocol version advertised and sent to the facilitator.
const X402Version = 1

// PaymentScheme identifies how a payment proof is settled.
type PaymentScheme string

const (
	// SchemeERC3009 is a token transfer-with-authorization (USDC style).
	SchemeERC3009 PaymentScheme = "erc3009"

	// SchemeEIP2612 is a token permit followed by a transfer.
	SchemeEIP2612 PaymentScheme = "eip2612"

	// SchemeNative is a direct native-asset transfer (ETH, AVAX, ...).
	SchemeNative PaymentScheme = "native"
)

// Wire scheme tags used in requirements and facilitator envelopes.
const (
	WireSchemeExact  = "exact"
	WireSchemeNative = "native"
)

// PaymentRequirements describes what payment is required for a resource
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description"`
	MimeType          string                 `json:"mimeType"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
	OutputSchema      map[string]interface{} `json:"outputSchema,omitempty"`
}

// PaymentRequiredResponse is the response body when returning 402
type PaymentRequiredResponse struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error"`
}

// ExactPayment is the generic x402 payment used by the ERC-3009 scheme.
type ExactPayment struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Payload     ExactPayload `json:"payload"`

	// Raw is the payload object exactly as the client sent it; it is forwarded
	// to the facilitator untouched.
	Raw json.RawMessage `json:"-"`
}

// ExactPayload carries the signed EIP-3009 authorization.
type ExactPayload struct {
	Signature     string        `json:"signature"`
	Authorization Authorization `json:"authorization"`
}

// Authorization contains the EIP-3009 authorization parameters
type Authorization struct {
	From        string      `json:"from"`
	To          string      `json:"to"`
	Value       string      `json:"value"`
	ValidAfter  json.Number `json:"validAfter"`
	ValidBefore json.Number `json:"validBefore"`
	Nonce       string      `json:"nonce"`
}

// EIP2612Payload is a signed permit plus the transfer it authorizes.
type EIP2612Payload struct {
	Permit   EIP2612Permit   `json:"permit"`
	Transfer EIP2612Transfer `json:"transfer"`
}

// EIP2612Permit holds the ERC-20 permit parameters and signature.
type EIP2612Permit struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Value     string `json:"value"`
	Nonce     int64  `json:"nonce"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature"`
}

// EIP2612Transfer is the transfer executed once the permit is applied.
type EIP2612Transfer struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// NativePayload references a native-asset transfer already broadcast by the payer.
type NativePayload struct {
	TxHash    string `json:"txHash"`
	From      string `json:"from"`
	To        string `json:"to"`
	AmountWei string `json:"amountWei"`
}

// PaymentPayload is a decoded X-PAYMENT header. Exactly one variant is set,
// selected by Scheme.
type PaymentPayload struct {
	Scheme PaymentScheme

	// X402Version as sent by the client (defaults to X402Version when absent)
	X402Version int

	ERC3009 *ExactPayment
	EIP2612 *EIP2612Payload
	Native  *NativePayload
}

// Payer returns the address paying for the resource.
func (p *PaymentPayload) Payer() string {
	switch p.Scheme {
	case SchemeNative:
		return p.Native.From
	case SchemeEIP2612:
		return p.EIP2612.Transfer.From
	default:
		return p.ERC3009.Payload.Authorization.From
	}
}

// Recipient returns the address the payer claims to pay.
func (p *PaymentPayload) Recipient() string {
	switch p.Scheme {
	case SchemeNative:
		return p.Native.To
	case SchemeEIP2612:
		return p.EIP2612.Transfer.To
	default:
		return p.ERC3009.Payload.Authorization.To
	}
}

// Amount returns the atomic amount carried by the payload.
func (p *PaymentPayload) Amount() string {
	switch p.Scheme {
	case SchemeNative:
		return p.Native.AmountWei
	case SchemeEIP2612:
		return p.EIP2612.Transfer.Amount
	default:
		return p.ERC3009.Payload.Authorization.Value
	}
}

// Network returns the network named in the payload. Only the ERC-3009 shape
// carries one; the other variants return "".
func (p *PaymentPayload) Network() string {
	if p.Scheme == SchemeERC3009 && p.ERC3009 != nil {
		return p.ERC3009.Network
	}
	return ""
}

// VerifyOutcome is the normalized result of a facilitator verify call.
type VerifyOutcome struct {
	IsValid       bool
	InvalidReason string
	Payer         string

	// Err is set when the facilitator could not be reached or gave an
	// unusable answer
	Err error
}

// SettleOutcome is the normalized result of a facilitator settle call.
type SettleOutcome struct {
	Success         bool
	TransactionHash string
	Network         string
	ErrorReason     string
	Payer           string

	// Err is set when the facilitator could not be reached or gave an
	// unusable answer
	Err error
}

// Facilitator verifies and settles payments on behalf of the service.
// Implementations never return transport failures; they fold them into the outcome.
type Facilitator interface {
	// Verify checks a payment against its requirement without settling it
	Verify(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) VerifyOutcome

	// Settle executes a verified payment
	Settle(ctx context.Context, payload *PaymentPayload, requirements *PaymentRequirements) SettleOutcome
}

// PaymentResponse is sent in the X-PAYMENT-RESPONSE header
type PaymentResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// PaymentContext contains payment information that can be extracted in handlers
type PaymentContext struct {
	Verified        bool
	Scheme          PaymentScheme
	PayerAddress    string
	Amount          string
	Network         string
	TransactionHash string
	TransactionLink string
	SettledAt       time.Time
}

type contextKey string

const (
	// PaymentContextKey is the key used to store payment context in request context
	PaymentContextKey contextKey = "x402-payment"
)
