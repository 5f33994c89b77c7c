package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// HeaderPayment is the request header carrying the payment proof.
const HeaderPayment = "X-PAYMENT"

// HeaderPaymentResponse is the response header carrying the settlement result.
const HeaderPaymentResponse = "X-PAYMENT-RESPONSE"

// rawPayment is the envelope every payment header shares.
type rawPayment struct {
	X402Version *int            `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`

	// fields is Payload split into its keys; nil when Payload is not an object
	fields map[string]json.RawMessage
}

// classifier recognizes one payload shape and parses it.
type classifier struct {
	scheme  PaymentScheme
	matches func(raw *rawPayment) bool
	parse   func(raw *rawPayment) (*PaymentPayload, error)
}

// classifiers are evaluated in order; the first match wins. Shapes can
// overlap, so the order is the priority.
var classifiers = []classifier{
	{
		scheme:  SchemeNative,
		matches: func(raw *rawPayment) bool { return raw.Scheme == WireSchemeNative },
		parse:   parseNative,
	},
	{
		scheme: SchemeEIP2612,
		matches: func(raw *rawPayment) bool {
			_, hasPermit := raw.fields["permit"]
			_, hasTransfer := raw.fields["transfer"]
			return hasPermit && hasTransfer
		},
		parse: parseEIP2612,
	},
	{
		scheme:  SchemeERC3009,
		matches: func(*rawPayment) bool { return true },
		parse:   parseERC3009,
	},
}

// DecodePayment decodes an X-PAYMENT header value into a typed payload.
// Failures are *PaymentError values with a caller-facing message.
func DecodePayment(header string) (*PaymentPayload, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, NewPaymentError(ErrCodeMissingPayment, "No X-PAYMENT header provided", nil)
	}

	decoded, err := decodeBase64(header)
	if err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment,
			fmt.Sprintf("Invalid payment header format: %v", err), err)
	}

	var raw rawPayment
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil, NewPaymentError(ErrCodeMalformedPayment,
			fmt.Sprintf("Invalid payment header format: %v", err), err)
	}

	if len(raw.Payload) > 0 {
		// a non-object payload leaves fields nil and fails in the variant parser
		_ = json.Unmarshal(raw.Payload, &raw.fields)
	}

	for _, c := range classifiers {
		if !c.matches(&raw) {
			continue
		}
		payment, err := c.parse(&raw)
		if err != nil {
			return nil, err
		}
		payment.Scheme = c.scheme
		payment.X402Version = X402Version
		if raw.X402Version != nil {
			payment.X402Version = *raw.X402Version
		}
		return payment, nil
	}

	// unreachable: the last classifier accepts everything
	return nil, NewPaymentError(ErrCodeInvalidVariant, "Invalid payment payload", nil)
}

// decodeBase64 accepts standard and URL-safe alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var firstErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("failed to decode base64: %w", firstErr)
}

func parseNative(raw *rawPayment) (*PaymentPayload, error) {
	invalid := func(cause error) error {
		return NewPaymentError(ErrCodeInvalidVariant, "Invalid native token payment payload", cause)
	}
	if raw.fields == nil {
		return nil, invalid(fmt.Errorf("payload object is required"))
	}

	var native NativePayload
	if err := json.Unmarshal(raw.Payload, &native); err != nil {
		return nil, invalid(err)
	}
	if err := requireFields(map[string]string{
		"txHash":    native.TxHash,
		"from":      native.From,
		"to":        native.To,
		"amountWei": native.AmountWei,
	}); err != nil {
		return nil, invalid(err)
	}

	return &PaymentPayload{Native: &native}, nil
}

func parseEIP2612(raw *rawPayment) (*PaymentPayload, error) {
	invalid := func(cause error) error {
		return NewPaymentError(ErrCodeInvalidVariant, "Invalid EIP-2612 payment payload", cause)
	}

	var p EIP2612Payload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, invalid(err)
	}
	if err := requireFields(map[string]string{
		"permit.owner":     p.Permit.Owner,
		"permit.spender":   p.Permit.Spender,
		"permit.value":     p.Permit.Value,
		"permit.deadline":  p.Permit.Deadline,
		"permit.signature": p.Permit.Signature,
		"transfer.from":    p.Transfer.From,
		"transfer.to":      p.Transfer.To,
		"transfer.amount":  p.Transfer.Amount,
	}); err != nil {
		return nil, invalid(err)
	}

	// nonce is an integer and has no zero-value sentinel, so check presence
	var permitKeys map[string]json.RawMessage
	if err := json.Unmarshal(raw.fields["permit"], &permitKeys); err != nil {
		return nil, invalid(err)
	}
	if _, ok := permitKeys["nonce"]; !ok {
		return nil, invalid(fmt.Errorf("permit.nonce is required"))
	}

	return &PaymentPayload{EIP2612: &p}, nil
}

func parseERC3009(raw *rawPayment) (*PaymentPayload, error) {
	invalid := func(cause error) error {
		return NewPaymentError(ErrCodeInvalidVariant,
			fmt.Sprintf("Invalid payment payload: %v", cause), cause)
	}

	if raw.X402Version == nil {
		return nil, invalid(fmt.Errorf("x402Version is required"))
	}
	if raw.Network == "" {
		return nil, invalid(fmt.Errorf("network is required"))
	}
	if raw.fields == nil {
		return nil, invalid(fmt.Errorf("payload is required"))
	}

	var payload ExactPayload
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		return nil, invalid(err)
	}
	auth := payload.Authorization
	if err := requireFields(map[string]string{
		"signature":           payload.Signature,
		"authorization.from":  auth.From,
		"authorization.to":    auth.To,
		"authorization.value": auth.Value,
		"authorization.nonce": auth.Nonce,
	}); err != nil {
		return nil, invalid(err)
	}

	scheme := raw.Scheme
	if scheme == "" {
		scheme = WireSchemeExact
	}

	return &PaymentPayload{ERC3009: &ExactPayment{
		X402Version: *raw.X402Version,
		Scheme:      scheme,
		Network:     raw.Network,
		Payload:     payload,
		Raw:         raw.Payload,
	}}, nil
}

// requireFields reports the first empty field in sorted key order.
func requireFields(fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(fields[k]) == "" {
			return fmt.Errorf("%s is required", k)
		}
	}
	return nil
}

// EncodePayment encodes a payload into X-PAYMENT header format (base64 JSON).
// Useful for testing and client implementations
func EncodePayment(p *PaymentPayload) (string, error) {
	wire, err := paymentWire(p)
	if err != nil {
		return "", err
	}
	paymentJSON, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

func paymentWire(p *PaymentPayload) (interface{}, error) {
	version := p.X402Version
	if version == 0 {
		version = X402Version
	}
	switch p.Scheme {
	case SchemeNative:
		if p.Native == nil {
			return nil, fmt.Errorf("native payload is required")
		}
		return map[string]interface{}{
			"x402Version": version,
			"scheme":      WireSchemeNative,
			"payload":     p.Native,
		}, nil
	case SchemeEIP2612:
		if p.EIP2612 == nil {
			return nil, fmt.Errorf("eip2612 payload is required")
		}
		return map[string]interface{}{
			"x402Version": version,
			"scheme":      WireSchemeExact,
			"payload":     p.EIP2612,
		}, nil
	case SchemeERC3009:
		if p.ERC3009 == nil {
			return nil, fmt.Errorf("erc3009 payload is required")
		}
		return p.ERC3009, nil
	default:
		return nil, fmt.Errorf("unknown payment scheme %q", p.Scheme)
	}
}
