package x402

import (
	"context"
	"fmt"

	"github.com/becomeliminal/x402-paywall/facilitator"
)

// schemeAdapter turns a typed payload into the facilitator envelope for one
// scheme. Adapters differ only in the scheme tag and the payload encoding.
type schemeAdapter func(p *PaymentPayload, req *PaymentRequirements) (facilitator.PaymentPayload, error)

var schemeAdapters = map[PaymentScheme]schemeAdapter{
	SchemeERC3009: erc3009Envelope,
	SchemeEIP2612: eip2612Envelope,
	SchemeNative:  nativeEnvelope,
}

func erc3009Envelope(p *PaymentPayload, _ *PaymentRequirements) (facilitator.PaymentPayload, error) {
	if p.ERC3009 == nil {
		return facilitator.PaymentPayload{}, fmt.Errorf("erc3009 payload is missing")
	}
	var payload interface{} = p.ERC3009.Payload
	if len(p.ERC3009.Raw) > 0 {
		payload = p.ERC3009.Raw
	}
	return facilitator.PaymentPayload{
		X402Version: p.ERC3009.X402Version,
		Scheme:      p.ERC3009.Scheme,
		Network:     p.ERC3009.Network,
		Payload:     payload,
	}, nil
}

func eip2612Envelope(p *PaymentPayload, req *PaymentRequirements) (facilitator.PaymentPayload, error) {
	if p.EIP2612 == nil {
		return facilitator.PaymentPayload{}, fmt.Errorf("eip2612 payload is missing")
	}
	return facilitator.PaymentPayload{
		X402Version: X402Version,
		Scheme:      WireSchemeExact,
		Network:     req.Network,
		Payload:     p.EIP2612,
	}, nil
}

func nativeEnvelope(p *PaymentPayload, req *PaymentRequirements) (facilitator.PaymentPayload, error) {
	if p.Native == nil {
		return facilitator.PaymentPayload{}, fmt.Errorf("native payload is missing")
	}
	return facilitator.PaymentPayload{
		X402Version: X402Version,
		Scheme:      WireSchemeNative,
		Network:     req.Network,
		Payload:     p.Native,
	}, nil
}

// Dispatcher routes verify and settle calls to the facilitator through the
// adapter for the payload's scheme. It implements Facilitator.
type Dispatcher struct {
	client *facilitator.Client
}

// NewDispatcher creates a dispatcher over a facilitator client.
func NewDispatcher(client *facilitator.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) envelope(p *PaymentPayload, req *PaymentRequirements) (*facilitator.Request, error) {
	if p == nil || req == nil {
		return nil, fmt.Errorf("payment and requirements are required")
	}
	adapt, ok := schemeAdapters[p.Scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported payment scheme %q", p.Scheme)
	}
	payload, err := adapt(p, req)
	if err != nil {
		return nil, err
	}
	return &facilitator.Request{
		X402Version:         payload.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: req,
	}, nil
}

// Verify checks a payment against its requirement. Transport and protocol
// failures come back as an invalid outcome with Err set.
func (d *Dispatcher) Verify(ctx context.Context, p *PaymentPayload, req *PaymentRequirements) VerifyOutcome {
	envelope, err := d.envelope(p, req)
	if err != nil {
		return VerifyOutcome{InvalidReason: err.Error(), Err: err}
	}

	resp, err := d.client.Verify(ctx, envelope)
	if err != nil {
		return VerifyOutcome{InvalidReason: err.Error(), Err: err}
	}

	payer := resp.Payer
	if payer == "" {
		payer = p.Payer()
	}
	return VerifyOutcome{
		IsValid:       resp.Valid(),
		InvalidReason: resp.InvalidReason,
		Payer:         payer,
	}
}

// Settle executes a verified payment. For native payments the transaction is
// already on chain, so the payload's hash stands in when the facilitator
// does not echo one.
func (d *Dispatcher) Settle(ctx context.Context, p *PaymentPayload, req *PaymentRequirements) SettleOutcome {
	envelope, err := d.envelope(p, req)
	if err != nil {
		return SettleOutcome{ErrorReason: err.Error(), Err: err}
	}

	resp, err := d.client.Settle(ctx, envelope)
	if err != nil {
		return SettleOutcome{ErrorReason: err.Error(), Err: err}
	}

	out := SettleOutcome{
		Success:         resp.Succeeded(),
		TransactionHash: resp.Transaction,
		Network:         resp.Network,
		ErrorReason:     resp.ErrorReason,
		Payer:           resp.Payer,
	}
	if out.TransactionHash == "" && p.Scheme == SchemeNative {
		out.TransactionHash = p.Native.TxHash
	}
	if out.Network == "" {
		out.Network = req.Network
	}
	if out.Payer == "" {
		out.Payer = p.Payer()
	}
	return out
}

// Supported lists the payment kinds the facilitator handles.
func (d *Dispatcher) Supported(ctx context.Context) ([]facilitator.SupportedKind, error) {
	resp, err := d.client.Supported(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Kinds, nil
}
