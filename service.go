package x402

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/becomeliminal/x402-paywall/facilitator"
	"github.com/becomeliminal/x402-paywall/internal/logger"
	"github.com/becomeliminal/x402-paywall/paywall"

	"github.com/google/uuid"
)

// Service negotiates x402 payments for one priced resource. Requirements are
// built once at construction; per-request state lives in a Negotiation.
type Service struct {
	cfg          Config
	requirements []PaymentRequirements
	facilitator  Facilitator
	composer     *Composer
	log          *logger.Logger
	now          func() time.Time
}

type serviceOptions struct {
	facilitator Facilitator
	clientOpts  []facilitator.Option
	renderer    paywall.Renderer
	log         *logger.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

// WithFacilitator replaces the HTTP facilitator dispatcher.
func WithFacilitator(f Facilitator) Option {
	return func(o *serviceOptions) { o.facilitator = f }
}

// WithFacilitatorOptions configures the default facilitator client.
func WithFacilitatorOptions(opts ...facilitator.Option) Option {
	return func(o *serviceOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithHeaderProvider adds custom headers to facilitator calls.
func WithHeaderProvider(p facilitator.HeaderProvider) Option {
	return WithFacilitatorOptions(facilitator.WithHeaderProvider(p))
}

// WithRenderer replaces the browser paywall renderer.
func WithRenderer(r paywall.Renderer) Option {
	return func(o *serviceOptions) { o.renderer = r }
}

// WithLogger sets the service logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *serviceOptions) { o.log = l }
}

// NewService validates cfg and builds the payment requirements. An invalid
// configuration returns a *ConfigurationError.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Named("x402")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	requirements, err := BuildRequirements(cfg)
	if err != nil {
		return nil, err
	}

	f := o.facilitator
	if f == nil {
		f = NewDispatcher(facilitator.NewClient(cfg.FacilitatorURL, o.clientOpts...))
	}

	o.log.Info().
		Str("network", cfg.Network).
		Str("pay_to", cfg.PayTo).
		Str("price", cfg.Price).
		Str("asset", requirements[0].Asset).
		Str("amount", requirements[0].MaxAmountRequired).
		Msg("payment service configured")

	return &Service{
		cfg:          cfg,
		requirements: requirements,
		facilitator:  f,
		composer:     NewComposer(cfg, o.renderer, o.log),
		log:          o.log,
		now:          time.Now,
	}, nil
}

// Config returns the validated configuration.
func (s *Service) Config() Config { return s.cfg }

// Requirements returns a copy of the advertised payment requirements.
func (s *Service) Requirements() []PaymentRequirements {
	out := make([]PaymentRequirements, len(s.requirements))
	copy(out, s.requirements)
	return out
}

// Negotiation is the per-request state of one payment attempt.
type Negotiation struct {
	// OrderID correlates the log lines of one attempt
	OrderID     string
	Payment     *PaymentPayload
	Requirement *PaymentRequirements
}

// Negotiate decodes the X-PAYMENT header and selects the requirement it pays.
func (s *Service) Negotiate(h http.Header) (*Negotiation, error) {
	return s.NegotiatePayment(h.Get(HeaderPayment))
}

// NegotiatePayment is Negotiate for a raw header value, e.g. from gRPC metadata.
// Failures are *PaymentError values whose Message is the caller-facing error.
func (s *Service) NegotiatePayment(header string) (*Negotiation, error) {
	orderID := uuid.NewString()
	log := s.log.With().Str("order_id", orderID).Logger()

	log.Info().Str("header", header).Msg("received X-PAYMENT header")

	payment, err := DecodePayment(header)
	if err != nil {
		log.Error().Err(err).Msg("failed to decode payment header")
		return nil, err
	}
	log.Info().
		Str("scheme", string(payment.Scheme)).
		Str("payer", payment.Payer()).
		Str("to", payment.Recipient()).
		Msg("decoded payment payload")

	req, ok := MatchRequirement(payment, s.requirements)
	if !ok {
		log.Error().Str("scheme", string(payment.Scheme)).Msg("no matching payment requirements found")
		return nil, NewPaymentError(ErrCodeNoMatch, "No matching payment requirements found", nil)
	}

	return &Negotiation{OrderID: orderID, Payment: payment, Requirement: req}, nil
}

// Verify asks the facilitator to check the negotiated payment. When the
// payment is not valid the second value is the caller-facing error.
func (s *Service) Verify(ctx context.Context, n *Negotiation) (VerifyOutcome, string) {
	log := logger.C(logger.WithOrder(ctx, n.OrderID), s.log)

	outcome := s.facilitator.Verify(ctx, n.Payment, n.Requirement)
	if outcome.IsValid {
		log.Info().Str("payer", outcome.Payer).Msg("payment verified successfully")
		return outcome, ""
	}

	reason := outcome.InvalidReason
	if reason == "" {
		reason = "Unknown error"
	}
	log.Error().Err(outcome.Err).Str("reason", reason).Msg("payment verification failed")
	return outcome, fmt.Sprintf("Payment verification failed: %s", reason)
}

// Settle asks the facilitator to execute the negotiated payment. When it does
// not succeed the second value is the caller-facing error.
func (s *Service) Settle(ctx context.Context, n *Negotiation) (SettleOutcome, string) {
	log := logger.C(logger.WithOrder(ctx, n.OrderID), s.log)

	outcome := s.facilitator.Settle(ctx, n.Payment, n.Requirement)
	switch {
	case outcome.Err != nil:
		log.Error().Err(outcome.Err).Msg("payment settlement failed")
		return outcome, fmt.Sprintf("Payment settlement failed: %v", outcome.Err)
	case !outcome.Success:
		reason := outcome.ErrorReason
		if reason == "" {
			reason = "Unknown error"
		}
		log.Error().Str("reason", reason).Msg("payment settlement not success")
		return outcome, fmt.Sprintf("Payment settlement not success: %s", reason)
	}

	log.Info().
		Str("transaction", outcome.TransactionHash).
		Str("network", outcome.Network).
		Msg("payment settled successfully")
	return outcome, ""
}

// Respond composes the payment-required response for the caller identified
// by h. It returns the body, content type and status code.
func (s *Service) Respond(h http.Header, errMsg string) ([]byte, string, int) {
	return s.composer.Compose(s.requirements, errMsg, paywall.IsBrowserRequest(h))
}

// PaymentRequired returns the machine-readable payment-required body.
func (s *Service) PaymentRequired(errMsg string) PaymentRequiredResponse {
	return PaymentRequiredResponse{
		X402Version: X402Version,
		Accepts:     s.Requirements(),
		Error:       errMsg,
	}
}

// PaymentContext describes a verified negotiation for downstream handlers.
// Settlement fields are filled in by RecordSettlement.
func (s *Service) PaymentContext(n *Negotiation, verified VerifyOutcome) *PaymentContext {
	payer := verified.Payer
	if payer == "" {
		payer = n.Payment.Payer()
	}
	return &PaymentContext{
		Verified:     true,
		Scheme:       n.Payment.Scheme,
		PayerAddress: payer,
		Amount:       n.Requirement.MaxAmountRequired,
		Network:      n.Requirement.Network,
	}
}

// RecordSettlement copies a successful settlement into pc.
func (s *Service) RecordSettlement(pc *PaymentContext, settled SettleOutcome) {
	if settled.Network != "" {
		pc.Network = settled.Network
	}
	if settled.Payer != "" {
		pc.PayerAddress = settled.Payer
	}
	pc.TransactionHash = settled.TransactionHash
	pc.TransactionLink = TransactionLink(settled.TransactionHash, pc.Network)
	pc.SettledAt = s.now()
}

// PaymentResponse builds the X-PAYMENT-RESPONSE body for a settlement.
func (s *Service) PaymentResponse(settled SettleOutcome) PaymentResponse {
	return PaymentResponse{
		Success:     settled.Success,
		Transaction: settled.TransactionHash,
		Network:     settled.Network,
		Payer:       settled.Payer,
	}
}

// ErrNoSupportedKinds is returned by Supported when the facilitator cannot
// report its payment kinds.
var ErrNoSupportedKinds = errors.New("facilitator does not report supported kinds")

// Supported asks the facilitator which payment kinds it handles. Useful as a
// startup diagnostic.
func (s *Service) Supported(ctx context.Context) ([]facilitator.SupportedKind, error) {
	sf, ok := s.facilitator.(interface {
		Supported(ctx context.Context) ([]facilitator.SupportedKind, error)
	})
	if !ok {
		return nil, ErrNoSupportedKinds
	}
	return sf.Supported(ctx)
}
