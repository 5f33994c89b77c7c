package facilitator

// PaymentPayload is the paymentPayload member of a verify/settle envelope.
type PaymentPayload struct {
	X402Version int         `json:"x402Version"`
	Scheme      string      `json:"scheme"`
	Network     string      `json:"network"`
	Payload     interface{} `json:"payload"`
}

// Request is the body of POST /verify and POST /settle.
type Request struct {
	X402Version         int            `json:"x402Version"`
	PaymentPayload      PaymentPayload `json:"paymentPayload"`
	PaymentRequirements interface{}    `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's answer to /verify.
// IsValid is a pointer so an absent field can be told apart from false.
type VerifyResponse struct {
	IsValid       *bool  `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to /settle.
type SettleResponse struct {
	Success     *bool  `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// Valid reports whether the facilitator accepted the payment.
func (r *VerifyResponse) Valid() bool {
	return r != nil && r.IsValid != nil && *r.IsValid
}

// Succeeded reports whether the facilitator settled the payment.
func (r *SettleResponse) Succeeded() bool {
	return r != nil && r.Success != nil && *r.Success
}

// SupportedKind is a scheme+network pair the facilitator handles.
type SupportedKind struct {
	X402Version int    `json:"x402Version"`
	Scheme      string `json:"scheme"`
	Network     string `json:"network"`
}

// SupportedResponse is the response from GET /supported.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// CallHeaders are extra headers sent with verify and settle calls.
type CallHeaders struct {
	Verify map[string]string
	Settle map[string]string
}
