package mailer

// Reason classifies why a send did or did not reach the transport. Reasons are
// internal diagnostics; the HTTP surface only exposes the boolean result.
type Reason string

const (
	ReasonSent           Reason = "sent"
	ReasonDisabled       Reason = "disabled"
	ReasonBounced        Reason = "bounced"
	ReasonNoAddress      Reason = "no_address"
	ReasonRenderError    Reason = "render_error"
	ReasonTransportError Reason = "transport_error"
	ReasonInternal       Reason = "internal"
)

// Outcome is the result of a single send attempt. Sent is true only when the
// transport accepted the message; Reason explains every false result.
type Outcome struct {
	Sent      bool
	Reason    Reason
	Recipient string
}

func sent(recipient string) Outcome {
	return Outcome{Sent: true, Reason: ReasonSent, Recipient: recipient}
}

func blocked(reason Reason) Outcome {
	return Outcome{Sent: false, Reason: reason}
}
