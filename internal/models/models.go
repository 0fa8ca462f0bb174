// Package models defines the core data structures for GymBot.
//
// It includes the per-user conversation state, interaction records persisted
// to the relational store, outbound reply envelopes, and the connection
// status enum shared across modules.
package models

import (
	"errors"
	"time"
)

// Location identifies a physical gym site. Each site carries its own plan
// catalog, so the selected location constrains which plans may be offered.
type Location string

const (
	// LocationNone means the user has not picked a site yet.
	LocationNone Location = ""
	// LocationJulio is the "20 de Julio" site.
	LocationJulio Location = "20 de Julio"
	// LocationVenecia is the "Venecia" site.
	LocationVenecia Location = "Venecia"
)

// PaymentFlowState tracks the nested purchase sub-flow.
type PaymentFlowState string

const (
	// PaymentIdle means no purchase is in progress.
	PaymentIdle PaymentFlowState = "idle"
	// PaymentAwaitingMethod means the payment-method menu was sent and the
	// next inbound text is classified as a payment method.
	PaymentAwaitingMethod PaymentFlowState = "awaiting_payment_method"
)

// PaymentMethod is the classification of a payment-method reply.
type PaymentMethod string

const (
	PaymentTransfer   PaymentMethod = "transferencia"
	PaymentAddi       PaymentMethod = "addi"
	PaymentCard       PaymentMethod = "tarjeta"
	PaymentCash       PaymentMethod = "efectivo"
	PaymentPSE        PaymentMethod = "pse"
	PaymentMenuReturn PaymentMethod = "menu"
)

// ConversationState is the per-user record of dialogue progress, keyed by a
// phone-like identifier. It is owned by the session store and mutated only
// under the store's per-identifier lock.
type ConversationState struct {
	Phone            string           `json:"phone"`
	TermsAccepted    bool             `json:"terms_accepted"`
	Location         Location         `json:"location"`
	Plan             string           `json:"plan,omitempty"`
	PaymentFlow      PaymentFlowState `json:"payment_flow"`
	AwaitingFeedback bool             `json:"awaiting_feedback"`
	HandoffToHuman   bool             `json:"handoff_to_human"`
	LastActivity     time.Time        `json:"last_activity"`
}

// Response represents an inbound message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// Reply is one outbound message requested by the conversation engine. The
// engine never talks to the transport directly; it emits replies and the
// dispatcher performs the sends.
type Reply struct {
	Text      string `json:"text,omitempty"`
	MediaPath string `json:"media_path,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// IsMedia reports whether the reply carries a media attachment.
func (r Reply) IsMedia() bool { return r.MediaPath != "" }

// TextReply builds a plain text reply.
func TextReply(text string) Reply { return Reply{Text: text} }

// MediaReply builds a media reply with a caption.
func MediaReply(path, caption string) Reply {
	return Reply{MediaPath: path, Caption: caption}
}

// ConnectionStatus is the transport connection state machine:
// Disconnected -> Connecting -> Ready, and Ready -> Disconnected on any
// failure signal.
type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionReady        ConnectionStatus = "ready"
)

// ConnectionEventKind classifies transport lifecycle events.
type ConnectionEventKind string

const (
	ConnectionEventConnected      ConnectionEventKind = "connected"
	ConnectionEventDisconnected   ConnectionEventKind = "disconnected"
	ConnectionEventStreamReplaced ConnectionEventKind = "stream_replaced"
	ConnectionEventLoggedOut      ConnectionEventKind = "logged_out"
	ConnectionEventTimeout        ConnectionEventKind = "keepalive_timeout"
	ConnectionEventQR             ConnectionEventKind = "qr"
)

// ConnectionEvent is delivered by the transport adapter when the connection
// state changes or a new pairing QR code is issued.
type ConnectionEvent struct {
	Kind   ConnectionEventKind `json:"kind"`
	QRCode string              `json:"qr_code,omitempty"`
	Reason string              `json:"reason,omitempty"`
	Time   time.Time           `json:"time"`
}

// LogEntry is one captured log record exposed through the control surface.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"type"`
	Message   string    `json:"message"`
}

// Validation errors shared across modules.
var (
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrInvalidRecipient = errors.New("recipient must be a phone number with country code")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrNotConnected     = errors.New("transport is not connected")
)
