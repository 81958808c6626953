// Package provider implements clients for the upstream SMS-number providers.
// All responses are decoded and validated at this boundary; malformed payloads
// surface as ErrBadReply instead of propagating zero values.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Kind identifies an upstream provider implementation.
type Kind string

const (
	KindFiveSim  Kind = "fivesim"
	KindSMSBower Kind = "smsbower"
)

// ErrorKind is a provider-reported domain error. These are stable wire-level
// identifiers, not display strings.
type ErrorKind string

const (
	BadKey            ErrorKind = "BAD_KEY"
	BadAction         ErrorKind = "BAD_ACTION"
	NoActivation      ErrorKind = "NO_ACTIVATION"
	NoNumbers         ErrorKind = "NO_NUMBERS"
	NoBalance         ErrorKind = "NO_BALANCE"
	EarlyCancelDenied ErrorKind = "EARLY_CANCEL_DENIED"
	StillActive       ErrorKind = "STILL_ACTIVE"
)

// messages maps error kinds to short user-facing text.
var messages = map[ErrorKind]string{
	BadKey:            "Provider rejected the API key",
	BadAction:         "Unsupported provider action",
	NoActivation:      "Activation not found on provider",
	NoNumbers:         "No numbers available right now",
	NoBalance:         "Provider account out of balance",
	EarlyCancelDenied: "Number cannot be cancelled yet",
	StillActive:       "Number is still waiting for SMS",
}

// MessageFor returns the user-facing text for a kind, or the kind itself for
// unknown values.
func MessageFor(kind ErrorKind) string {
	if m, ok := messages[kind]; ok {
		return m
	}
	return string(kind)
}

// Error is a provider-reported domain error with a stable kind.
type Error struct {
	Kind ErrorKind
}

func (e *Error) Error() string { return "provider: " + string(e.Kind) }

// KindOf extracts the ErrorKind from err, or "" for transport/unknown errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ErrBadReply marks a response that failed schema validation at the decode
// boundary.
type ErrBadReply struct {
	Provider Kind
	Snippet  string
}

func (e *ErrBadReply) Error() string {
	return fmt.Sprintf("provider %s: malformed reply: %q", e.Provider, e.Snippet)
}

// Activation is a freshly acquired number.
type Activation struct {
	ActivationID string
	PhoneNumber  string
	Cost         float64
}

// StatusReply is one poll of an activation's state.
type StatusReply struct {
	// HasOTP is true when Message carries a newly received code.
	HasOTP  bool
	Message string
	// Cancelled is true when the provider reports the activation as
	// cancelled on its side.
	Cancelled bool
}

// Stock feeds come in two shapes; each client reports which one it fills.
//
// SuffixStock is keyed "service_N" with string counts (smsbower getAllStock).
// OperatorStock is keyed "code_operator" with integer counts (fivesim).
type Stock struct {
	Suffix   map[string]string
	Operator map[string]int
}

// Client is one upstream SMS provider account.
type Client interface {
	GetNumber(ctx context.Context, serviceCode string) (Activation, error)
	GetStatus(ctx context.Context, activationID string) (StatusReply, error)
	CancelNumber(ctx context.Context, activationID string) error
	Stock(ctx context.Context) (Stock, error)
}

// New builds a client for the given provider kind. baseURL may be empty to
// use the provider default; hc may be nil to use a 15s-timeout client.
func New(kind Kind, apiKey, baseURL string, hc *http.Client) (Client, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	switch kind {
	case KindFiveSim:
		return newFiveSim(apiKey, baseURL, hc), nil
	case KindSMSBower:
		return newSMSBower(apiKey, baseURL, hc), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}
}

// Registry resolves and caches clients by (kind, api key).
type Registry struct {
	mu      sync.Mutex
	clients map[string]Client
	hc      *http.Client
}

func NewRegistry(hc *http.Client) *Registry {
	return &Registry{clients: make(map[string]Client), hc: hc}
}

func (r *Registry) Resolve(ctx context.Context, kind, apiKey string) (Client, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	key := kind + ":" + apiKey
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err := New(Kind(kind), apiKey, "", r.hc)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}
