package event

import (
	"errors"
	"fmt"
	"time"
)

// Action is the closed set of tracked storefront actions.
type Action string

const (
	ActionProductView    Action = "product_view"
	ActionProductSearch  Action = "product_search"
	ActionAddToCart      Action = "add_to_cart"
	ActionRemoveFromCart Action = "remove_from_cart"
	ActionPlaceOrder     Action = "place_order"
	ActionUserLogin      Action = "user_login"
	ActionUserRegister   Action = "user_register"
)

var actions = map[Action]struct{}{
	ActionProductView:    {},
	ActionProductSearch:  {},
	ActionAddToCart:      {},
	ActionRemoveFromCart: {},
	ActionPlaceOrder:     {},
	ActionUserLogin:      {},
	ActionUserRegister:   {},
}

// Valid reports whether a belongs to the action vocabulary.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

func (a Action) String() string { return string(a) }

// Actions returns the full vocabulary in declaration order.
func Actions() []Action {
	return []Action{
		ActionProductView,
		ActionProductSearch,
		ActionAddToCart,
		ActionRemoveFromCart,
		ActionPlaceOrder,
		ActionUserLogin,
		ActionUserRegister,
	}
}

// MaxMetadataKeys bounds the open-ended metadata map.
const MaxMetadataKeys = 32

var (
	ErrUnknownAction   = errors.New("unknown action")
	ErrInvalidMetadata = errors.New("invalid metadata")
)

// Event is one immutable record of a tracked user action.
//
// Caller fields are a denormalized snapshot taken at record time; they are
// never re-resolved. Everything except Action, EventID and Timestamp is
// optional, and optional fields are never validated against each other.
type Event struct {
	EventID string `json:"event_id"`
	Action  Action `json:"action"`

	CallerID    string `json:"caller_id,omitempty"`
	CallerEmail string `json:"caller_email,omitempty"`
	CallerName  string `json:"caller_name,omitempty"`

	ProductID   string   `json:"product_id,omitempty"`
	ProductName string   `json:"product_name,omitempty"`
	SearchTerm  string   `json:"search_term,omitempty"`
	Quantity    *int64   `json:"quantity,omitempty"`
	OrderValue  *float64 `json:"order_value,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	SessionID     string `json:"session_id,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	SourceAddress string `json:"source_address,omitempty"`

	// Best-effort enrichment, derived from user agent and GeoIP.
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	DeviceType     string `json:"device_type,omitempty"`
	Country        string `json:"country,omitempty"`
	City           string `json:"city,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Anonymous reports whether the event carries no resolved caller identity.
func (e *Event) Anonymous() bool { return e.CallerID == "" }

// Validate checks the fields the system guarantees: the action must belong
// to the vocabulary and metadata must stay a flat map of primitives.
func Validate(e *Event) error {
	if !e.Action.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, e.Action)
	}
	return validateMetadata(e.Metadata)
}

func validateMetadata(md map[string]any) error {
	if len(md) == 0 {
		return nil
	}
	if len(md) > MaxMetadataKeys {
		return fmt.Errorf("%w: more than %d keys", ErrInvalidMetadata, MaxMetadataKeys)
	}
	for k, v := range md {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidMetadata)
		}
		switch v.(type) {
		case nil, bool, string, float64, int, int64:
		default:
			return fmt.Errorf("%w: key %q holds a non-primitive value", ErrInvalidMetadata, k)
		}
	}
	return nil
}
