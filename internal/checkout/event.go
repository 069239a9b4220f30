package checkout

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/voxdesk/voxdesk/internal/plan"
)

const eventCheckoutCompleted = "checkout.session.completed"

var (
	// ErrEventIgnored reports a well-formed event this service does not act on.
	ErrEventIgnored = errors.New("checkout: event ignored")
	// ErrInvalidPayload reports a body that is not a usable event.
	ErrInvalidPayload = errors.New("checkout: invalid payload")
	// ErrMissingAccount reports a completed session without an account reference.
	ErrMissingAccount = errors.New("checkout: session has no account reference")
)

// Event is a completed one-time checkout session.
type Event struct {
	EventID   string
	SessionID string
	AccountID uint64
	Amount    float64 // Major currency units.
	Currency  string
	Plan      plan.Tier
	Raw       []byte
}

type processorEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	PaymentStatus     string            `json:"payment_status"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// ParseEvent extracts a completed payment-mode checkout session from payload.
// Other event types, subscription sessions and unpaid sessions yield ErrEventIgnored.
// Sessions without a plan in their metadata grant the pro tier.
func ParseEvent(payload []byte) (*Event, error) {
	return ParseEventWithDefault(payload, plan.TierPro)
}

// ParseEventWithDefault is ParseEvent with a configurable tier for sessions that name none.
func ParseEventWithDefault(payload []byte, fallback plan.Tier) (*Event, error) {
	var evt processorEvent
	if errDecode := json.Unmarshal(payload, &evt); errDecode != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(evt.ID) == "" {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(evt.Type) != eventCheckoutCompleted {
		return nil, ErrEventIgnored
	}

	var session checkoutSession
	if errDecode := json.Unmarshal(evt.Data.Object, &session); errDecode != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, ErrInvalidPayload
	}
	if session.Mode != "payment" {
		return nil, ErrEventIgnored
	}
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" && session.PaymentStatus != "no_payment_required" {
		return nil, ErrEventIgnored
	}

	accountRef := strings.TrimSpace(session.Metadata["account_id"])
	if accountRef == "" {
		accountRef = strings.TrimSpace(session.ClientReferenceID)
	}
	if accountRef == "" {
		return nil, ErrMissingAccount
	}
	accountID, errParse := strconv.ParseUint(accountRef, 10, 64)
	if errParse != nil || accountID == 0 {
		return nil, ErrMissingAccount
	}

	tier := fallback
	if tier == "" || tier == plan.TierFree {
		tier = plan.TierPro
	}
	if raw := strings.TrimSpace(session.Metadata["plan"]); raw != "" {
		parsed, ok := plan.ParseTier(raw)
		if !ok || parsed == plan.TierFree {
			return nil, ErrInvalidPayload
		}
		tier = parsed
	}

	return &Event{
		EventID:   evt.ID,
		SessionID: session.ID,
		AccountID: accountID,
		Amount:    float64(session.AmountTotal) / 100,
		Currency:  strings.ToLower(strings.TrimSpace(session.Currency)),
		Plan:      tier,
		Raw:       payload,
	}, nil
}
