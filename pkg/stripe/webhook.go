package stripe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

const defaultTolerance = 5 * time.Minute

// ErrLivemodeMismatch means a correctly signed event came from the other
// Stripe mode, e.g. a live invoice delivered to a test deployment.
var ErrLivemodeMismatch = errors.New("stripe event livemode does not match environment")

// Verifier checks Stripe-Signature headers and decodes the event.
type Verifier struct {
	secret    string
	tolerance time.Duration
	live      bool
}

func NewVerifier(secret string, tolerance time.Duration, live bool) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, live: live}, nil
}

// VerifyEvent authenticates payload against header. API version skew is
// tolerated because only invoice fields stable across versions are read.
func (v *Verifier) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	if strings.TrimSpace(header) == "" {
		return stripe.Event{}, webhook.ErrNotSigned
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("verify stripe signature: %w", err)
	}
	if event.Livemode != v.live {
		return stripe.Event{}, ErrLivemodeMismatch
	}
	return event, nil
}
