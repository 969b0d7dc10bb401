package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dependable-calls/dce/internal/observability"
	"github.com/dependable-calls/dce/internal/shared"
)

// Webhook event types accepted from the payment provider.
const (
	EventPaymentSucceeded     = "payment_intent.succeeded"
	EventPaymentFailed        = "payment_intent.payment_failed"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventPayoutPaid           = "payout.paid"
	EventPayoutFailed         = "payout.failed"
	EventDisputeCreated       = "charge.dispute.created"
)

var (
	// ErrSignatureInvalid indicates a missing, malformed, or mismatched signature.
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	// ErrSignatureExpired indicates a timestamp outside the tolerance window.
	ErrSignatureExpired = errors.New("webhook signature timestamp outside tolerance")
	// ErrUnknownEvent indicates an event type without a handler.
	ErrUnknownEvent = errors.New("unhandled webhook event type")
)

// Event is the provider's webhook envelope.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

// EventData wraps the provider object the event describes.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

type eventObject struct {
	ID            string `json:"id"`
	Currency      string `json:"currency"`
	FailureReason string `json:"failure_message"`
	DisputeReason string `json:"reason"`
	Charge        string `json:"charge"`
}

// SignatureVerifier checks the DCE-Signature header: "t=<unix>,v1=<hex>",
// where v1 is HMAC-SHA256 over "<t>.<body>" with the shared webhook secret.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier constructs a verifier with the given secret and
// timestamp tolerance.
func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify validates the signature header against the raw request body.
func (v *SignatureVerifier) Verify(header string, body []byte) error {
	if header == "" {
		return ErrSignatureInvalid
	}
	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrSignatureInvalid
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrSignatureInvalid
	}

	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > v.tolerance || drift < -v.tolerance {
		return ErrSignatureExpired
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	expected := mac.Sum(nil)
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// Sign produces a signature header for the given body. Used by tests and the
// local webhook replay tool.
func (v *SignatureVerifier) Sign(body []byte) string {
	ts := v.now().Unix()
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// Ledger records processed webhook event IDs.
type Ledger interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const webhookModule = "billing.webhook"

// Dispatcher routes verified webhook events to billing state changes. Each
// event ID is recorded in the idempotency ledger before processing; a
// duplicate delivery is acknowledged without reprocessing.
type Dispatcher struct {
	repo    RepositoryPort
	ledger  Ledger
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewDispatcher constructs a webhook dispatcher.
func NewDispatcher(repo RepositoryPort, ledger Ledger, metrics *observability.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, ledger: ledger, metrics: metrics, logger: logger}
}

// DispatchResult describes the outcome of one event.
type DispatchResult struct {
	Duplicate bool
}

// Dispatch processes one event. The ledger entry is removed again when the
// handler fails so the provider's retry can succeed.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (DispatchResult, error) {
	if event.ID == "" || event.Type == "" {
		return DispatchResult{}, errors.New("webhook event missing id or type")
	}

	if err := d.ledger.CheckAndInsert(ctx, event.ID, webhookModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			d.metrics.AddWebhookEvent(event.Type, "duplicate")
			d.logger.Info("webhook event already processed", slog.String("event_id", event.ID))
			return DispatchResult{Duplicate: true}, nil
		}
		return DispatchResult{}, err
	}

	if err := d.handle(ctx, event); err != nil {
		if delErr := d.ledger.Delete(ctx, event.ID); delErr != nil {
			d.logger.Error("rollback of webhook ledger entry failed",
				slog.String("event_id", event.ID),
				slog.String("error", delErr.Error()),
			)
		}
		d.metrics.AddWebhookEvent(event.Type, "error")
		return DispatchResult{}, err
	}

	d.metrics.AddWebhookEvent(event.Type, "ok")
	d.logger.Info("webhook event processed",
		slog.String("event_id", event.ID),
		slog.String("type", event.Type),
	)
	return DispatchResult{}, nil
}

func (d *Dispatcher) handle(ctx context.Context, event Event) error {
	var obj eventObject
	if err := json.Unmarshal(event.Data.Object, &obj); err != nil {
		return fmt.Errorf("decode event object: %w", err)
	}
	if obj.ID == "" {
		return errors.New("webhook event object missing id")
	}
	occurred := time.Unix(event.Created, 0)

	switch event.Type {
	case EventPaymentSucceeded, EventInvoicePaid:
		return d.tolerateMissing(event, d.repo.MarkInvoicePaid(ctx, obj.ID, occurred))
	case EventPaymentFailed, EventInvoicePaymentFailed:
		return d.tolerateMissing(event, d.repo.MarkInvoicePaymentFailed(ctx, obj.ID))
	case EventPayoutPaid:
		return d.tolerateMissing(event, d.repo.MarkPayoutPaid(ctx, obj.ID, occurred))
	case EventPayoutFailed:
		return d.tolerateMissing(event, d.repo.MarkPayoutFailed(ctx, obj.ID, obj.FailureReason))
	case EventDisputeCreated:
		return d.tolerateMissing(event, d.repo.MarkInvoiceDisputed(ctx, obj.Charge, obj.ID, obj.DisputeReason))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, event.Type)
	}
}

// tolerateMissing acknowledges events referencing objects we do not track,
// such as payments created directly in the provider's dashboard. Retrying
// those would never succeed.
func (d *Dispatcher) tolerateMissing(event Event, err error) error {
	if errors.Is(err, ErrNotFound) {
		d.logger.Warn("webhook event references unknown object",
			slog.String("event_id", event.ID),
			slog.String("type", event.Type),
		)
		return nil
	}
	return err
}
