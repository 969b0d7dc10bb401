package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dependable-calls/dce/internal/observability"
	"github.com/dependable-calls/dce/internal/rbac"
	"github.com/dependable-calls/dce/internal/shared"
)

type mockRepo struct {
	RepositoryPort
	paidRefs     []string
	failedRefs   []string
	payoutPaid   []string
	payoutFailed []string
	disputes     []string
	err          error
}

func (m *mockRepo) MarkInvoicePaid(_ context.Context, ref string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.paidRefs = append(m.paidRefs, ref)
	return nil
}

func (m *mockRepo) MarkInvoicePaymentFailed(_ context.Context, ref string) error {
	if m.err != nil {
		return m.err
	}
	m.failedRefs = append(m.failedRefs, ref)
	return nil
}

func (m *mockRepo) MarkPayoutPaid(_ context.Context, ref string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.payoutPaid = append(m.payoutPaid, ref)
	return nil
}

func (m *mockRepo) MarkPayoutFailed(_ context.Context, ref, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.payoutFailed = append(m.payoutFailed, ref)
	return nil
}

func (m *mockRepo) MarkInvoiceDisputed(_ context.Context, _, disputeRef, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.disputes = append(m.disputes, disputeRef)
	return nil
}

type memoryLedger struct {
	seen map[string]bool
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{seen: map[string]bool{}}
}

func (l *memoryLedger) CheckAndInsert(_ context.Context, key, _ string) error {
	if l.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	l.seen[key] = true
	return nil
}

func (l *memoryLedger) Delete(_ context.Context, key string) error {
	delete(l.seen, key)
	return nil
}

func newTestDispatcher(repo RepositoryPort, ledger Ledger) *Dispatcher {
	return NewDispatcher(repo, ledger, observability.NewMetrics(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func makeEvent(id, eventType string, object map[string]any) Event {
	raw, _ := json.Marshal(object)
	return Event{ID: id, Type: eventType, Created: time.Now().Unix(), Data: EventData{Object: raw}}
}

func TestDispatchInvoicePaid(t *testing.T) {
	repo := &mockRepo{}
	d := newTestDispatcher(repo, newMemoryLedger())

	result, err := d.Dispatch(context.Background(), makeEvent("evt_1", EventInvoicePaid, map[string]any{"id": "in_42"}))
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, []string{"in_42"}, repo.paidRefs)
}

func TestDispatchDuplicateAcknowledged(t *testing.T) {
	repo := &mockRepo{}
	d := newTestDispatcher(repo, newMemoryLedger())
	event := makeEvent("evt_dup", EventPaymentSucceeded, map[string]any{"id": "pi_9"})

	_, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)

	result, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Len(t, repo.paidRefs, 1, "duplicate delivery must not reprocess")
}

func TestDispatchRollsBackLedgerOnFailure(t *testing.T) {
	repo := &mockRepo{err: errors.New("db down")}
	ledger := newMemoryLedger()
	d := newTestDispatcher(repo, ledger)
	event := makeEvent("evt_fail", EventPayoutPaid, map[string]any{"id": "po_1"})

	_, err := d.Dispatch(context.Background(), event)
	require.Error(t, err)
	assert.False(t, ledger.seen["evt_fail"], "ledger entry must be removed so a retry can succeed")

	repo.err = nil
	result, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, []string{"po_1"}, repo.payoutPaid)
}

func TestDispatchUnknownObjectTolerated(t *testing.T) {
	repo := &mockRepo{err: ErrNotFound}
	d := newTestDispatcher(repo, newMemoryLedger())

	_, err := d.Dispatch(context.Background(), makeEvent("evt_ext", EventInvoicePaid, map[string]any{"id": "in_external"}))
	assert.NoError(t, err, "events for objects we do not track are acknowledged")
}

func TestDispatchUnknownType(t *testing.T) {
	d := newTestDispatcher(&mockRepo{}, newMemoryLedger())

	_, err := d.Dispatch(context.Background(), makeEvent("evt_odd", "customer.created", map[string]any{"id": "cus_1"}))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDispatchDispute(t *testing.T) {
	repo := &mockRepo{}
	d := newTestDispatcher(repo, newMemoryLedger())

	_, err := d.Dispatch(context.Background(), makeEvent("evt_dp", EventDisputeCreated, map[string]any{
		"id":     "dp_1",
		"charge": "ch_7",
		"reason": "fraudulent",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"dp_1"}, repo.disputes)
}

func TestWebhookUnknownTypeLoggedAndAcknowledged(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))
	verifier := NewSignatureVerifier("whsec_test", 5*time.Minute)
	h := NewHandler(logger, nil, newTestDispatcher(&mockRepo{}, newMemoryLedger()), verifier, rbac.Middleware{})

	body, err := json.Marshal(makeEvent("evt_odd", "customer.created", map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, verifier.Sign(body))
	rec := httptest.NewRecorder()

	h.Webhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored":true`)
	assert.Contains(t, logBuf.String(), "customer.created", "ignored event types are logged")
}

func TestSignatureVerify(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	v := NewSignatureVerifier("whsec_test", 5*time.Minute)
	v.now = func() time.Time { return base }
	body := []byte(`{"id":"evt_1"}`)

	header := v.Sign(body)
	require.NoError(t, v.Verify(header, body))

	t.Run("tampered body", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify(header, []byte(`{"id":"evt_2"}`)), ErrSignatureInvalid)
	})
	t.Run("wrong secret", func(t *testing.T) {
		other := NewSignatureVerifier("whsec_other", 5*time.Minute)
		other.now = v.now
		assert.ErrorIs(t, other.Verify(header, body), ErrSignatureInvalid)
	})
	t.Run("stale timestamp", func(t *testing.T) {
		late := NewSignatureVerifier("whsec_test", 5*time.Minute)
		late.now = func() time.Time { return base.Add(6 * time.Minute) }
		assert.ErrorIs(t, late.Verify(header, body), ErrSignatureExpired)
	})
	t.Run("missing header", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify("", body), ErrSignatureInvalid)
	})
	t.Run("malformed header", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify("t=abc,v1=zz", body), ErrSignatureInvalid)
	})
	t.Run("extra signatures accepted", func(t *testing.T) {
		mixed := fmt.Sprintf("%s,v1=%s", header, "00ff")
		assert.NoError(t, v.Verify(mixed, body))
	})
}
