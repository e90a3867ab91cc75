package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanclubhq/fanclub-backend/internal/paystack"
	"github.com/fanclubhq/fanclub-backend/internal/storage"
)

const testSecret = "sk_test_webhook_secret"

// stubGateway is a fake payment gateway for testing
type stubGateway struct {
	InitializeFunc func(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error)
	VerifyFunc     func(ctx context.Context, reference string) (*paystack.TransactionData, error)
}

func (g *stubGateway) InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error) {
	if g.InitializeFunc != nil {
		return g.InitializeFunc(ctx, req)
	}
	return &paystack.InitializeData{
		AuthorizationURL: "https://checkout.paystack.com/test",
		Reference:        req.Reference,
	}, nil
}

func (g *stubGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionData, error) {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, reference)
	}
	return &paystack.TransactionData{Status: "success", Reference: reference}, nil
}

func newTestReconciler(t *testing.T, gw Gateway) (*Reconciler, *storage.Storage) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(store, gw, testSecret, "https://fanclub.example.com", nil, log), store
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func registerMember(t *testing.T, store *storage.Storage, email string, amount int64) *storage.Member {
	t.Helper()
	m, err := store.CreateMember(storage.NewMember{
		Nickname:    "Ada",
		Handle:      "@ada",
		FanSince:    "2020",
		Nationality: "NG",
		Email:       email,
		Amount:      amount,
	})
	require.NoError(t, err)
	return m
}

func signedChargeSuccess(t *testing.T, reference, email string, amountKobo int64) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(paystack.WebhookEvent{
		Event: paystack.EventChargeSuccess,
		Data: paystack.WebhookData{
			Reference: reference,
			Amount:    amountKobo,
			Status:    "success",
			Customer:  paystack.Customer{Email: email},
		},
	})
	require.NoError(t, err)
	return body, paystack.Sign(body, testSecret)
}

// --- Payment link issuance ---

func TestCreatePaymentLink(t *testing.T) {
	var captured paystack.InitializeRequest
	gw := &stubGateway{
		InitializeFunc: func(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error) {
			captured = req
			return &paystack.InitializeData{AuthorizationURL: "https://checkout.paystack.com/xyz"}, nil
		},
	}
	r, store := newTestReconciler(t, gw)
	m := registerMember(t, store, "ada@example.com", 5000)

	link, err := r.CreatePaymentLink(context.Background(), m.ID, 5000)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/xyz", link)

	// Amount billed in kobo, member id threaded through reference and callback
	assert.Equal(t, int64(500000), captured.Amount)
	assert.Contains(t, captured.Reference, m.ID)
	assert.Contains(t, captured.CallbackURL, "userId="+m.ID)
	assert.NotEmpty(t, captured.Email)
}

func TestCreatePaymentLinkReferencesAreUnique(t *testing.T) {
	var refs []string
	gw := &stubGateway{
		InitializeFunc: func(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error) {
			refs = append(refs, req.Reference)
			return &paystack.InitializeData{AuthorizationURL: "https://checkout.paystack.com/xyz"}, nil
		},
	}
	r, store := newTestReconciler(t, gw)
	m := registerMember(t, store, "ada@example.com", 5000)

	for i := 0; i < 3; i++ {
		_, err := r.CreatePaymentLink(context.Background(), m.ID, 5000)
		require.NoError(t, err)
	}

	seen := map[string]bool{}
	for _, ref := range refs {
		assert.False(t, seen[ref], "reference %q issued twice", ref)
		seen[ref] = true
	}
}

func TestCreatePaymentLinkGatewayFailure(t *testing.T) {
	gw := &stubGateway{
		InitializeFunc: func(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error) {
			return nil, &paystack.APIError{StatusCode: 401, Message: "Invalid key"}
		},
	}
	r, store := newTestReconciler(t, gw)
	m := registerMember(t, store, "ada@example.com", 5000)

	_, err := r.CreatePaymentLink(context.Background(), m.ID, 5000)
	var apiErr *paystack.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid key", apiErr.Message)
}

// --- Client-verification path ---

func TestVerifyPaymentConfirms(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	outcome, err := r.VerifyPayment(context.Background(), "FANCLUB-"+m.ID+"-1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	got, err := store.GetMember(m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
}

func TestVerifyPaymentFailedStatus(t *testing.T) {
	gw := &stubGateway{
		VerifyFunc: func(ctx context.Context, reference string) (*paystack.TransactionData, error) {
			return &paystack.TransactionData{Status: "failed"}, nil
		},
	}
	r, store := newTestReconciler(t, gw)
	m := registerMember(t, store, "ada@example.com", 5000)

	_, err := r.VerifyPayment(context.Background(), "ref", m.ID)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	got, _ := store.GetMember(m.ID)
	assert.False(t, got.IsPaid)
}

func TestVerifyPaymentGatewayError(t *testing.T) {
	gw := &stubGateway{
		VerifyFunc: func(ctx context.Context, reference string) (*paystack.TransactionData, error) {
			return nil, errors.New("connection reset")
		},
	}
	r, store := newTestReconciler(t, gw)
	m := registerMember(t, store, "ada@example.com", 5000)

	_, err := r.VerifyPayment(context.Background(), "ref", m.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrVerificationFailed)

	got, _ := store.GetMember(m.ID)
	assert.False(t, got.IsPaid)
}

func TestVerifyPaymentMemberNotFound(t *testing.T) {
	r, _ := newTestReconciler(t, &stubGateway{})

	_, err := r.VerifyPayment(context.Background(), "ref", "no-such-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestVerifyPaymentInactiveMember(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)
	require.NoError(t, store.SetActive(m.ID, false))

	_, err := r.VerifyPayment(context.Background(), "ref", m.ID)
	assert.ErrorIs(t, err, ErrInactiveMembership)

	got, _ := store.GetMember(m.ID)
	assert.False(t, got.IsPaid)
}

func TestVerifyPaymentIdempotent(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	outcome, err := r.VerifyPayment(context.Background(), "ref", m.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	outcome, err = r.VerifyPayment(context.Background(), "ref", m.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)

	got, _ := store.GetMember(m.ID)
	assert.True(t, got.IsPaid)
}

// --- Webhook path ---

func TestHandleWebhookConfirmsByEmailAmount(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	// Reference not issued by us: resolution falls back to email+amount,
	// with the gateway amount in kobo converted back to naira.
	body, sig := signedChargeSuccess(t, "external-ref-1", "ada@example.com", 500000)

	outcome, err := r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	got, _ := store.GetMember(m.ID)
	assert.True(t, got.IsPaid)
}

func TestHandleWebhookResolvesByReference(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	// Payer used a different email on the hosted page; the member id in
	// the reference still resolves.
	body, sig := signedChargeSuccess(t, NewReference(m.ID), "other@example.com", 500000)

	outcome, err := r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	got, _ := store.GetMember(m.ID)
	assert.True(t, got.IsPaid)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	body, _ := signedChargeSuccess(t, NewReference(m.ID), "ada@example.com", 500000)

	_, err := r.HandleWebhook(context.Background(), body, "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	got, _ := store.GetMember(m.ID)
	assert.False(t, got.IsPaid)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	body, err := json.Marshal(paystack.WebhookEvent{
		Event: "transfer.success",
		Data:  paystack.WebhookData{Reference: NewReference(m.ID), Amount: 500000},
	})
	require.NoError(t, err)

	outcome, err := r.HandleWebhook(context.Background(), body, paystack.Sign(body, testSecret))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)

	got, _ := store.GetMember(m.ID)
	assert.False(t, got.IsPaid)
}

func TestHandleWebhookUnmatchedMember(t *testing.T) {
	r, _ := newTestReconciler(t, &stubGateway{})

	body, sig := signedChargeSuccess(t, "external-ref", "nobody@example.com", 500000)

	_, err := r.HandleWebhook(context.Background(), body, sig)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandleWebhookInactiveMember(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)
	require.NoError(t, store.SetActive(m.ID, false))

	body, sig := signedChargeSuccess(t, NewReference(m.ID), "ada@example.com", 500000)

	_, err := r.HandleWebhook(context.Background(), body, sig)
	assert.ErrorIs(t, err, ErrInactiveMembership)

	got, _ := store.GetMember(m.ID)
	assert.False(t, got.IsPaid)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	body, sig := signedChargeSuccess(t, NewReference(m.ID), "ada@example.com", 500000)

	outcome, err := r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome)

	// The gateway redelivers the exact same event
	outcome, err = r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyProcessed, outcome)

	got, _ := store.GetMember(m.ID)
	assert.True(t, got.IsPaid)
}

func TestHandleWebhookConcurrentDeliveries(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	body, sig := signedChargeSuccess(t, NewReference(m.ID), "ada@example.com", 500000)

	const n = 8
	outcomes := make([]Outcome, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = r.HandleWebhook(context.Background(), body, sig)
		}(i)
	}
	wg.Wait()

	confirmed := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		switch outcomes[i] {
		case OutcomeConfirmed:
			confirmed++
		case OutcomeAlreadyProcessed:
		default:
			t.Fatalf("unexpected outcome %v", outcomes[i])
		}
	}
	assert.Equal(t, 1, confirmed, "exactly one delivery performs the transition")

	got, _ := store.GetMember(m.ID)
	assert.True(t, got.IsPaid)
}

// --- Cross-path properties ---

func TestPaidStateIsMonotone(t *testing.T) {
	r, store := newTestReconciler(t, &stubGateway{})
	m := registerMember(t, store, "ada@example.com", 5000)

	_, err := r.VerifyPayment(context.Background(), "ref", m.ID)
	require.NoError(t, err)

	// Confirmations keep arriving through both paths; the state never
	// leaves paid and no call errors.
	body, sig := signedChargeSuccess(t, NewReference(m.ID), "ada@example.com", 500000)
	for i := 0; i < 3; i++ {
		outcome, err := r.HandleWebhook(context.Background(), body, sig)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyProcessed, outcome)

		outcome, err = r.VerifyPayment(context.Background(), "ref", m.ID)
		require.NoError(t, err)
		assert.Equal(t, OutcomeAlreadyProcessed, outcome)

		got, _ := store.GetMember(m.ID)
		assert.True(t, got.IsPaid)
	}
}

func TestConfirmedCallbackFiresOnce(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	r := New(store, &stubGateway{}, testSecret, "", func(ctx context.Context, m *storage.Member, source string) {
		mu.Lock()
		calls = append(calls, source)
		mu.Unlock()
	}, log)

	m := registerMember(t, store, "ada@example.com", 5000)
	body, sig := signedChargeSuccess(t, NewReference(m.ID), "ada@example.com", 500000)

	_, err = r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	_, err = r.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	_, err = r.VerifyPayment(context.Background(), "ref", m.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"webhook"}, calls)
}
