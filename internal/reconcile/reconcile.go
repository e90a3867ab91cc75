package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fanclubhq/fanclub-backend/internal/paystack"
	"github.com/fanclubhq/fanclub-backend/internal/storage"
)

var (
	ErrVerificationFailed = errors.New("payment verification failed")
	ErrInactiveMembership = errors.New("membership is not active")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

// Paystack's hosted page collects the payer's real contact; the
// initialization payload only needs a syntactically valid one.
const placeholderEmail = "member@fanclub.app"

// Outcome is the result of applying a confirmation event
type Outcome int

const (
	OutcomeConfirmed Outcome = iota + 1
	OutcomeAlreadyProcessed
	OutcomeIgnored
)

// Gateway is the slice of the payment gateway the reconciler needs
type Gateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeData, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionData, error)
}

// ConfirmedFunc is called after a member transitions to paid
type ConfirmedFunc func(ctx context.Context, member *storage.Member, source string)

// Reconciler applies payment confirmation events to member records. Both
// confirmation paths (client verification and gateway webhook) go through
// it; the end state is paid iff at least one valid confirming event was
// accepted, no matter how events race or repeat.
type Reconciler struct {
	store        *storage.Storage
	gateway      Gateway
	secret       string
	callbackBase string
	onConfirmed  ConfirmedFunc
	log          *slog.Logger
}

// New creates a new Reconciler
func New(store *storage.Storage, gateway Gateway, secret, callbackBase string, onConfirmed ConfirmedFunc, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:        store,
		gateway:      gateway,
		secret:       secret,
		callbackBase: callbackBase,
		onConfirmed:  onConfirmed,
		log:          log,
	}
}

// CreatePaymentLink opens a hosted payment session for a member and returns
// its URL. Amount is in naira; the gateway bills in kobo. No local state is
// written; the session stays transient until a confirmation event arrives.
func (r *Reconciler) CreatePaymentLink(ctx context.Context, memberID string, amount int64) (string, error) {
	req := paystack.InitializeRequest{
		Email:     placeholderEmail,
		Amount:    amount * 100,
		Reference: NewReference(memberID),
	}
	if r.callbackBase != "" {
		req.CallbackURL = fmt.Sprintf("%s/payment-callback?userId=%s", r.callbackBase, memberID)
	}

	init, err := r.gateway.InitializeTransaction(ctx, req)
	if err != nil {
		return "", fmt.Errorf("initialize transaction: %w", err)
	}

	r.log.Info("payment link issued", "member_id", memberID, "reference", req.Reference)

	return init.AuthorizationURL, nil
}

// VerifyPayment is the client-initiated confirmation path: ask the gateway
// for the transaction's status and, if successful, mark the member paid.
func (r *Reconciler) VerifyPayment(ctx context.Context, reference, memberID string) (Outcome, error) {
	tx, err := r.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return 0, fmt.Errorf("verify transaction: %w", err)
	}

	if tx.Status != "success" {
		r.log.Info("verification rejected", "reference", reference, "status", tx.Status)
		return 0, ErrVerificationFailed
	}

	member, err := r.store.GetMember(memberID)
	if err != nil {
		return 0, err
	}

	return r.confirm(ctx, member, "verification")
}

// HandleWebhook is the gateway-pushed confirmation path. The raw body must
// authenticate against the shared secret before anything is read from it.
func (r *Reconciler) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (Outcome, error) {
	if !paystack.VerifySignature(rawBody, signature, r.secret) {
		return 0, ErrInvalidSignature
	}

	var event paystack.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		r.log.Warn("unparseable webhook body", "error", err)
		return OutcomeIgnored, nil
	}

	// The gateway pushes many event types; only a successful charge is
	// actionable here.
	if event.Event != paystack.EventChargeSuccess {
		return OutcomeIgnored, nil
	}

	amount := event.Data.Amount / 100 // kobo -> naira

	member, err := r.resolveMember(event.Data.Reference, event.Data.Customer.Email, amount)
	if err != nil {
		return 0, err
	}

	if member.IsPaid {
		return OutcomeAlreadyProcessed, nil
	}

	return r.confirm(ctx, member, "webhook")
}

// resolveMember finds the member a charge belongs to: by the id embedded in
// our own reference when present, otherwise by exact email+amount match.
func (r *Reconciler) resolveMember(reference, email string, amount int64) (*storage.Member, error) {
	if id, ok := memberIDFromReference(reference); ok {
		member, err := r.store.GetMember(id)
		if err == nil {
			return member, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	if email == "" {
		return nil, storage.ErrNotFound
	}
	return r.store.FindByEmailAmount(email, amount)
}

// confirm applies the Unpaid -> Paid transition. The store's conditional
// update guarantees at most one effective transition per member, so racing
// or repeated confirmations collapse to a single side effect.
func (r *Reconciler) confirm(ctx context.Context, member *storage.Member, source string) (Outcome, error) {
	if !member.IsActive {
		return 0, ErrInactiveMembership
	}

	changed, err := r.store.MarkPaid(member.ID)
	if err != nil {
		return 0, fmt.Errorf("mark paid: %w", err)
	}
	if !changed {
		return OutcomeAlreadyProcessed, nil
	}

	r.log.Info("payment confirmed", "member_id", member.ID, "amount", member.Amount, "source", source)

	if r.onConfirmed != nil {
		r.onConfirmed(ctx, member, source)
	}

	return OutcomeConfirmed, nil
}
