// Package lifecycle drives a credential through query, verification and
// revocation against the ledger.
//
// Query reads every field of the record at derived addresses. Verify and
// Revoke submit signed actions and wait for their outcome under a fixed
// polling policy. Run chains the three steps, asking the operator before each
// transition and reporting every step as executed, skipped or failed.
//
// Encoding and protocol errors halt a run and are returned as errors. Every
// other failure becomes step status.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"xdao.co/credledger/clencode"
	"xdao.co/credledger/clvalue"
	"xdao.co/credledger/compliance"
	"xdao.co/credledger/credential"
	"xdao.co/credledger/journal"
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/ledger"
	"xdao.co/credledger/logging"
)

// ErrCredentialNotFound means the primary field is absent: the credential
// does not exist.
var ErrCredentialNotFound = errors.New("lifecycle: credential not found")

// Contract entry points and argument names.
const (
	EntryVerify     = "verify_credential"
	EntryRevoke     = "revoke_credential"
	ArgCredentialID = "credential_id"
	ArgReason       = "reason"
	DefaultReason   = "Manual revocation"
)

// Ledger is the part of *ledger.Client the controller uses.
type Ledger interface {
	CurrentRoot(ctx context.Context) (ledger.RootHash, error)
	Read(ctx context.Context, root ledger.RootHash, addr keyderive.Address) (*ledger.StoredValue, error)
	Submit(ctx context.Context, action ledger.SignedAction) (ledger.PendingHandle, error)
	AwaitOutcome(ctx context.Context, h ledger.PendingHandle, timeout, interval time.Duration) (ledger.Outcome, error)
}

// Confirmer asks the operator before state-changing or continuing actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) { return f(ctx, prompt) }

// AlwaysConfirm approves every prompt.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// Reporter receives progress for presentation.
type Reporter interface {
	Transition(item string, from, to State)
	Queried(res *QueryResult)
	StepDone(res StepResult)
}

type nopReporter struct{}

func (nopReporter) Transition(string, State, State) {}
func (nopReporter) Queried(*QueryResult)            {}
func (nopReporter) StepDone(StepResult)             {}

// Recorder persists raw and parsed artifacts for an item.
type Recorder interface {
	Record(ctx context.Context, item, step, kind string, payload []byte) error
}

// Journal remembers submitted deploys.
type Journal interface {
	Put(ctx context.Context, e journal.Entry) error
}

// Policy holds the fixed timing and payment policy.
type Policy struct {
	VerifyTimeout  time.Duration
	VerifyInterval time.Duration
	RevokeTimeout  time.Duration
	RevokeInterval time.Duration
	// SettleDelay is waited after a successful revocation before re-querying.
	SettleDelay   time.Duration
	VerifyPayment uint64
	RevokePayment uint64
	Mode          compliance.Mode
}

// DefaultPolicy polls 30 times at 1s for both actions and settles for 5s.
func DefaultPolicy() Policy {
	return Policy{
		VerifyTimeout:  30 * time.Second,
		VerifyInterval: time.Second,
		RevokeTimeout:  30 * time.Second,
		RevokeInterval: time.Second,
		SettleDelay:    5 * time.Second,
		VerifyPayment:  3_000_000_000,
		RevokePayment:  4_000_000_000,
		Mode:           compliance.Permissive,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.VerifyTimeout <= 0 {
		p.VerifyTimeout = d.VerifyTimeout
	}
	if p.VerifyInterval <= 0 {
		p.VerifyInterval = d.VerifyInterval
	}
	if p.RevokeTimeout <= 0 {
		p.RevokeTimeout = d.RevokeTimeout
	}
	if p.RevokeInterval <= 0 {
		p.RevokeInterval = d.RevokeInterval
	}
	if p.SettleDelay < 0 {
		p.SettleDelay = 0
	}
	if p.VerifyPayment == 0 {
		p.VerifyPayment = d.VerifyPayment
	}
	if p.RevokePayment == 0 {
		p.RevokePayment = d.RevokePayment
	}
	return p
}

type Config struct {
	Seed      keyderive.NamespaceSeed
	Ledger    Ledger
	Signer    ledger.Signer
	Clock     ledger.Clock
	Confirmer Confirmer
	Reporter  Reporter
	Recorder  Recorder
	Journal   Journal
	Logger    logging.Logger
	Policy    Policy
	// SignerAccount, when set, is compared with the record's issuer before revoking.
	SignerAccount *clvalue.Key
}

// Controller runs lifecycle steps. It holds no per-item state and may be
// reused across items, one call at a time.
type Controller struct {
	deriver   *keyderive.Deriver
	ledger    Ledger
	signer    ledger.Signer
	clock     ledger.Clock
	confirmer Confirmer
	reporter  Reporter
	recorder  Recorder
	journal   Journal
	log       logging.Logger
	policy    Policy
	account   *clvalue.Key
}

func New(cfg Config) (*Controller, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("lifecycle: ledger is required")
	}
	c := &Controller{
		deriver:   keyderive.NewDeriver(cfg.Seed),
		ledger:    cfg.Ledger,
		signer:    cfg.Signer,
		clock:     cfg.Clock,
		confirmer: cfg.Confirmer,
		reporter:  cfg.Reporter,
		recorder:  cfg.Recorder,
		journal:   cfg.Journal,
		log:       cfg.Logger,
		policy:    cfg.Policy.withDefaults(),
		account:   cfg.SignerAccount,
	}
	if c.clock == nil {
		c.clock = ledger.SystemClock{}
	}
	if c.confirmer == nil {
		c.confirmer = AlwaysConfirm
	}
	if c.reporter == nil {
		c.reporter = nopReporter{}
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	return c, nil
}

func (c *Controller) Policy() Policy { return c.policy }

// halting reports whether err must stop the run rather than become status.
func halting(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	var ee *clencode.EncodingError
	return errors.As(err, &ee) || ledger.IsKind(err, ledger.KindProtocol) ||
		errors.Is(err, clvalue.ErrMalformed) || errors.Is(err, keyderive.ErrUnknownField)
}

func (c *Controller) transition(item string, from, to State) {
	if from == to {
		return
	}
	c.log.WithFields(map[string]interface{}{"item": item, "from": string(from), "to": string(to)}).Info("lifecycle transition")
	c.reporter.Transition(item, from, to)
}

func (c *Controller) done(res StepResult) StepResult {
	fields := map[string]interface{}{"item": res.Item, "step": string(res.Step), "status": string(res.Status), "state": string(res.State)}
	if res.Deploy != "" {
		fields["deploy"] = res.Deploy
	}
	log := c.log.WithFields(fields)
	switch {
	case res.Status == Failed:
		log.Warnf("step failed: %s", res.Message)
	case res.Status == Skipped:
		log.Infof("step skipped: %s", res.Reason)
	case res.Discrepancy != "":
		log.Warnf("step discrepancy: %s", res.Discrepancy)
	default:
		log.Info("step executed")
	}
	c.reporter.StepDone(res)
	return res
}

func (c *Controller) record(ctx context.Context, item string, step Step, kind string, payload []byte) {
	if c.recorder == nil || len(payload) == 0 {
		return
	}
	if err := c.recorder.Record(ctx, item, string(step), kind, payload); err != nil {
		c.log.WithFields(map[string]interface{}{"item": item, "step": string(step), "kind": kind}).Warnf("artifact not recorded: %v", err)
	}
}

func (c *Controller) journalPut(ctx context.Context, e journal.Entry) {
	if c.journal == nil {
		return
	}
	e.UpdatedAt = c.clock.Now()
	if err := c.journal.Put(ctx, e); err != nil {
		c.log.WithField("deploy", e.Deploy).Warnf("journal write failed: %v", err)
	}
}

// execute signs, submits and awaits one action. deploy is set once the node
// accepted the submission.
func (c *Controller) execute(ctx context.Context, step Step, item string, action ledger.Action, timeout, interval time.Duration) (out ledger.Outcome, deploy string, err error) {
	if c.signer == nil {
		return ledger.Outcome{}, "", errors.New("lifecycle: no signer configured")
	}
	log := c.log.WithFields(map[string]interface{}{"item": item, "step": string(step), "entry_point": action.EntryPoint})

	signed, err := c.signer.Sign(ctx, action)
	if err != nil {
		return ledger.Outcome{}, "", fmt.Errorf("sign %s: %w", action.EntryPoint, err)
	}
	c.record(ctx, item, step, "deploy", signed.Deploy)

	h, err := c.ledger.Submit(ctx, signed)
	if err != nil {
		return ledger.Outcome{}, "", fmt.Errorf("submit %s: %w", action.EntryPoint, err)
	}
	entry := journal.Entry{Deploy: h.Hash, Item: item, Step: string(step), Status: journal.StatusPending, SubmittedAt: h.SubmittedAt}
	c.journalPut(ctx, entry)
	log.WithField("deploy", h.Hash).Infof("awaiting outcome (%d polls at %s)", ledger.PollBudget(timeout, interval), interval)

	out, err = c.ledger.AwaitOutcome(ctx, h, timeout, interval)
	switch {
	case err == nil:
		entry.Status, entry.Message = string(out.Status), out.Message
		c.record(ctx, item, step, "outcome", out.Raw)
	case ledger.IsKind(err, ledger.KindTimeout):
		entry.Status, entry.Message = journal.StatusUnconfirmed, err.Error()
	default:
		entry.Message = err.Error()
	}
	c.journalPut(ctx, entry)
	return out, h.Hash, err
}

// Verify submits verify_credential and waits for its outcome.
func (c *Controller) Verify(ctx context.Context, item string) (StepResult, error) {
	return c.verify(ctx, item, Unqueried)
}

func (c *Controller) verify(ctx context.Context, item string, from State) (StepResult, error) {
	res := StepResult{Step: StepVerify, Item: item}
	action := ledger.Action{
		EntryPoint: EntryVerify,
		Args:       []ledger.Arg{ledger.IDArg(ArgCredentialID, item)},
		Payment:    c.policy.VerifyPayment,
	}
	c.transition(item, from, VerificationPending)
	out, deploy, err := c.execute(ctx, StepVerify, item, action, c.policy.VerifyTimeout, c.policy.VerifyInterval)
	res.Deploy = deploy

	switch {
	case err == nil && out.Status == ledger.OutcomeSuccess:
		res.Status, res.State = Executed, Verified
	case err == nil:
		res.Status, res.State, res.Message = Executed, VerificationFailed, out.Message
	case ledger.IsKind(err, ledger.KindTimeout):
		res.Status, res.State, res.Message = Executed, VerificationUnconfirmed, err.Error()
	default:
		res.Status, res.State, res.Message, res.Err = Failed, VerificationFailed, err.Error(), err
	}
	c.transition(item, VerificationPending, res.State)
	c.done(res)
	if halting(ctx, err) {
		return res, err
	}
	return res, nil
}

// Revoke asks for confirmation, submits revoke_credential and, on success,
// re-queries after the settle delay to check the revoked flag.
func (c *Controller) Revoke(ctx context.Context, item, reason string) (StepResult, error) {
	return c.revoke(ctx, item, reason, Unqueried, nil)
}

func (c *Controller) revoke(ctx context.Context, item, reason string, from State, before *QueryResult) (StepResult, error) {
	if reason == "" {
		reason = DefaultReason
	}
	res := StepResult{Step: StepRevoke, Item: item}

	if c.account != nil && before != nil && before.Record.Has(credential.FieldIssuer) && before.Record.Issuer != *c.account {
		w := fmt.Sprintf("signer %s is not the credential issuer %s; the contract may reject the revocation", c.account, before.Record.Issuer)
		res.Warnings = append(res.Warnings, w)
		c.log.WithField("item", item).Warn(w)
	}

	ok, err := c.confirmer.Confirm(ctx, fmt.Sprintf("Revoke credential %s (reason: %q)?", item, reason))
	if err != nil {
		res.Status, res.State, res.Message, res.Err = Failed, from, "confirmation failed: "+err.Error(), err
		c.done(res)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, nil
	}
	if !ok {
		res.Status, res.State, res.Reason = Skipped, RevocationCancelled, "revocation declined"
		c.transition(item, from, RevocationCancelled)
		return c.done(res), nil
	}

	action := ledger.Action{
		EntryPoint: EntryRevoke,
		Args:       []ledger.Arg{ledger.IDArg(ArgCredentialID, item), ledger.StringArg(ArgReason, reason)},
		Payment:    c.policy.RevokePayment,
	}
	c.transition(item, from, RevocationPending)
	out, deploy, err := c.execute(ctx, StepRevoke, item, action, c.policy.RevokeTimeout, c.policy.RevokeInterval)
	res.Deploy = deploy

	switch {
	case err == nil && out.Status == ledger.OutcomeSuccess:
		res.Status, res.State = Executed, Revoked
	case err == nil:
		res.Status, res.State, res.Message = Executed, RevocationFailed, out.Message
	case ledger.IsKind(err, ledger.KindTimeout):
		res.Status, res.State, res.Message = Executed, RevocationUnconfirmed, err.Error()
	default:
		res.Status, res.State, res.Message, res.Err = Failed, RevocationFailed, err.Error(), err
	}
	c.transition(item, RevocationPending, res.State)

	if res.State == Revoked {
		if herr := c.checkRevoked(ctx, &res); herr != nil {
			c.done(res)
			return res, herr
		}
	}
	c.done(res)
	if halting(ctx, err) {
		return res, err
	}
	return res, nil
}

// checkRevoked waits the settle delay and re-reads the record. A record that
// does not show revoked=true is a discrepancy, not a failure.
func (c *Controller) checkRevoked(ctx context.Context, res *StepResult) error {
	if err := c.clock.Sleep(ctx, c.policy.SettleDelay); err != nil {
		return err
	}
	after, err := c.query(ctx, res.Item)
	switch {
	case err == nil && after.Record.Has(credential.FieldRevoked) && after.Record.Revoked:
		c.log.WithField("item", res.Item).Info("revocation confirmed on ledger")
	case err == nil:
		res.Discrepancy = "revocation executed but the ledger still reports revoked=false"
	case errors.Is(err, ErrCredentialNotFound):
		res.Discrepancy = "credential not found when re-checking revocation"
	case halting(ctx, err):
		return err
	default:
		res.Discrepancy = "could not re-check revocation: " + err.Error()
	}
	return nil
}
