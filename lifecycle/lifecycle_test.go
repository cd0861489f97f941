package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/credledger/clvalue"
	"xdao.co/credledger/compliance"
	"xdao.co/credledger/credential"
	"xdao.co/credledger/journal"
	"xdao.co/credledger/ledger"
)

func TestQuery_AssemblesRecord(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("7", false)

	q, err := h.ctrl.Query(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, ledger.RootHash("root-1"), q.Root)
	assert.Empty(t, q.Absent())

	rec := q.Record
	assert.True(t, rec.Exists())
	assert.Equal(t, uint8(87), rec.Confidence)
	assert.False(t, rec.Revoked)
	assert.Equal(t, testCID, rec.Evidence)
	assert.Equal(t, credential.Summary{Exists: true, DaysRemaining: 90, Valid: true}, q.Summary)

	assert.Equal(t, []string{"7/query/raw", "7/query/parsed"}, h.recorder.records)
	assert.Equal(t, []string{"unqueried->queried"}, h.reporter.transitions)
	require.Len(t, h.reporter.queried, 1)
}

func TestQuery_AbsentFieldsAreNotErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.node.set("holder", "TEST_VERIFY_01", keyCL(0, 0x11))
	h.node.set("revoked", "TEST_VERIFY_01", boolCL(true))

	q, err := h.ctrl.Query(context.Background(), "TEST_VERIFY_01")
	require.NoError(t, err)
	assert.Equal(t, []credential.FieldName{credential.FieldIssuer, credential.FieldConfidence, credential.FieldExpires, credential.FieldIPFS}, q.Absent())
	assert.True(t, q.Record.Revoked)
	assert.False(t, q.Summary.Valid)
}

func TestQuery_ItemZeroIsNotFound(t *testing.T) {
	h := newHarness(t, nil)

	q, err := h.ctrl.Query(context.Background(), "0")
	require.Error(t, err)
	assert.Nil(t, q, "no partial record for a missing credential")
	assert.True(t, errors.Is(err, ErrCredentialNotFound))

	reads, _ := h.node.counts()
	assert.Equal(t, 1, reads, "lookup stops at the missing primary field")
	require.Len(t, h.reporter.steps, 1)
	assert.Equal(t, NotFound, h.reporter.steps[0].State)
	assert.Equal(t, Failed, h.reporter.steps[0].Status)
}

func TestQuery_MalformedValueHalts(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("9", false)
	h.node.set("revoked", "9", map[string]any{"cl_type": "Bool", "bytes": "05"})

	wf, err := h.ctrl.Run(context.Background(), "9", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, clvalue.ErrMalformed))
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepQuery, wf.Steps[0].Step)
	assert.Empty(t, h.signer.signed())
}

func TestRun_UnknownReadMethodHalts(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("7", false)
	h.node.unsupported["state_get_dictionary_item"] = true

	wf, err := h.ctrl.Run(context.Background(), "7", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCredentialNotFound), "a protocol mismatch is not a missing credential")
	assert.True(t, ledger.IsKind(err, ledger.KindProtocol))
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, StepQuery, wf.Steps[0].Step)
	assert.NotEqual(t, NotFound, wf.State)
	assert.Empty(t, h.signer.signed())
}

func TestRun_NotFoundSkipsVerifyAndRevoke(t *testing.T) {
	h := newHarness(t, nil)

	wf, err := h.ctrl.Run(context.Background(), "0", "")
	require.NoError(t, err)
	assert.Equal(t, NotFound, wf.State)
	require.Len(t, wf.Steps, 3)
	for _, s := range []Step{StepVerify, StepRevoke} {
		r, ok := wf.Step(s)
		require.True(t, ok)
		assert.Equal(t, Skipped, r.Status)
		assert.Equal(t, "query did not succeed", r.Reason)
	}
	assert.Empty(t, h.signer.signed(), "no verify without the primary field")
	assert.Empty(t, h.confirm.prompts)
}

func TestVerify_Success(t *testing.T) {
	h := newHarness(t, nil)
	h.node.behave(EntryVerify, deployBehavior{pendingPolls: 2})

	res, err := h.ctrl.Verify(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, Executed, res.Status)
	assert.Equal(t, Verified, res.State)
	assert.Equal(t, "verify_credential-1", res.Deploy)
	assert.Equal(t, 3, h.node.pollsFor(res.Deploy))

	actions := h.signer.signed()
	require.Len(t, actions, 1)
	assert.Equal(t, uint64(3_000_000_000), actions[0].Payment)
	assert.Equal(t, []ledger.Arg{{Name: "credential_id", Type: ledger.ArgU256, Value: "7"}}, actions[0].Args)

	require.Len(t, h.journal.entries, 2)
	assert.Equal(t, journal.StatusPending, h.journal.entries[0].Status)
	assert.Equal(t, journal.StatusSuccess, h.journal.entries[1].Status)
}

func TestVerify_TimesOutAfterExactly30Polls(t *testing.T) {
	h := newHarness(t, nil)
	h.node.behave(EntryVerify, deployBehavior{pendingPolls: -1})

	res, err := h.ctrl.Verify(context.Background(), "7")
	require.NoError(t, err, "a timeout is status, not a halting error")
	assert.Equal(t, Executed, res.Status)
	assert.Equal(t, VerificationUnconfirmed, res.State)
	assert.Equal(t, 30, h.node.pollsFor(res.Deploy))
	assert.Len(t, h.clock.Sleeps(), 30)
	assert.Equal(t, 30*time.Second, h.clock.Slept())
	assert.Equal(t, journal.StatusUnconfirmed, h.journal.entries[len(h.journal.entries)-1].Status)
}

func TestVerify_ExecutionErrorKeepsRemoteMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.node.behave(EntryVerify, deployBehavior{errorMessage: "User error: 3"})

	res, err := h.ctrl.Verify(context.Background(), "TEST_VERIFY_01")
	require.NoError(t, err)
	assert.Equal(t, VerificationFailed, res.State)
	assert.Equal(t, "User error: 3", res.Message)
	assert.Equal(t, ledger.ArgString, h.signer.signed()[0].Args[0].Type)
}

func TestVerify_SignerFailureIsStepFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.signer.err = errors.New("casper-client: secret key not found")

	res, err := h.ctrl.Verify(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, Failed, res.Status)
	assert.Contains(t, res.Message, "secret key not found")
	_, submits := h.node.counts()
	assert.Zero(t, submits)
}

func TestRun_VerifyFailureDoesNotBlockRevoke(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("7", false)
	h.node.behave(EntryVerify, deployBehavior{errorMessage: "User error: 1"})
	h.node.behave(EntryRevoke, deployBehavior{pendingPolls: 1, onExecuted: func(n *chainNode) {
		n.setLocked("revoked", "7", boolCL(true))
	}})

	wf, err := h.ctrl.Run(context.Background(), "7", "Full test suite")
	require.NoError(t, err)
	require.Len(t, wf.Steps, 3)

	v, _ := wf.Step(StepVerify)
	assert.Equal(t, Executed, v.Status)
	assert.Equal(t, VerificationFailed, v.State)

	r, _ := wf.Step(StepRevoke)
	assert.Equal(t, Executed, r.Status)
	assert.Equal(t, Revoked, r.State)
	assert.Empty(t, r.Discrepancy)
	assert.Equal(t, Revoked, wf.State)

	actions := h.signer.signed()
	require.Len(t, actions, 2)
	assert.Equal(t, EntryRevoke, actions[1].EntryPoint)
	assert.Equal(t, uint64(4_000_000_000), actions[1].Payment)
	assert.Equal(t, ledger.StringArg("reason", "Full test suite"), actions[1].Args[1])

	sleeps := h.clock.Sleeps()
	assert.Equal(t, 5*time.Second, sleeps[len(sleeps)-1], "settle delay before the re-check")
	assert.Equal(t, []string{
		"unqueried->queried",
		"queried->verification_pending",
		"verification_pending->verification_failed",
		"verification_failed->revocation_pending",
		"revocation_pending->revoked",
	}, h.reporter.transitions)
}

func TestRevoke_PostCheckMismatchIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("7", false)
	h.node.behave(EntryRevoke, deployBehavior{})

	res, err := h.ctrl.Revoke(context.Background(), "7", "")
	require.NoError(t, err)
	assert.Equal(t, Executed, res.Status)
	assert.Equal(t, Revoked, res.State)
	assert.Contains(t, res.Discrepancy, "revoked=false")
	assert.Equal(t, ledger.StringArg("reason", DefaultReason), h.signer.signed()[0].Args[1])
}

func TestRevoke_DeclinedIsCancelled(t *testing.T) {
	h := newHarness(t, nil)
	h.confirm.revoke = false

	res, err := h.ctrl.Revoke(context.Background(), "7", "reason")
	require.NoError(t, err)
	assert.Equal(t, Skipped, res.Status)
	assert.Equal(t, RevocationCancelled, res.State)
	assert.Empty(t, h.signer.signed())
}

func TestRevoke_ExecutionFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.node.behave(EntryRevoke, deployBehavior{errorMessage: "User error: 2"})

	res, err := h.ctrl.Revoke(context.Background(), "7", "expired")
	require.NoError(t, err)
	assert.Equal(t, RevocationFailed, res.State)
	assert.Equal(t, "User error: 2", res.Message)
	assert.Empty(t, res.Discrepancy)
}

func TestRun_StrictModeBlocksRevokeWithoutVerification(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy.Mode = compliance.Strict })
	h.node.issue("7", false)
	h.node.behave(EntryVerify, deployBehavior{pendingPolls: -1})

	wf, err := h.ctrl.Run(context.Background(), "7", "")
	require.NoError(t, err)
	r, _ := wf.Step(StepRevoke)
	assert.Equal(t, Skipped, r.Status)
	assert.Contains(t, r.Reason, "strict mode")
	assert.Equal(t, VerificationUnconfirmed, wf.State)
	assert.Len(t, h.signer.signed(), 1)
}

func TestRun_OperatorStopsAfterQuery(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("7", false)
	h.confirm.proceed = false

	wf, err := h.ctrl.Run(context.Background(), "7", "")
	require.NoError(t, err)
	for _, s := range []Step{StepVerify, StepRevoke} {
		r, _ := wf.Step(s)
		assert.Equal(t, Skipped, r.Status)
		assert.Equal(t, "stopped by operator", r.Reason)
	}
	assert.Equal(t, Queried, wf.State)
	assert.Empty(t, h.signer.signed())
}

func TestRun_WarnsWhenSignerIsNotIssuer(t *testing.T) {
	other := clvalue.Key{Tag: clvalue.TagAccount}
	other.Hash[0] = 0x99
	h := newHarness(t, func(c *Config) { c.SignerAccount = &other })
	h.node.issue("7", false)
	h.node.behave(EntryRevoke, deployBehavior{errorMessage: "User error: 5"})

	wf, err := h.ctrl.Run(context.Background(), "7", "")
	require.NoError(t, err)
	r, _ := wf.Step(StepRevoke)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "not the credential issuer")
}

func TestRun_CancelledContextHalts(t *testing.T) {
	h := newHarness(t, nil)
	h.node.issue("7", false)
	ctx, cancel := context.WithCancel(context.Background())
	h.confirm.proceed = true
	cancel()

	_, err := h.ctrl.Run(ctx, "7", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPolicy_Defaults(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Policy = Policy{SettleDelay: 2 * time.Second} })
	p := h.ctrl.Policy()
	assert.Equal(t, 30, ledger.PollBudget(p.VerifyTimeout, p.VerifyInterval))
	assert.Equal(t, 30, ledger.PollBudget(p.RevokeTimeout, p.RevokeInterval))
	assert.Equal(t, 2*time.Second, p.SettleDelay)
	assert.Equal(t, compliance.Permissive, p.Mode)
}
