package lifecycle

// State is the lifecycle position of a credential within one run.
type State string

const (
	Unqueried               State = "unqueried"
	Queried                 State = "queried"
	NotFound                State = "not_found"
	VerificationPending     State = "verification_pending"
	Verified                State = "verified"
	VerificationFailed      State = "verification_failed"
	VerificationUnconfirmed State = "verification_unconfirmed"
	RevocationPending       State = "revocation_pending"
	Revoked                 State = "revoked"
	RevocationFailed        State = "revocation_failed"
	RevocationUnconfirmed   State = "revocation_unconfirmed"
	RevocationCancelled     State = "revocation_cancelled"
)

// Step names a workflow step.
type Step string

const (
	StepQuery  Step = "query"
	StepVerify Step = "verify"
	StepRevoke Step = "revoke"
)

// StepStatus distinguishes a step that ran and failed from one that never ran.
type StepStatus string

const (
	Executed StepStatus = "executed"
	Skipped  StepStatus = "skipped"
	Failed   StepStatus = "failed"
)

// StepResult is the report for one step.
type StepResult struct {
	Step   Step       `json:"step"`
	Item   string     `json:"item"`
	Status StepStatus `json:"status"`
	State  State      `json:"state"`
	Deploy string     `json:"deploy,omitempty"`
	// Message carries the remote execution error or failure text.
	Message string `json:"message,omitempty"`
	// Reason explains a skip.
	Reason string `json:"reason,omitempty"`
	// Discrepancy is set when a post-condition did not hold.
	Discrepancy string   `json:"discrepancy,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Err         error    `json:"-"`
}

// Succeeded reports whether the step executed and reached its goal state.
func (r StepResult) Succeeded() bool {
	if r.Status != Executed {
		return false
	}
	switch r.State {
	case Queried, Verified, Revoked:
		return true
	}
	return false
}
