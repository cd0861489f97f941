package ledger

import (
	"encoding/json"
	"time"

	"xdao.co/credledger/clvalue"
)

// RootHash identifies a global state snapshot.
type RootHash string

// StoredValue is a dictionary entry read from the node.
type StoredValue struct {
	// DictionaryKey is the address the node resolved, as "dictionary-<hex>".
	DictionaryKey string
	Value         *clvalue.Value
	// Raw is the undecoded result object, kept for artifact persistence.
	Raw json.RawMessage
}

// SignedAction is a deploy produced by a Signer, ready to submit.
type SignedAction struct {
	Hash   string
	Deploy json.RawMessage
}

// PendingHandle tracks a submitted action.
type PendingHandle struct {
	Hash        string    `json:"hash"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// OutcomeStatus is the execution state of a submitted action.
type OutcomeStatus string

const (
	OutcomePending        OutcomeStatus = "pending"
	OutcomeSuccess        OutcomeStatus = "success"
	OutcomeExecutionError OutcomeStatus = "execution_error"
)

// Outcome is the observed result of a submitted action. Message carries the
// remote error text for OutcomeExecutionError.
type Outcome struct {
	Status  OutcomeStatus   `json:"status"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

func (o Outcome) Done() bool { return o.Status == OutcomeSuccess || o.Status == OutcomeExecutionError }
