package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Workflow is the report of one Run.
type Workflow struct {
	RunID      string       `json:"run_id"`
	Item       string       `json:"item"`
	Reason     string       `json:"reason"`
	Mode       string       `json:"mode"`
	State      State        `json:"state"`
	Query      *QueryResult `json:"query,omitempty"`
	Steps      []StepResult `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Step returns the result recorded for s.
func (w *Workflow) Step(s Step) (StepResult, bool) {
	for _, r := range w.Steps {
		if r.Step == s {
			return r, true
		}
	}
	return StepResult{}, false
}

func (w *Workflow) add(r StepResult) {
	w.Steps = append(w.Steps, r)
	if r.Status != Skipped || r.State == RevocationCancelled {
		w.State = r.State
	}
}

func isNotFound(err error) bool { return errors.Is(err, ErrCredentialNotFound) }

func (c *Controller) skip(w *Workflow, s Step, reason string) {
	w.add(c.done(StepResult{Step: s, Item: w.Item, Status: Skipped, State: w.State, Reason: reason}))
}

// proceed asks the operator whether to continue with the next step.
func (c *Controller) proceed(ctx context.Context, w *Workflow, next Step) (bool, error) {
	ok, err := c.confirmer.Confirm(ctx, fmt.Sprintf("Continue to %s credential %s?", next, w.Item))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.log.WithField("item", w.Item).Warnf("confirmation failed: %v", err)
		return false, nil
	}
	return ok, nil
}

// Run executes query, verify and revoke in order. Query must succeed before
// Verify is attempted. A failed or unconfirmed verification does not prevent
// Revoke unless the policy mode is strict. The operator is asked before each
// following step; declining skips the rest.
func (c *Controller) Run(ctx context.Context, item, reason string) (*Workflow, error) {
	if reason == "" {
		reason = DefaultReason
	}
	w := &Workflow{
		RunID:     uuid.NewString(),
		Item:      item,
		Reason:    reason,
		Mode:      c.policy.Mode.String(),
		State:     Unqueried,
		StartedAt: c.clock.Now(),
	}
	log := c.log.WithFields(map[string]interface{}{"run": w.RunID, "item": item})
	log.Infof("workflow started (%s mode)", w.Mode)
	defer func() {
		w.FinishedAt = c.clock.Now()
		log.WithField("state", string(w.State)).Info("workflow finished")
	}()

	q, qstep, err := c.runQuery(ctx, item, w.State)
	w.add(qstep)
	w.Query = q
	if halting(ctx, err) {
		return w, err
	}
	if qstep.Status != Executed {
		c.skip(w, StepVerify, "query did not succeed")
		c.skip(w, StepRevoke, "query did not succeed")
		return w, nil
	}

	ok, err := c.proceed(ctx, w, StepVerify)
	if err != nil {
		return w, err
	}
	if !ok {
		c.skip(w, StepVerify, "stopped by operator")
		c.skip(w, StepRevoke, "stopped by operator")
		return w, nil
	}

	vstep, err := c.verify(ctx, item, w.State)
	w.add(vstep)
	if err != nil {
		return w, err
	}

	ok, err = c.proceed(ctx, w, StepRevoke)
	if err != nil {
		return w, err
	}
	if !ok {
		c.skip(w, StepRevoke, "stopped by operator")
		return w, nil
	}

	if vstep.State != Verified {
		if c.policy.Mode.GatesRevocation() {
			c.skip(w, StepRevoke, fmt.Sprintf("strict mode requires a verified credential (verification %s)", vstep.State))
			return w, nil
		}
		log.Warnf("verification ended %s; continuing to revoke", vstep.State)
	}

	rstep, err := c.revoke(ctx, item, reason, w.State, q)
	w.add(rstep)
	return w, err
}
