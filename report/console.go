// Package report renders lifecycle progress for an operator at a terminal
// and asks for confirmation between steps.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"xdao.co/credledger/credential"
	"xdao.co/credledger/lifecycle"
)

const rule = "────────────────────────────────────────────────────────"

// Console writes a human readable account of a run. It implements
// lifecycle.Reporter.
type Console struct {
	mu   sync.Mutex
	out  io.Writer
	head *color.Color
	ok   *color.Color
	bad  *color.Color
	warn *color.Color
	dim  *color.Color
}

// NewConsole writes to out. Colors are disabled unless colored is true.
func NewConsole(out io.Writer, colored bool) *Console {
	c := &Console{
		out:  out,
		head: color.New(color.FgCyan, color.Bold),
		ok:   color.New(color.FgGreen),
		bad:  color.New(color.FgRed),
		warn: color.New(color.FgYellow),
		dim:  color.New(color.FgHiBlack),
	}
	for _, cc := range []*color.Color{c.head, c.ok, c.bad, c.warn, c.dim} {
		if colored {
			cc.EnableColor()
		} else {
			cc.DisableColor()
		}
	}
	return c
}

func (c *Console) Transition(item string, from, to lifecycle.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim.Fprintf(c.out, "  %s: %s -> %s\n", item, from, to)
}

func (c *Console) Queried(q *lifecycle.QueryResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.Fprintf(c.out, "\nCredential %s\n", q.Item)
	fmt.Fprintf(c.out, "  state root: %s\n", q.Root)
	if r := q.Record; r != nil && r.Exists() {
		fmt.Fprintf(c.out, "  holder:     %s\n", r.Holder)
		if r.Has(credential.FieldIssuer) {
			fmt.Fprintf(c.out, "  issuer:     %s\n", r.Issuer)
		}
		if r.Has(credential.FieldConfidence) {
			fmt.Fprintf(c.out, "  confidence: %d\n", r.Confidence)
		}
		if exp, ok := r.ExpiresAt(); ok {
			fmt.Fprintf(c.out, "  expires:    %s\n", exp.Format("2006-01-02 15:04:05 MST"))
		}
		if r.Has(credential.FieldIPFS) {
			fmt.Fprintf(c.out, "  evidence:   %s\n", r.Evidence)
		}
	}
	if absent := q.Absent(); len(absent) > 0 {
		names := make([]string, len(absent))
		for i, f := range absent {
			names[i] = string(f)
		}
		c.dim.Fprintf(c.out, "  absent:     %s\n", strings.Join(names, ", "))
	}

	s := q.Summary
	fmt.Fprintf(c.out, "  exists=%s revoked=%s expired=%s days_remaining=%d\n",
		yesNo(s.Exists), yesNo(s.Revoked), yesNo(s.Expired), s.DaysRemaining)
	if s.Valid {
		c.ok.Fprintln(c.out, "  ✓ valid")
	} else {
		c.bad.Fprintln(c.out, "  ✗ not valid")
	}
}

func (c *Console) StepDone(r lifecycle.StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepLine(r)
}

func (c *Console) stepLine(r lifecycle.StepResult) {
	label := fmt.Sprintf("%-7s %-9s %s", r.Step, r.Status, r.State)
	switch {
	case r.Status == lifecycle.Skipped:
		c.dim.Fprintf(c.out, "  - %s", label)
		if r.Reason != "" {
			c.dim.Fprintf(c.out, " (%s)", r.Reason)
		}
		fmt.Fprintln(c.out)
	case r.Succeeded() && r.Discrepancy == "":
		c.ok.Fprintf(c.out, "  ✓ %s", label)
		if r.Deploy != "" {
			fmt.Fprintf(c.out, " deploy=%s", r.Deploy)
		}
		fmt.Fprintln(c.out)
	default:
		c.bad.Fprintf(c.out, "  ✗ %s", label)
		if r.Deploy != "" {
			fmt.Fprintf(c.out, " deploy=%s", r.Deploy)
		}
		fmt.Fprintln(c.out)
		if r.Message != "" {
			c.bad.Fprintf(c.out, "      %s\n", r.Message)
		}
	}
	if r.Discrepancy != "" {
		c.warn.Fprintf(c.out, "      ⚠ %s\n", r.Discrepancy)
	}
	for _, w := range r.Warnings {
		c.warn.Fprintf(c.out, "      ⚠ %s\n", w)
	}
}

// Workflow prints the closing summary of a run.
func (c *Console) Workflow(w *lifecycle.Workflow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.Fprintln(c.out, rule)
	fmt.Fprintf(c.out, "Run %s  item=%s  mode=%s  reason=%q\n", w.RunID, w.Item, w.Mode, w.Reason)
	for _, r := range w.Steps {
		c.stepLine(r)
	}
	final := c.ok
	switch w.State {
	case lifecycle.Revoked, lifecycle.Verified, lifecycle.Queried:
	case lifecycle.RevocationCancelled, lifecycle.VerificationUnconfirmed, lifecycle.RevocationUnconfirmed:
		final = c.warn
	default:
		final = c.bad
	}
	final.Fprintf(c.out, "Final state: %s (%s)\n", w.State, w.FinishedAt.Sub(w.StartedAt).Round(time.Millisecond))
	c.head.Fprintln(c.out, rule)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
