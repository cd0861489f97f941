package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"xdao.co/credledger/credential"
	"xdao.co/credledger/keyderive"
	"xdao.co/credledger/ledger"
)

// FieldRead records where a field was looked up and whether it was present.
type FieldRead struct {
	Field   credential.FieldName `json:"field"`
	Address keyderive.Address    `json:"-"`
	Present bool                 `json:"present"`
}

// QueryResult is a credential as read at one state root.
type QueryResult struct {
	Item    string             `json:"item"`
	Root    ledger.RootHash    `json:"state_root_hash"`
	At      time.Time          `json:"at"`
	Record  *credential.Record `json:"-"`
	Fields  []FieldRead        `json:"fields"`
	Summary credential.Summary `json:"summary"`
}

// Absent lists the fields that were not present.
func (q *QueryResult) Absent() []credential.FieldName {
	var out []credential.FieldName
	for _, f := range q.Fields {
		if !f.Present {
			out = append(out, f.Field)
		}
	}
	return out
}

type parsedRecord struct {
	ID         string             `json:"id"`
	Root       ledger.RootHash    `json:"state_root_hash"`
	Holder     string             `json:"holder,omitempty"`
	Issuer     string             `json:"issuer,omitempty"`
	Confidence *uint8             `json:"confidence,omitempty"`
	Expires    *uint64            `json:"expires,omitempty"`
	Revoked    *bool              `json:"revoked,omitempty"`
	Evidence   string             `json:"ipfs,omitempty"`
	Absent     []string           `json:"absent,omitempty"`
	Summary    credential.Summary `json:"summary"`
}

func (q *QueryResult) parsed() parsedRecord {
	r := q.Record
	p := parsedRecord{ID: q.Item, Root: q.Root, Summary: q.Summary}
	if r.Has(credential.FieldHolder) {
		p.Holder = r.Holder.String()
	}
	if r.Has(credential.FieldIssuer) {
		p.Issuer = r.Issuer.String()
	}
	if r.Has(credential.FieldConfidence) {
		v := r.Confidence
		p.Confidence = &v
	}
	if r.Has(credential.FieldExpires) {
		v := r.Expires
		p.Expires = &v
	}
	if r.Has(credential.FieldRevoked) {
		v := r.Revoked
		p.Revoked = &v
	}
	if r.Has(credential.FieldIPFS) {
		p.Evidence = r.Evidence
	}
	for _, f := range q.Absent() {
		p.Absent = append(p.Absent, string(f))
	}
	return p
}

// Query resolves the current root and reads every field of the record in
// schema order. Absent fields are recorded as absent. If the primary field
// is absent the whole record is ErrCredentialNotFound.
func (c *Controller) Query(ctx context.Context, item string) (*QueryResult, error) {
	res, _, err := c.runQuery(ctx, item, Unqueried)
	return res, err
}

func (c *Controller) runQuery(ctx context.Context, item string, from State) (*QueryResult, StepResult, error) {
	step := StepResult{Step: StepQuery, Item: item}
	q, err := c.query(ctx, item)
	switch {
	case err == nil:
		step.Status, step.State = Executed, Queried
		if absent := q.Absent(); len(absent) > 0 {
			step.Message = fmt.Sprintf("absent fields: %v", absent)
		}
		c.transition(item, from, Queried)
		c.reporter.Queried(q)
	default:
		step.Status, step.Message, step.Err = Failed, err.Error(), err
		step.State = from
		if isNotFound(err) {
			step.State = NotFound
			c.transition(item, from, NotFound)
		}
	}
	c.done(step)
	return q, step, err
}

func (c *Controller) query(ctx context.Context, item string) (*QueryResult, error) {
	log := c.log.WithField("item", item)
	root, err := c.ledger.CurrentRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: resolve state root: %w", err)
	}
	log.WithField("root", string(root)).Debug("state root resolved")

	q := &QueryResult{Item: item, Root: root, At: c.clock.Now(), Record: &credential.Record{ID: item}}
	raw := map[string]json.RawMessage{}
	for _, f := range credential.Fields() {
		addr, err := c.deriver.Derive(string(f), item)
		if err != nil {
			return nil, fmt.Errorf("lifecycle: derive %s/%s: %w", f, item, err)
		}
		flog := log.WithFields(map[string]interface{}{"field": string(f), "address": addr.String()})

		sv, err := c.ledger.Read(ctx, root, addr)
		if ledger.IsNotFound(err) {
			flog.Debug("field absent")
			q.Fields = append(q.Fields, FieldRead{Field: f, Address: addr})
			if f == credential.Primary {
				c.recordJSON(ctx, item, StepQuery, "raw", map[string]any{"state_root_hash": root, "fields": raw})
				return nil, fmt.Errorf("%w: item %q has no %s at %s", ErrCredentialNotFound, item, f, addr)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lifecycle: read %s: %w", f, err)
		}
		if err := q.Record.Set(f, sv.Value); err != nil {
			return nil, fmt.Errorf("lifecycle: %w", err)
		}
		raw[string(f)] = sv.Raw
		q.Fields = append(q.Fields, FieldRead{Field: f, Address: addr, Present: true})
		flog.Debug("field read")
	}
	q.Summary = q.Record.Summarize(q.At)

	c.recordJSON(ctx, item, StepQuery, "raw", map[string]any{"state_root_hash": root, "fields": raw})
	c.recordJSON(ctx, item, StepQuery, "parsed", q.parsed())
	return q, nil
}

func (c *Controller) recordJSON(ctx context.Context, item string, step Step, kind string, v any) {
	if c.recorder == nil {
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.log.WithField("item", item).Warnf("artifact %s not encoded: %v", kind, err)
		return
	}
	c.record(ctx, item, step, kind, b)
}
