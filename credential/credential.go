// Package credential describes the credential record held by the ledger
// contract: its field set, the decoded record and its validity summary.
package credential

import (
	"fmt"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/credledger/clvalue"
)

// FieldName names one dictionary of the credential contract.
type FieldName string

const (
	FieldHolder     FieldName = "holder"
	FieldIssuer     FieldName = "issuer"
	FieldConfidence FieldName = "confidence"
	FieldExpires    FieldName = "expires"
	FieldRevoked    FieldName = "revoked"
	FieldIPFS       FieldName = "ipfs"
)

// Primary is the field whose absence means the credential does not exist.
const Primary = FieldHolder

var fields = []FieldName{FieldHolder, FieldIssuer, FieldConfidence, FieldExpires, FieldRevoked, FieldIPFS}

// Fields returns the schema's fields, primary first.
func Fields() []FieldName {
	out := make([]FieldName, len(fields))
	copy(out, fields)
	return out
}

func (f FieldName) Valid() bool {
	for _, k := range fields {
		if k == f {
			return true
		}
	}
	return false
}

func (f FieldName) bit() uint8 {
	for i, k := range fields {
		if k == f {
			return 1 << i
		}
	}
	return 0
}

// MaxConfidence bounds the confidence field.
const MaxConfidence = 100

// Record is a credential as observed on the ledger. Fields not present on
// the ledger keep their zero value and report false from Has.
type Record struct {
	ID         string
	Holder     clvalue.Key
	Issuer     clvalue.Key
	Confidence uint8
	Expires    uint64 // unix millis
	Revoked    bool
	Evidence   string

	present uint8
}

// Has reports whether the field was present on the ledger.
func (r *Record) Has(f FieldName) bool { return r.present&f.bit() != 0 }

// Exists reports whether the primary field was present.
func (r *Record) Exists() bool { return r.Has(Primary) }

// Present lists the present fields in schema order.
func (r *Record) Present() []FieldName {
	var out []FieldName
	for _, f := range fields {
		if r.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Set decodes v into the field f and marks it present.
func (r *Record) Set(f FieldName, v *clvalue.Value) error {
	var err error
	switch f {
	case FieldHolder:
		r.Holder, err = v.Key()
	case FieldIssuer:
		r.Issuer, err = v.Key()
	case FieldConfidence:
		var c uint8
		c, err = v.U8()
		if err == nil && c > MaxConfidence {
			err = fmt.Errorf("%w: confidence %d exceeds %d", clvalue.ErrMalformed, c, MaxConfidence)
		}
		r.Confidence = c
	case FieldExpires:
		r.Expires, err = v.U64()
	case FieldRevoked:
		r.Revoked, err = v.Bool()
	case FieldIPFS:
		r.Evidence, err = v.String()
	default:
		return fmt.Errorf("credential: unknown field %q", f)
	}
	if err != nil {
		return fmt.Errorf("credential: field %s: %w", f, err)
	}
	r.present |= f.bit()
	return nil
}

// ExpiresAt returns the expiry as a time; ok is false when the field is absent.
func (r *Record) ExpiresAt() (t time.Time, ok bool) {
	if !r.Has(FieldExpires) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(r.Expires)).UTC(), true
}

// EvidenceCID parses the evidence pointer.
func (r *Record) EvidenceCID() (cid.Cid, error) {
	if !r.Has(FieldIPFS) || r.Evidence == "" {
		return cid.Undef, fmt.Errorf("credential: no evidence pointer")
	}
	c, err := cid.Decode(r.Evidence)
	if err != nil {
		return cid.Undef, fmt.Errorf("credential: evidence pointer %q: %w", r.Evidence, err)
	}
	return c, nil
}

// Summary is the validity view printed after a query.
type Summary struct {
	Exists        bool `json:"exists"`
	Revoked       bool `json:"revoked"`
	Expired       bool `json:"expired"`
	DaysRemaining int  `json:"days_remaining"`
	Valid         bool `json:"valid"`
}

// Summarize evaluates the record at now.
func (r *Record) Summarize(now time.Time) Summary {
	s := Summary{Exists: r.Exists(), Revoked: r.Revoked}
	if exp, ok := r.ExpiresAt(); ok {
		left := exp.Sub(now)
		s.Expired = left <= 0
		if !s.Expired {
			s.DaysRemaining = int(left / (24 * time.Hour))
		}
	}
	s.Valid = s.Exists && !s.Revoked && !s.Expired
	return s
}
