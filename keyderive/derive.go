// Package keyderive derives the storage address of a dictionary entry from a
// namespace seed, a mapping (field) name and an item id.
//
// Production derivation is fixed to the contract's indexed storage layout:
//
//	key     = hex(blake2b-256(u32be(index(field)) ∥ u32le(len(item)) ∥ item))
//	address = blake2b-256(seed ∥ key)
//
// where index numbers ContractFields from 1. The calibration harness in this
// package exists only to re-validate that choice against observed
// (seed, field, item) → address pairs; it is never consulted by Derive.
package keyderive

// Production is the scheme used by Derive. TestCalibration_ObservedSelectsProduction
// re-runs the observed table and fails if this stops being the unique match.
var Production = Scheme{
	Layout: Indexed,
	Hash:   HashBlake2b256,
	Prefix: PrefixU32LE,
	Index:  IndexU32BE,
	Base:   1,
	Key:    KeyHex,
}

// Derive returns the storage address of item within the field mapping of seed.
// It fails with ErrUnknownField for a field outside ContractFields, or with a
// *clencode.EncodingError for an item too long to encode.
func Derive(seed NamespaceSeed, field, item string) (Address, error) {
	return Production.Derive(seed, field, item)
}

// Deriver binds Derive to a single namespace seed.
type Deriver struct {
	seed NamespaceSeed
}

func NewDeriver(seed NamespaceSeed) *Deriver {
	return &Deriver{seed: seed}
}

func (d *Deriver) Seed() NamespaceSeed { return d.seed }

func (d *Deriver) Derive(field, item string) (Address, error) {
	return Derive(d.seed, field, item)
}
