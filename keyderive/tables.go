package keyderive

import "fmt"

// TestLocator is the state dictionary locator of the test-network credential
// contract the calibration tables were recorded against.
const TestLocator = "uref-cba216bb0cfce8922e46d178c9e65a75b821ea85599abe811700dbe07cb4e13f-007"

type pairRow struct {
	field, item, address string
}

// observedRows are dictionary keys read back from the live test network for
// credentials issued through the contract under TestLocator.
var observedRows = []pairRow{
	{"holder", "TEST_VERIFY_01", "19ee565d2d48154a9241db492d694434b6fad89869b04b60ab518c01c1ed3915"},
	{"revoked", "TEST_VERIFY_01", "656f1333aee5cdcf4b64da8fcc06b9d5c8269776631c3b8b95a684660b125bfe"},
	{"expires", "TEST_VERIFY_01", "cd682e658b51963f9718eacff74da2f1532ebf28a317f5c69039576c1e7e8ca6"},
	{"issuer", "TEST_VERIFY_01", "9e60800be1d208524fbcb569c1a56943457ddd30483ec3248f7182034dc014f8"},
	{"confidence", "TEST_VERIFY_01", "0ffdb027f8a91eb27162fa7dd14ad22d492a5e8a7c7270b372fa8c05714c5324"},
	{"ipfs", "TEST_VERIFY_01", "59cf645ab10ccf75bd6037686110df2c54f16876630710f2dcb3474b6dc4bc62"},
	{"confidence", "FRESH_TEST", "eacf1f5d1c11758b392265a7b11839b572451483d044eb840bc3520106ec6cf7"},
}

func buildPairs(locator string, rows []pairRow) []KnownPair {
	seed := MustParseSeed(locator)
	out := make([]KnownPair, 0, len(rows))
	for _, r := range rows {
		addr, err := ParseAddress(r.address)
		if err != nil {
			panic(err)
		}
		out = append(out, KnownPair{Seed: seed, Field: r.field, Item: r.item, Address: addr})
	}
	return out
}

// ObservedPairs returns the digests recorded from the live network against
// TestLocator. It is the table that fixes Production.
func ObservedPairs() []KnownPair { return buildPairs(TestLocator, observedRows) }

// PairTable is the on-disk form of a calibration table.
//
//	{"locator": "uref-...-007", "pairs": [{"field": "holder", "item": "7", "address": "dictionary-..."}]}
type PairTable struct {
	Locator string      `json:"locator"`
	Pairs   []TablePair `json:"pairs"`
}

// TablePair is one row of a PairTable.
type TablePair struct {
	Field   string `json:"field"`
	Item    string `json:"item"`
	Address string `json:"address"`
}

// KnownPairs validates the table and converts it.
func (t PairTable) KnownPairs() ([]KnownPair, error) {
	seed, err := ParseSeed(t.Locator)
	if err != nil {
		return nil, err
	}
	out := make([]KnownPair, 0, len(t.Pairs))
	for i, p := range t.Pairs {
		addr, err := ParseAddress(p.Address)
		if err != nil {
			return nil, fmt.Errorf("keyderive: pair[%d]: %w", i, err)
		}
		if p.Field == "" {
			return nil, fmt.Errorf("keyderive: pair[%d]: empty field", i)
		}
		out = append(out, KnownPair{Seed: seed, Field: p.Field, Item: p.Item, Address: addr})
	}
	return out, nil
}
