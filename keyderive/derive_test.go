package keyderive

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/credledger/clencode"
)

func TestParseSeed_Forms(t *testing.T) {
	const hexSeed = "cba216bb0cfce8922e46d178c9e65a75b821ea85599abe811700dbe07cb4e13f"
	for _, in := range []string{TestLocator, "hash-" + hexSeed, hexSeed, "  " + hexSeed + "\n"} {
		s, err := ParseSeed(in)
		require.NoError(t, err, in)
		assert.Equal(t, hexSeed, s.String(), in)
	}
}

func TestParseSeed_Rejects(t *testing.T) {
	bad := []string{
		"",
		"uref-cba216bb0cfce8922e46d178c9e65a75b821ea85599abe811700dbe07cb4e13f",
		"uref-cba216bb0cfce8922e46d178c9e65a75b821ea85599abe811700dbe07cb4e13f-7",
		"uref-cba216bb0cfce8922e46d178c9e65a75b821ea85599abe811700dbe07cb4e13f-009",
		"hash-cba216",
		"zz" + strings.Repeat("0", 62),
	}
	for _, in := range bad {
		_, err := ParseSeed(in)
		assert.Error(t, err, in)
	}
}

func TestDerive_KnownVectors(t *testing.T) {
	seed := MustParseSeed(TestLocator)
	cases := []struct {
		field, item, want string
	}{
		{"holder", "TEST_VERIFY_01", "dictionary-19ee565d2d48154a9241db492d694434b6fad89869b04b60ab518c01c1ed3915"},
		{"cred_holder", "TEST_VERIFY_01", "dictionary-19ee565d2d48154a9241db492d694434b6fad89869b04b60ab518c01c1ed3915"},
		{"confidence", "FRESH_TEST", "dictionary-eacf1f5d1c11758b392265a7b11839b572451483d044eb840bc3520106ec6cf7"},
		{"holder", "FRESH_TEST", "dictionary-7ad8dc688a92364c4ace72905745cd6bbea9a83aed7da9b228ae1a716f41304a"},
		{"holder", "0", "dictionary-85f722498efbba8b39a471efc5bf157ad91fe4c2517c7016841a664c1f1cd65e"},
		{"ipfs", "42", "dictionary-6b02070a1127137a486c5066e92118733e448d6450fa28b815f515d41da22760"},
	}
	for _, tc := range cases {
		got, err := Derive(seed, tc.field, tc.item)
		require.NoError(t, err, "%s/%s", tc.field, tc.item)
		assert.Equal(t, tc.want, got.String(), "%s/%s", tc.field, tc.item)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	seed := MustParseSeed(TestLocator)
	d := NewDeriver(seed)
	for _, item := range []string{"0", "1", "TEST_VERIFY_01", strings.Repeat("q", 200)} {
		a, err := d.Derive("revoked", item)
		require.NoError(t, err)
		b, err := Derive(seed, "revoked", item)
		require.NoError(t, err)
		assert.Equal(t, a, b, item)
	}
}

func TestDerive_FieldSensitivity(t *testing.T) {
	seed := MustParseSeed(TestLocator)
	seen := map[Address]string{}
	for _, p := range ObservedPairs() {
		if p.Item != "TEST_VERIFY_01" {
			continue
		}
		a, err := Derive(seed, p.Field, p.Item)
		require.NoError(t, err)
		prev, dup := seen[a]
		require.False(t, dup, "fields %q and %q derived the same address", prev, p.Field)
		seen[a] = p.Field
	}
	assert.Len(t, seen, 6)
}

func TestDerive_UnknownField(t *testing.T) {
	_, err := Derive(MustParseSeed(TestLocator), "balances", "7")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFieldIndex(t *testing.T) {
	for field, want := range map[string]uint32{"owner": 1, "holder": 2, "cred_issuer": 3, "ipfs": 7, "access_level": 8} {
		got, err := FieldIndex(field, 1)
		require.NoError(t, err, field)
		assert.Equal(t, want, got, field)
	}
	got, err := FieldIndex("holder", 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got)

	_, err = FieldIndex("cred_owner", 1)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestFlatScheme_OrderMatters(t *testing.T) {
	seed := MustParseSeed(TestLocator)
	fieldFirst, err := Scheme{Hash: HashBlake2b256, Prefix: PrefixCompact}.Derive(seed, "holder", "TEST_VERIFY_01")
	require.NoError(t, err)
	itemFirst, err := Scheme{Hash: HashBlake2b256, Prefix: PrefixCompact, Order: ItemFirst}.Derive(seed, "holder", "TEST_VERIFY_01")
	require.NoError(t, err)

	assert.Equal(t, "b7729c4a11566f2903dfce56050bdd6516627fc547692fdeada9e6f5a514cc5e", fieldFirst.Hex())
	assert.Equal(t, "8e968aa4d0f48c6a99c7a3baaa39f65741dda4008dc87eac1abc77a695efd529", itemFirst.Hex())
}

func TestScheme_EncodingErrorPropagates(t *testing.T) {
	if os.Getenv("CREDLEDGER_LARGE_TESTS") == "" {
		t.Skip("allocates a 1 GiB item id; set CREDLEDGER_LARGE_TESTS=1")
	}
	seed := MustParseSeed(TestLocator)
	huge := strings.Repeat("x", clencode.MaxLength+1)
	_, err := Scheme{Hash: HashBlake2b256, Prefix: PrefixCompact}.Derive(seed, "holder", huge)
	var e *clencode.EncodingError
	assert.ErrorAs(t, err, &e)
}

func TestPreimage_Layout(t *testing.T) {
	seed := MustParseSeed(TestLocator)

	key, err := Production.ItemKey("holder", "0")
	require.NoError(t, err)
	assert.Equal(t, "85224cd292c1c69c60244836dcb050735683ecd558a511759c081d9ea365a97b", string(key))
	pre, err := Production.Preimage(seed, "holder", "0")
	require.NoError(t, err)
	assert.Equal(t, append(seed.Bytes(), key...), pre)

	raw := Production
	raw.Key = KeyRaw
	rawKey, err := raw.ItemKey("holder", "0")
	require.NoError(t, err)
	assert.Equal(t, string(key), Address(rawKey).Hex())

	v, err := Scheme{Hash: HashSHA256, Prefix: PrefixU32BE, Order: ItemFirst, Versioned: true}.Preimage(seed, "ab", "c")
	require.NoError(t, err)
	want := append([]byte{VersionByte}, seed.Bytes()...)
	want = append(want, 0, 0, 0, 1, 'c', 0, 0, 0, 2, 'a', 'b')
	assert.Equal(t, want, v)

	_, err = Scheme{Hash: HashSHA256}.ItemKey("holder", "0")
	assert.Error(t, err, "flat schemes have no item key")
}

func TestParseAddress_RoundTrip(t *testing.T) {
	seed := MustParseSeed(TestLocator)
	a, err := Derive(seed, "ipfs", "TEST_VERIFY_01")
	require.NoError(t, err)
	for _, s := range []string{a.String(), a.Hex()} {
		b, err := ParseAddress(s)
		require.NoError(t, err, s)
		assert.Equal(t, a, b)
	}
	_, err = ParseAddress("dictionary-abcd")
	assert.Error(t, err)
}
