package store_test

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"kinship/internal/models"
	"kinship/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enc(t *testing.T, parts ...any) []byte {
	t.Helper()
	b, err := store.EncodeKey(parts...)
	require.NoError(t, err)
	return b
}

func TestEncodeKey_PreservesTupleOrder(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ordered := [][]any{
		{"", base},
		{"a", base.Add(-time.Hour)},
		{"a", base},
		{"a\x00", base},
		{"a\x00b", base},
		{"ab", time.Unix(-5, 0)},
		{"ab", base},
		{"b", base},
	}
	for i := 1; i < len(ordered); i++ {
		prev := enc(t, ordered[i-1]...)
		cur := enc(t, ordered[i]...)
		assert.Negative(t, bytes.Compare(prev, cur), "%v should sort before %v", ordered[i-1], ordered[i])
	}
}

func TestEncodeKey_Ints(t *testing.T) {
	values := []int{-1 << 40, -2, -1, 0, 1, 2, 1 << 40}
	keys := make([][]byte, len(values))
	for i, v := range values {
		keys[i] = enc(t, v)
	}
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 }))
}

func TestEncodeKey_NamedStringsAndBools(t *testing.T) {
	assert.Equal(t, enc(t, "male"), enc(t, models.GenderMale))
	assert.Negative(t, bytes.Compare(enc(t, false), enc(t, true)))
}

func TestEncodeKey_Unsupported(t *testing.T) {
	_, err := store.EncodeKey(3.14)
	assert.Error(t, err)

	_, err = store.EncodeKey(store.Prefix("ab"), "c")
	assert.Error(t, err, "Prefix must be last")
}

func TestPrefixRange(t *testing.T) {
	r := store.PrefixRange(enc(t, "18-100", store.Prefix("ali")))

	inside := [][]byte{
		enc(t, "18-100", "ali", "id1"),
		enc(t, "18-100", "alice", "id2"),
		enc(t, "18-100", "aliénor", "id3"),
	}
	outside := [][]byte{
		enc(t, "18-100", "al", "id4"),
		enc(t, "18-100", "alj", "id5"),
		enc(t, "13-17", "alice", "id6"),
	}
	within := func(k []byte) bool {
		return bytes.Compare(k, r.Start) >= 0 && bytes.Compare(k, r.End) < 0
	}
	for _, k := range inside {
		assert.True(t, within(k))
	}
	for _, k := range outside {
		assert.False(t, within(k))
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"zoe", "saldana"}, store.Tokens("Zoë  SALDAÑA"))
	assert.Equal(t, []string{"anna"}, store.Tokens("Anna anna"))
	assert.Equal(t, []string{"cool.kid_99", "cool", "kid", "99"}, store.HandleTokens("Cool.Kid_99"))
	assert.Equal(t, []string{"bob"}, store.HandleTokens("bob"))
}

func TestCursorRoundTrip(t *testing.T) {
	key := enc(t, "x", "id")
	token := store.EncodeCursor(store.PostByCreated, key, true, "filter")

	got, err := store.DecodeCursor(token, store.PostByCreated, true, "filter")
	require.NoError(t, err)
	assert.Equal(t, key, got)

	_, err = store.DecodeCursor(token, store.PostByOwner, true, "filter")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = store.DecodeCursor(token, store.PostByCreated, true, "other")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = store.DecodeCursor("!!not-base64", store.PostByCreated, true, "filter")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	got, err = store.DecodeCursor("", store.PostByCreated, true, "filter")
	require.NoError(t, err)
	assert.Nil(t, got)
}
