package notified_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"silverscout/internal/notified"
	"silverscout/internal/state"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const url = "https://goldsilver.be/nl/maple-leaf"

func TestMarkThenWasNotified(t *testing.T) {
	t.Parallel()
	l, err := notified.Load(t.Context(), state.NewMemoryStore())
	require.NoError(t, err)

	require.False(t, l.WasNotified(url, d("40"), d("40")))

	l.MarkNotified(url, d("40.00"), d("40.00"))
	require.True(t, l.WasNotified(url, d("40"), d("40")))
	require.True(t, l.WasNotified(url, d("40.001"), d("39.999")), "compared at cent precision")

	// Assert: any price move re-opens the listing.
	require.False(t, l.WasNotified(url, d("40"), d("41")))
	require.False(t, l.WasNotified(url, d("39.99"), d("40")))
	require.False(t, l.WasNotified(url+"?v=2", d("40"), d("40")))

	// Act: overwrite with new terms.
	l.MarkNotified(url, d("41"), d("41"))
	require.True(t, l.WasNotified(url, d("41"), d("41")))
	require.False(t, l.WasNotified(url, d("40"), d("40")))
	require.Equal(t, 1, l.Len())
}

func TestSave_RoundTrips(t *testing.T) {
	t.Parallel()
	s := state.NewMemoryStore()
	l, err := notified.Load(t.Context(), s)
	require.NoError(t, err)

	// Assert: nothing is written when nothing changed.
	require.NoError(t, l.Save(t.Context()))
	_, err = s.Get(t.Context(), state.KeyNotifiedDeals)
	require.ErrorIs(t, err, state.ErrNotFound)

	l.MarkNotified(url, d("40"), d("40"))
	require.NoError(t, l.Save(t.Context()))

	again, err := notified.Load(t.Context(), s)
	require.NoError(t, err)
	require.True(t, again.WasNotified(url, d("40"), d("40")))
	require.False(t, again.WasNotified(url, d("40"), d("41")))

	// Act: a second save in the same run still succeeds against its own write.
	l.MarkNotified(url, d("41"), d("41"))
	require.NoError(t, l.Save(t.Context()))
}

func TestSave_ConflictWithOverlappingRun(t *testing.T) {
	t.Parallel()
	s := state.NewMemoryStore()
	a, err := notified.Load(t.Context(), s)
	require.NoError(t, err)
	b, err := notified.Load(t.Context(), s)
	require.NoError(t, err)

	a.MarkNotified(url, d("40"), d("40"))
	require.NoError(t, a.Save(t.Context()))

	b.MarkNotified(url, d("40"), d("40"))
	require.ErrorIs(t, b.Save(t.Context()), state.ErrConflict)
}

func TestLoad_NullOrCorruptRecordStartsEmpty(t *testing.T) {
	t.Parallel()
	for _, body := range []string{"null", "", "{not json", `["a"]`} {
		s := state.NewMemoryStore()
		require.NoError(t, s.Set(t.Context(), state.KeyNotifiedDeals, []byte(body)))
		l, err := notified.Load(t.Context(), s)
		require.NoError(t, err, "%q", body)
		require.Zero(t, l.Len())

		require.NotPanics(t, func() { l.MarkNotified(url, d("40"), d("40")) })
		require.NoError(t, l.Save(t.Context()), "%q", body)
	}
}

func TestLoad_DiscardedReportsDecodeError(t *testing.T) {
	t.Parallel()
	s := state.NewMemoryStore()
	require.NoError(t, s.Set(t.Context(), state.KeyNotifiedDeals, []byte("{not json")))
	l, err := notified.Load(t.Context(), s)
	require.NoError(t, err)
	require.ErrorContains(t, l.Discarded(), "decode notified deals")

	clean, err := notified.Load(t.Context(), state.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, clean.Discarded())
}

func TestSave_WritesAmountsAsNumbers(t *testing.T) {
	t.Parallel()
	s := state.NewMemoryStore()
	l, err := notified.Load(t.Context(), s)
	require.NoError(t, err)
	l.MarkNotified(url, d("35.499"), d("354.99"))
	require.NoError(t, l.Save(t.Context()))

	raw, err := s.Get(t.Context(), state.KeyNotifiedDeals)
	require.NoError(t, err)
	var rec map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &rec))
	require.Equal(t, map[string]any{"price_per_oz": 35.5, "total_price": 354.99}, rec[url])
}

func TestLoad_ReadsQuotedAndFloatAmounts(t *testing.T) {
	t.Parallel()
	s := state.NewMemoryStore()
	require.NoError(t, s.Set(t.Context(), state.KeyNotifiedDeals, []byte(`{
		"https://a": {"price_per_oz": 40.0, "total_price": 40.0, "name": "Maple"},
		"https://b": {"price_per_oz": "35.5", "total_price": "355"}}`)))
	l, err := notified.Load(t.Context(), s)
	require.NoError(t, err)
	require.NoError(t, l.Discarded())
	require.True(t, l.WasNotified("https://a", d("40"), d("40")))
	require.True(t, l.WasNotified("https://b", d("35.50"), d("355")))
}
