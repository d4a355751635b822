package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestMoney_CurrencyStrings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   any
		want float64
	}{
		{"formatted currency", "$1,500,000", 1500000.0},
		{"plain digits", "1500000", 1500000.0},
		{"empty string", "", 0},
		{"nil", nil, 0},
		{"garbage", "TBD", 0},
		{"lone dot", ".", 0},
		{"negative", "-250", -250},
		{"json number", float64(75000), 75000},
		{"decimal", "$1,234.56", 1234.56},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.InDelta(t, tc.want, Money(tc.in), 0.001)
		})
	}
}

func TestCount_Coercion(t *testing.T) {
	t.Parallel()

	require.Equal(t, 25, Count("25"))
	require.Equal(t, 1000, Count("1,000"))
	require.Equal(t, 0, Count(""))
	require.Equal(t, 0, Count(nil))
	require.Equal(t, 0, Count("unknown"))
	require.Equal(t, 12, Count(float64(12)))
}

func TestCleanText_StripsNullBytesAndTruncates(t *testing.T) {
	t.Parallel()

	require.Equal(t, "hello world", CleanText("hello\x00 world"))

	long := strings.Repeat("a", MaxTextLen+50)
	got := CleanText(long)
	require.Len(t, got, MaxTextLen+len("... (truncated)"))
	require.True(t, strings.HasSuffix(got, "... (truncated)"))
}

func TestCleanText_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// place a multibyte rune across the cap so a byte cut would split it
	long := strings.Repeat("a", MaxTextLen-1) + "日本語"
	got := CleanText(long)
	require.True(t, utf8.ValidString(got))
	require.True(t, strings.HasSuffix(got, "... (truncated)"))
	require.LessOrEqual(t, len(got), MaxTextLen+len("... (truncated)"))
}

func TestStringify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "351423", Stringify(float64(351423)))
	require.Equal(t, "1.5", Stringify(1.5))
	require.Equal(t, "abc", Stringify("abc"))
	require.Equal(t, "", Stringify(nil))
	require.Equal(t, "true", Stringify(true))
}
