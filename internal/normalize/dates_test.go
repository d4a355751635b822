package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDate_NormalizesKnownFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"08/15/2025", "2025-08-15"},
		{"08-15-2025", "2025-08-15"},
		{"2025-08-15", "2025-08-15"},
		{"Aug 15, 2025", "2025-08-15"},
		{"August 15, 2025", "2025-08-15"},
		{"08152025", "2025-08-15"}, // bulk extract MMDDYYYY
		{"2025-08-15T10:30:00Z", "2025-08-15"},
		{"08/15/2025 1:30 PM", "2025-08-15"},
		{"", ""},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Date(tc.in))
		})
	}
}

func TestDate_PreservesUnparseableInput(t *testing.T) {
	t.Parallel()

	// Out-of-range fixed-width dates and free text stay as raw text.
	require.Equal(t, "13402025", Date("13402025"))
	require.Equal(t, "See announcement", Date("See announcement"))
	require.Equal(t, "02302024", Date("02302024")) // Feb 30 fails strict validation
}
