package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEventSelect(t *testing.T) {
	sel, err := ParseEventSelect("Motion 2")
	require.Nil(t, err)
	require.Equal(t, EventSelect{Kind: "motion", Index: 2}, sel)

	sel, err = ParseEventSelect("Ding 1 (Transcoded)")
	require.Nil(t, err)
	require.Equal(t, EventSelect{Kind: "ding", Index: 1, Transcoded: true}, sel)

	sel, err = ParseEventSelect("On-demand 3")
	require.Nil(t, err)
	require.Equal(t, "on_demand", sel.Kind)
	require.Equal(t, "On-demand 3", sel.String())

	for _, s := range []string{"", "Motion", "Motion 0", "Motion x", "Ring 1"} {
		_, err = ParseEventSelect(s)
		require.ErrorIs(t, err, ErrEventSelect, s)
	}
}

func TestEventSelectString(t *testing.T) {
	sel := EventSelect{Kind: "ding", Index: 4, Transcoded: true}
	require.Equal(t, "Ding 4 (Transcoded)", sel.String())

	parsed, err := ParseEventSelect(sel.String())
	require.Nil(t, err)
	require.Equal(t, sel, parsed)
}
