package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestState_Terminal(t *testing.T) {
	cases := map[State]bool{
		Planned:  false,
		Running:  false,
		Flushing: false,
		Finished: true,
		Canceled: true,
		Aborted:  true,
		Failed:   true,
	}
	for s, want := range cases {
		require.Equal(t, want, s.Terminal(), "state %s", s)
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "Running", Running.String())
	require.Equal(t, "Unknown", State(99).String())
}
