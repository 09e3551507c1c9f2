package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewID_GeneratesDistinctInstances(t *testing.T) {
	a, err := NewID("q1", "stage-0", 2, 0)
	require.NoError(t, err)
	b, err := NewID("q1", "stage-0", 2, 0)
	require.NoError(t, err)

	require.Equal(t, a.Query, b.Query)
	require.Equal(t, a.Stage, b.Stage)
	require.Equal(t, a.Partition, b.Partition)
	require.Equal(t, a.Attempt, b.Attempt)
	require.NotEqual(t, a.Instance, b.Instance, "each attempt restart must mint a fresh instance id")
}

func TestID_String(t *testing.T) {
	id := ID{Query: "q1", Stage: "stage-0", Partition: 3, Attempt: 1, Instance: "abc"}
	require.Equal(t, "q1.stage-0.3.1::abc", id.String())
}
