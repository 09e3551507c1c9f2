package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type dfStubExecution struct {
	stubExecution
	domains []Domain
	version int64
}

func (e *dfStubExecution) AcknowledgeAndGetNewDynamicFilterDomains(callerVersion int64) (VersionedDomains, error) {
	var fresh []Domain
	for _, d := range e.domains {
		if d.Version > callerVersion {
			fresh = append(fresh, d)
		}
	}
	return VersionedDomains{Domains: fresh, Version: e.version}, nil
}

func TestDynamicFilterView_Empty(t *testing.T) {
	v := NewDynamicFilterView(NewHolder())
	vd, err := v.AcknowledgeAndGetNewDomains(0)
	require.NoError(t, err)
	require.Equal(t, VersionedDomains{}, vd)
	require.Equal(t, int64(0), v.CurrentVersion())
}

func TestDynamicFilterView_LiveDelegatesToExecution(t *testing.T) {
	h := NewHolder()
	exec := &dfStubExecution{
		domains: []Domain{{SourceID: "a", Version: 1}, {SourceID: "b", Version: 2}},
		version: 2,
	}
	require.True(t, h.SetLive(exec))

	v := NewDynamicFilterView(h)
	vd, err := v.AcknowledgeAndGetNewDomains(1)
	require.NoError(t, err)
	require.Equal(t, []Domain{{SourceID: "b", Version: 2}}, vd.Domains)
	require.Equal(t, int64(2), vd.Version)
	require.Equal(t, int64(2), v.CurrentVersion())
}

func TestDynamicFilterView_FinalReturnsFrozenDomainsInFull(t *testing.T) {
	h := NewHolder()
	frozen := VersionedDomains{Domains: []Domain{{SourceID: "a", Version: 1}}, Version: 1}
	h.FinalizeOnce(func(old *holderState) FinalSnapshot {
		return FinalSnapshot{Domains: frozen}
	})

	v := NewDynamicFilterView(h)
	vd, err := v.AcknowledgeAndGetNewDomains(1)
	require.NoError(t, err)
	require.Equal(t, frozen, vd, "a terminal task has nothing left to delta against, so it returns everything")
	require.Equal(t, int64(1), v.CurrentVersion())
}
