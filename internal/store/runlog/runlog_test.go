package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/automation"
)

func TestRecordAndRecent(t *testing.T) {
	st, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	base := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		rep := automation.Report{
			MarketOpen:     true,
			TotalTriggered: i,
			Results: map[string]automation.Outcome{
				automation.ServiceRules: {Evaluated: 2, Triggered: i},
			},
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.RecordRun(ctx, rep))
	}

	got, err := st.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].TotalTriggered, "newest report first")
	assert.Equal(t, 1, got[1].TotalTriggered)
	assert.Equal(t, 2, got[0].Results[automation.ServiceRules].Evaluated)
}

func TestRecentDefaultsLimit(t *testing.T) {
	st, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.RecordRun(context.Background(), automation.Report{
		Skipped: true, Reason: "market closed", StartedAt: time.Now(),
	}))

	got, err := st.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Skipped)
	assert.Equal(t, "market closed", got[0].Reason)
}

func TestRecentEmpty(t *testing.T) {
	st, err := NewStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer st.Close()

	got, err := st.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
