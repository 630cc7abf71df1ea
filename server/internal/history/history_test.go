package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sleeperqc/sleeperqc/pkg/types"
	"github.com/sleeperqc/sleeperqc/server/internal/store"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "data", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func entry(cid string, kind store.Kind, payload string, at time.Time) store.Entry {
	return store.Entry{ContainerID: cid, Kind: kind, Payload: []byte(payload), At: at}
}

func TestAppendReplay_Order(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	base := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	require.NoError(t, j.Append(ctx, entry("a", store.KindDeclare, `{"batch_no":"B-1"}`, base)))
	require.NoError(t, j.Append(ctx, entry("b", store.KindMoisture, `{}`, base.Add(time.Minute))))
	require.NoError(t, j.Append(ctx, entry("a", store.KindCubes, `{"batch_no":"B-1"}`, base.Add(2*time.Minute))))

	var got []store.Entry
	n, err := j.Replay(ctx, func(e store.Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)
	assert.Equal(t, store.KindDeclare, got[0].Kind)
	assert.Equal(t, "b", got[1].ContainerID)
	assert.Equal(t, store.KindCubes, got[2].Kind)
	assert.True(t, got[2].At.Equal(base.Add(2*time.Minute)))
	assert.JSONEq(t, `{"batch_no":"B-1"}`, string(got[0].Payload))
}

func TestReplay_StopsOnError(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	now := time.Now()
	require.NoError(t, j.Append(ctx, entry("a", store.KindMoisture, `{}`, now)))
	require.NoError(t, j.Append(ctx, entry("a", store.KindMoisture, `{}`, now)))

	boom := errors.New("boom")
	n, err := j.Replay(ctx, func(store.Entry) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, n)
}

func TestPrune_WholeContainers(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	// "old" is idle since base; "mixed" has an old and a recent entry.
	require.NoError(t, j.Append(ctx, entry("old", store.KindMoisture, `{}`, base)))
	require.NoError(t, j.Append(ctx, entry("old", store.KindMoisture, `{}`, base.Add(time.Hour))))
	require.NoError(t, j.Append(ctx, entry("mixed", store.KindMoisture, `{}`, base)))
	require.NoError(t, j.Append(ctx, entry("mixed", store.KindMoisture, `{}`, base.Add(48*time.Hour))))

	removed, err := j.Prune(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	var ids []string
	_, err = j.Replay(ctx, func(e store.Entry) error {
		ids = append(ids, e.ContainerID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mixed", "mixed"}, ids)
}

func TestJournal_RestoresStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	j, err := Open(path)
	require.NoError(t, err)
	st := store.New(24*time.Hour, 8*time.Hour)
	st.SetJournal(j)

	_, err = st.AddRecord("shift-a", types.ActualRecord{
		BatchNo: "B-1", Stage: types.StageCompaction, Source: types.SourceScada,
		Values: map[string]float64{types.MetricRPM: 9000},
	})
	require.NoError(t, err)
	_, err = st.AddCubes("shift-a", types.CubeSet{BatchNo: "B-1", Grade: types.GradeM55, Strengths: []float64{42, 43}})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	// Reopen as a restarted server would.
	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()

	restored := store.New(24*time.Hour, 8*time.Hour)
	n, err := j2.Replay(ctx, restored.Apply)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sh, ok := restored.Shift("shift-a")
	require.True(t, ok)
	require.Len(t, sh.Records, 1)
	assert.Equal(t, 9000.0, sh.Records[0].Value(types.MetricRPM))
	require.Len(t, sh.Cubes, 1)
	assert.Equal(t, []float64{42, 43}, sh.Cubes[0].Strengths)
}

func TestRun_PrunesOnStart(t *testing.T) {
	j := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, j.Append(ctx, entry("stale", store.KindMoisture, `{}`, time.Now().Add(-48*time.Hour))))
	require.NoError(t, j.Append(ctx, entry("live", store.KindMoisture, `{}`, time.Now())))

	done := make(chan struct{})
	go func() {
		j.Run(ctx, 24*time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool {
		var ids []string
		_, err := j.Replay(context.Background(), func(e store.Entry) error {
			ids = append(ids, e.ContainerID)
			return nil
		})
		return err == nil && len(ids) == 1 && ids[0] == "live"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
