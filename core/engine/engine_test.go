package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocp-cost-aggregator/core/rollup"
	"ocp-cost-aggregator/core/types"
	"ocp-cost-aggregator/db"
	"ocp-cost-aggregator/internal/config"
	"ocp-cost-aggregator/internal/errors"
)

func TestParseWindow(t *testing.T) {
	w, err := parseWindow(config.DateRangeConfig{StartDate: "2026-06-05", EndDate: "2026-06-10"})
	require.NoError(t, err)

	assert.False(t, w.contains(time.Date(2026, 6, 4, 12, 0, 0, 0, time.UTC)))
	assert.True(t, w.contains(time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.contains(time.Date(2026, 6, 10, 23, 0, 0, 0, time.UTC)))
	assert.False(t, w.contains(time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC)))
}

func TestParseWindowOpenEnded(t *testing.T) {
	w, err := parseWindow(config.DateRangeConfig{})
	require.NoError(t, err)
	assert.True(t, w.contains(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))

	w, err = parseWindow(config.DateRangeConfig{StartDate: "2026-06-05"})
	require.NoError(t, err)
	assert.False(t, w.contains(time.Date(2026, 6, 4, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.contains(time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)))
}

func TestParseWindowInvalid(t *testing.T) {
	_, err := parseWindow(config.DateRangeConfig{StartDate: "06/05/2026"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfigInvalid, errors.KindOf(err))

	_, err = parseWindow(config.DateRangeConfig{StartDate: "2026-06-10", EndDate: "2026-06-05"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfigInvalid, errors.KindOf(err))
}

func TestWindowOutsideMonth(t *testing.T) {
	monthStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	w, err := parseWindow(config.DateRangeConfig{StartDate: "2026-07-01"})
	require.NoError(t, err)
	err = w.checkMonth(monthStart)
	require.Error(t, err)
	assert.Equal(t, errors.KindConfigInvalid, errors.KindOf(err))

	w, err = parseWindow(config.DateRangeConfig{EndDate: "2026-05-31"})
	require.NoError(t, err)
	err = w.checkMonth(monthStart)
	require.Error(t, err)
	assert.Equal(t, errors.KindConfigInvalid, errors.KindOf(err))

	w, err = parseWindow(config.DateRangeConfig{StartDate: "2026-06-05", EndDate: "2026-06-10"})
	require.NoError(t, err)
	assert.NoError(t, w.checkMonth(monthStart))
}

// blockedWriter waits out the context on the first warehouse call, the way
// a stalled enabled-tag-key query behaves when the run is interrupted.
type blockedWriter struct{}

func (blockedWriter) EnabledTagKeys(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockedWriter) WriteOCPSummaries(context.Context, db.Partition, bool, []types.OCPUsageSummary) error {
	return nil
}

func (blockedWriter) WriteOCPAWSSummaries(context.Context, db.Partition, db.Partition, bool, []types.OCPUsageSummary, rollup.Tables) error {
	return nil
}

func TestRunProviderCancellationMapsToTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(&config.Config{}, nil, blockedWriter{}, false)
	err := e.runProvider(ctx, config.ProviderConfig{Type: config.ProviderOCP}, dayWindow{})
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
	assert.Equal(t, errors.ExitTimeout, errors.ExitCode(err))
}

func TestRunProviderDeadlineMapsToTimeout(t *testing.T) {
	e := New(&config.Config{}, nil, blockedWriter{}, false)
	p := config.ProviderConfig{Type: config.ProviderOCP, Timeout: config.Duration(time.Millisecond)}

	err := e.runProvider(context.Background(), p, dayWindow{})
	require.Error(t, err)
	assert.Equal(t, errors.KindTimeout, errors.KindOf(err))
	assert.Contains(t, err.Error(), "timeout")
}

func TestStageStrings(t *testing.T) {
	assert.Equal(t, "idle", StageIdle.String())
	assert.Equal(t, "committed", StageCommitted.String())
	assert.Equal(t, "unknown", Stage(99).String())
}

func TestStageTrackerForwardOnly(t *testing.T) {
	tr := &stageTracker{}
	tr.advance(StageReading)
	tr.advance(StageAggregating)
	tr.advance(StageWriting)
	tr.advance(StageCommitted)

	assert.Panics(t, func() {
		tr2 := &stageTracker{}
		tr2.advance(StageWriting)
		tr2.advance(StageReading)
	})
}

func TestStageTrackerFailedIsTerminalFromAnywhere(t *testing.T) {
	tr := &stageTracker{}
	tr.advance(StageReading)
	assert.NotPanics(t, func() { tr.advance(StageFailed) })
}

func TestLabelBlobsDeduplicatesAndSorts(t *testing.T) {
	rows := []types.OCPUsageSummary{
		{PodLabels: `{"b":"2"}`, AllLabels: `{"b":"2"}`},
		{PodLabels: `{"a":"1"}`, VolumeLabels: "{}"},
		{PodLabels: ""},
	}
	assert.Equal(t, []string{`{"a":"1"}`, `{"b":"2"}`}, labelBlobs(rows))
}

func TestUnion(t *testing.T) {
	got := union(
		map[string]struct{}{"a": {}, "b": {}},
		map[string]struct{}{"b": {}, "c": {}},
	)
	assert.Len(t, got, 3)
	assert.Contains(t, got, "c")
}

func TestAnnotateProviderAndStage(t *testing.T) {
	err := errors.New(errors.KindInputMissing, "no objects")
	_ = annotateProvider(err, "OCP:uuid-1")
	_ = annotateStage(err, StageReading)

	assert.Contains(t, err.Error(), "provider=OCP:uuid-1")
	assert.Contains(t, err.Error(), "stage=reading")

	// existing annotations are preserved
	_ = annotateProvider(err, "other")
	assert.Contains(t, err.Error(), "provider=OCP:uuid-1")
}
