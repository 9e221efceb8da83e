package engine

import (
	"context"
	stderrors "errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ocp-cost-aggregator/core/attribute"
	"ocp-cost-aggregator/core/labels"
	"ocp-cost-aggregator/core/match"
	"ocp-cost-aggregator/core/objstore"
	"ocp-cost-aggregator/core/ocp"
	"ocp-cost-aggregator/core/rollup"
	"ocp-cost-aggregator/core/types"
	"ocp-cost-aggregator/db"
	"ocp-cost-aggregator/internal/config"
	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

// Columns each subtype file must carry; everything beyond identity is
// treated as optional and decodes to its zero value when absent.
var (
	podColumns       = []string{"usage_start", "namespace", "node"}
	volumeColumns    = []string{"usage_start", "persistentvolumeclaim"}
	nodeLabelColumns = []string{"usage_start", "node"}
	awsColumns       = []string{"lineitem_usagestartdate", "lineitem_productcode", "lineitem_unblendedcost"}
)

// SummaryWriter is the warehouse surface the engine drives
type SummaryWriter interface {
	EnabledTagKeys(ctx context.Context) ([]string, error)
	WriteOCPSummaries(ctx context.Context, p db.Partition, truncate bool, rows []types.OCPUsageSummary) error
	WriteOCPAWSSummaries(ctx context.Context, ocpPart, awsPart db.Partition, truncate bool, ocpRows []types.OCPUsageSummary, tables rollup.Tables) error
}

// Engine executes the configured provider runs in declaration order.
// The first failing provider aborts the run; later providers never start,
// so a partial run never silently skips a provider.
type Engine struct {
	cfg      *config.Config
	store    *objstore.Client
	writer   SummaryWriter
	truncate bool
}

// New creates an engine over a validated configuration
func New(cfg *config.Config, store *objstore.Client, writer SummaryWriter, truncate bool) *Engine {
	return &Engine{cfg: cfg, store: store, writer: writer, truncate: truncate}
}

// Run processes every enabled provider
func (e *Engine) Run(ctx context.Context) error {
	window, err := parseWindow(e.cfg.DateRange)
	if err != nil {
		return err
	}
	if window.hasStart || window.hasEnd {
		monthStart, err := (types.PartitionKey{
			Year:  e.cfg.DateRange.Year,
			Month: e.cfg.DateRange.Month,
		}).MonthStart()
		if err != nil {
			return errors.Wrap(errors.KindConfigInvalid, "parsing date_range year/month", err)
		}
		if err := window.checkMonth(monthStart); err != nil {
			return err
		}
	}

	for i, p := range e.cfg.Providers {
		if !p.Enabled {
			logging.Info("provider disabled, skipping",
				zap.Int("index", i), zap.String("type", p.Type))
			continue
		}
		name := p.Type + ":" + p.OCPUUID()
		started := time.Now()
		if err := e.runProvider(ctx, p, window); err != nil {
			return annotateProvider(err, name)
		}
		logging.Info("provider completed",
			zap.String("provider", name),
			zap.Duration("elapsed", time.Since(started)))
	}
	return nil
}

// runProvider executes one provider pipeline under its timeout budget
func (e *Engine) runProvider(ctx context.Context, p config.ProviderConfig, w dayWindow) error {
	pctx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, time.Duration(p.Timeout))
		defer cancel()
	}

	tracker := &stageTracker{}
	err := e.pipeline(pctx, p, w, tracker)
	if err != nil {
		stage := tracker.current
		tracker.advance(StageFailed)
		// an expired or cancelled context is the real cause no matter what
		// error surfaced from the interrupted stage
		if pctx.Err() != nil && !errors.IsKind(err, errors.KindTimeout) {
			msg := "provider run cancelled"
			if stderrors.Is(pctx.Err(), context.DeadlineExceeded) {
				msg = "provider run exceeded its timeout"
			}
			err = errors.Wrap(errors.KindTimeout, msg, err)
		}
		logging.Error("provider failed",
			zap.String("stage", stage.String()), zap.Error(err))
		return annotateStage(err, stage)
	}
	return nil
}

// pipeline is the provider stage sequence shared by both provider types
func (e *Engine) pipeline(ctx context.Context, p config.ProviderConfig, w dayWindow, tracker *stageTracker) error {
	keys, err := e.writer.EnabledTagKeys(ctx)
	if err != nil {
		return err
	}
	enabled := labels.NewEnabledKeys(keys)

	ocpPart := types.PartitionKey{
		OrgID:      e.cfg.Database.Schema,
		Kind:       types.KindOCP,
		SourceUUID: p.OCPUUID(),
		Year:       e.cfg.DateRange.Year,
		Month:      e.cfg.DateRange.Month,
	}

	logStage(tracker.advance(StageReading), p)
	podAgg, volAgg, err := e.aggregateOCP(ctx, p, ocpPart, enabled, w)
	if err != nil {
		return err
	}

	logStage(tracker.advance(StageAggregating), p)
	clusterAlias := podAgg.ClusterAlias()
	if p.ClusterAliasOverride != "" {
		clusterAlias = p.ClusterAliasOverride
	}
	ocpRows := podAgg.Summaries()
	ocpRows = append(ocpRows, ocp.Unallocated(podAgg.NodeUsages(), clusterAlias)...)
	ocpRows = append(ocpRows, volAgg.Summaries(podAgg.PodLabels)...)

	ocpDBPart := db.Partition{
		SourceUUID: ocpPart.SourceUUID,
		Year:       ocpPart.Year,
		Month:      ocpPart.Month,
	}

	if p.Type == config.ProviderOCP {
		logStage(tracker.advance(StageWriting), p)
		if err := e.writer.WriteOCPSummaries(ctx, ocpDBPart, e.truncate, ocpRows); err != nil {
			return err
		}
		logStage(tracker.advance(StageCommitted), p)
		return nil
	}

	logStage(tracker.advance(StageMatching), p)
	carried, err := e.matchAWS(ctx, p, enabled, podAgg, volAgg, ocpRows, w)
	if err != nil {
		return err
	}

	logStage(tracker.advance(StageAttributing), p)
	clusterID := podAgg.ClusterID()
	if p.ClusterIDOverride != "" {
		clusterID = p.ClusterIDOverride
	}
	attributor := attribute.New(
		decimal.NewFromFloat(p.Markup),
		clusterID, clusterAlias,
		ocpRows, volAgg.Claims())
	attributed, err := attributor.Attribute(carried)
	if err != nil {
		return err
	}
	tables := rollup.Build(attributed)

	logStage(tracker.advance(StageWriting), p)
	awsDBPart := db.Partition{
		SourceUUID: p.AWSSourceUUID,
		Year:       e.cfg.DateRange.Year,
		Month:      e.cfg.DateRange.Month,
	}
	if err := e.writer.WriteOCPAWSSummaries(ctx, ocpDBPart, awsDBPart, e.truncate, ocpRows, tables); err != nil {
		return err
	}
	logStage(tracker.advance(StageCommitted), p)
	return nil
}

// aggregateOCP reads the three OCP subtypes into fresh aggregators. The pod
// partition is mandatory; a cluster without volumes or a payload predating
// the node-labels subtype is still a valid month, so those two tolerate an
// empty partition.
func (e *Engine) aggregateOCP(ctx context.Context, p config.ProviderConfig, part types.PartitionKey, enabled *labels.EnabledKeys, w dayWindow) (*ocp.PodAggregator, *ocp.VolumeAggregator, error) {
	podAgg := ocp.NewPodAggregator(enabled)
	volAgg := ocp.NewVolumeAggregator(enabled)

	err := forEachRow(ctx, e.store, part.Prefix(types.SubtypeNodeLabels), nodeLabelColumns, e.cfg.Performance,
		func(rec types.NodeLabelRecord) error {
			if !w.contains(rec.UsageStart) {
				return nil
			}
			if p.ClusterIDOverride != "" {
				rec.ClusterID = p.ClusterIDOverride
			}
			podAgg.AddNodeLabels(rec)
			return nil
		})
	if err != nil && !errors.IsKind(err, errors.KindInputMissing) {
		return nil, nil, err
	}

	err = forEachRow(ctx, e.store, part.Prefix(types.SubtypePodUsage), podColumns, e.cfg.Performance,
		func(rec types.PodRecord) error {
			if !w.contains(rec.UsageStart) {
				return nil
			}
			if p.ClusterIDOverride != "" {
				rec.ClusterID = p.ClusterIDOverride
			}
			if p.ClusterAliasOverride != "" {
				rec.ClusterAlias = p.ClusterAliasOverride
			}
			return podAgg.Add(rec)
		})
	if err != nil {
		return nil, nil, err
	}

	err = forEachRow(ctx, e.store, part.Prefix(types.SubtypeStorage), volumeColumns, e.cfg.Performance,
		func(rec types.VolumeRecord) error {
			if !w.contains(rec.UsageStart) {
				return nil
			}
			if p.ClusterIDOverride != "" {
				rec.ClusterID = p.ClusterIDOverride
			}
			if p.ClusterAliasOverride != "" {
				rec.ClusterAlias = p.ClusterAliasOverride
			}
			return volAgg.Add(rec)
		})
	if err != nil && !errors.IsKind(err, errors.KindInputMissing) {
		return nil, nil, err
	}

	return podAgg, volAgg, nil
}

// matchAWS streams the CUR partition, resolving each line item against the
// OCP snapshot; only carried rows are materialised.
func (e *Engine) matchAWS(ctx context.Context, p config.ProviderConfig, enabled *labels.EnabledKeys, podAgg *ocp.PodAggregator, volAgg *ocp.VolumeAggregator, ocpRows []types.OCPUsageSummary, w dayWindow) ([]attribute.LineItem, error) {
	awsPart := types.PartitionKey{
		OrgID:      e.cfg.Database.Schema,
		Kind:       types.KindAWS,
		SourceUUID: p.AWSSourceUUID,
		Year:       e.cfg.DateRange.Year,
		Month:      e.cfg.DateRange.Month,
	}

	index := &match.OCPIndex{
		ClusterID:        podAgg.ClusterID(),
		ClusterAlias:     podAgg.ClusterAlias(),
		NodeByResourceID: podAgg.ResourceIDs(),
		PVNames:          volAgg.PVNames(),
		CSIHandles:       volAgg.CSIHandles(),
		NodeNames:        podAgg.NodeNames(),
		Namespaces:       union(podAgg.Namespaces(), volAgg.Namespaces()),
		LabelBlobs:       labelBlobs(ocpRows),
	}
	if p.ClusterIDOverride != "" {
		index.ClusterID = p.ClusterIDOverride
	}
	if p.ClusterAliasOverride != "" {
		index.ClusterAlias = p.ClusterAliasOverride
	}
	matcher := match.New(index, enabled)

	var carried []attribute.LineItem
	var total int
	err := forEachRow(ctx, e.store, awsPart.Prefix(types.SubtypeAWSLine), awsColumns, e.cfg.Performance,
		func(item types.AWSLineItem) error {
			if !w.contains(item.UsageStart) {
				return nil
			}
			total++
			res := matcher.Match(item)
			if res.Carried() {
				carried = append(carried, attribute.Preprocess(item, res))
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	logging.Info("line items matched",
		zap.Int("scanned", total), zap.Int("carried", len(carried)))
	return carried, nil
}

// forEachRow drives fn over every row of one partition subtype, honouring
// the streaming/full-read switch. A fn failure drains the stream so the
// reader goroutine never blocks on a dead channel.
func forEachRow[T any](ctx context.Context, c *objstore.Client, prefix string, required []string, perf config.PerformanceConfig, fn func(T) error) error {
	if perf.UseStreaming {
		var failed error
		for batch := range objstore.Stream[T](ctx, c, prefix, required, perf.ChunkSize) {
			if failed != nil {
				continue
			}
			if batch.Err != nil {
				failed = batch.Err
				continue
			}
			for _, row := range batch.Rows {
				if err := fn(row); err != nil {
					failed = err
					break
				}
			}
		}
		if failed != nil {
			return failed
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.KindTimeout, "streaming read interrupted", err)
		}
		return nil
	}

	rows, err := objstore.ReadAll[T](ctx, c, prefix, required, perf.ParallelReaders, perf.MemoryBudgetRows)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// dayWindow trims ingest to an optional [start, end] day range inside the
// partition month
type dayWindow struct {
	start, end time.Time
	hasStart   bool
	hasEnd     bool
}

func parseWindow(dr config.DateRangeConfig) (dayWindow, error) {
	var w dayWindow
	if dr.StartDate != "" {
		t, err := time.Parse("2006-01-02", dr.StartDate)
		if err != nil {
			return w, errors.Wrap(errors.KindConfigInvalid, "parsing date_range.start_date", err)
		}
		w.start, w.hasStart = t, true
	}
	if dr.EndDate != "" {
		t, err := time.Parse("2006-01-02", dr.EndDate)
		if err != nil {
			return w, errors.Wrap(errors.KindConfigInvalid, "parsing date_range.end_date", err)
		}
		w.end, w.hasEnd = t, true
	}
	if w.hasStart && w.hasEnd && w.end.Before(w.start) {
		return w, errors.Newf(errors.KindConfigInvalid,
			"date_range.end_date %s before start_date %s", dr.EndDate, dr.StartDate)
	}
	return w, nil
}

// checkMonth rejects a window lying entirely outside the partition month;
// such a run would silently aggregate zero rows.
func (w dayWindow) checkMonth(monthStart time.Time) error {
	monthEnd := monthStart.AddDate(0, 1, -1)
	if w.hasStart && w.start.After(monthEnd) {
		return errors.Newf(errors.KindConfigInvalid,
			"date_range.start_date %s is after the partition month ending %s",
			w.start.Format("2006-01-02"), monthEnd.Format("2006-01-02"))
	}
	if w.hasEnd && w.end.Before(monthStart) {
		return errors.Newf(errors.KindConfigInvalid,
			"date_range.end_date %s is before the partition month starting %s",
			w.end.Format("2006-01-02"), monthStart.Format("2006-01-02"))
	}
	return nil
}

func (w dayWindow) contains(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	if w.hasStart && day.Before(w.start) {
		return false
	}
	if w.hasEnd && day.After(w.end) {
		return false
	}
	return true
}

// labelBlobs collects the distinct serialised label maps from the OCP
// summaries for the generic tag match, in sorted order.
func labelBlobs(rows []types.OCPUsageSummary) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for _, blob := range []string{r.PodLabels, r.VolumeLabels, r.AllLabels} {
			if blob != "" && blob != "{}" {
				seen[blob] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for blob := range seen {
		out = append(out, blob)
	}
	sort.Strings(out)
	return out
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func logStage(s Stage, p config.ProviderConfig) {
	logging.Info("stage", zap.String("stage", s.String()), zap.String("type", p.Type))
}

func annotateProvider(err error, provider string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Provider == "" {
		e.WithProvider(provider)
	}
	return err
}

func annotateStage(err error, stage Stage) error {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Stage == "" {
		e.WithStage(stage.String())
	}
	return err
}
