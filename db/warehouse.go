package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"ocp-cost-aggregator/core/rollup"
	"ocp-cost-aggregator/core/types"
	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

// Partition scopes every write: rows outside (source, year, month) are
// never touched unless truncate mode is requested.
type Partition struct {
	SourceUUID string
	Year       string
	Month      string
}

// Warehouse writes summary rows to the relational warehouse
type Warehouse struct {
	pool   *pgxpool.Pool
	schema string
}

// Connect opens a connection pool against the warehouse
func Connect(ctx context.Context, dsn, schema string) (*Warehouse, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(errors.KindWarehouse, "opening warehouse pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(errors.KindWarehouse, "pinging warehouse", err)
	}
	return &Warehouse{pool: pool, schema: schema}, nil
}

// Close releases the pool
func (w *Warehouse) Close() {
	w.pool.Close()
}

// EnabledTagKeys reads the allowed tag keys configured in the warehouse
func (w *Warehouse) EnabledTagKeys(ctx context.Context) ([]string, error) {
	rows, err := w.pool.Query(ctx,
		fmt.Sprintf(`SELECT key FROM %s.reporting_enabledtagkeys WHERE enabled`, pgx.Identifier{w.schema}.Sanitize()))
	if err != nil {
		return nil, errors.Wrap(errors.KindWarehouse, "querying enabled tag keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.Wrap(errors.KindWarehouse, "scanning enabled tag key", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindWarehouse, "reading enabled tag keys", err)
	}
	return keys, nil
}

// load is one table's worth of rows inside a run transaction
type load struct {
	table     string
	columns   []string
	rows      [][]any
	partition Partition
}

// run executes one warehouse transaction: per table, delete the target
// partition (or truncate the table) and bulk-load the replacement rows.
// Any failure rolls the whole run back.
func (w *Warehouse) run(ctx context.Context, truncate bool, loads []load) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(errors.KindWarehouse, "beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	for _, l := range loads {
		target := pgx.Identifier{w.schema, l.table}

		if truncate {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s`, target.Sanitize())); err != nil {
				return errors.Wrapf(errors.KindWarehouse, err, "truncating %s", l.table)
			}
		} else {
			if _, err := tx.Exec(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE source_uuid = $1 AND year = $2 AND month = $3`, target.Sanitize()),
				l.partition.SourceUUID, l.partition.Year, l.partition.Month); err != nil {
				return errors.Wrapf(errors.KindWarehouse, err, "clearing partition in %s", l.table)
			}
		}

		copied, err := tx.CopyFrom(ctx, target, l.columns, pgx.CopyFromRows(l.rows))
		if err != nil {
			return errors.Wrapf(errors.KindWarehouse, err, "bulk loading %s", l.table)
		}
		if copied != int64(len(l.rows)) {
			return errors.Newf(errors.KindWarehouseConflict,
				"%s: copied %d rows, expected %d", l.table, copied, len(l.rows))
		}
		logging.Info("table loaded",
			zap.String("table", l.table), zap.Int64("rows", copied))
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(errors.KindWarehouse, "committing transaction", err)
	}
	return nil
}

// WriteOCPSummaries replaces the OCP-only daily summary partition
func (w *Warehouse) WriteOCPSummaries(ctx context.Context, p Partition, truncate bool, rows []types.OCPUsageSummary) error {
	return w.run(ctx, truncate, []load{
		{table: TableOCPUsageSummary, columns: ocpUsageColumns, rows: encodeOCP(p, rows), partition: p},
	})
}

// WriteOCPAWSSummaries replaces all nine OCP-on-AWS summary partitions,
// plus the OCP daily summary, within one transaction. The attributed
// tables are scoped by the AWS partition, the usage table by the OCP one.
func (w *Warehouse) WriteOCPAWSSummaries(ctx context.Context, ocpPart, awsPart Partition, truncate bool, ocpRows []types.OCPUsageSummary, tables rollup.Tables) error {
	loads := []load{
		{table: TableOCPUsageSummary, columns: ocpUsageColumns, rows: encodeOCP(ocpPart, ocpRows), partition: ocpPart},
		{table: TableOCPAWSDetailed, columns: rollupColumns, rows: encodeRollup(awsPart, tables.Detailed), partition: awsPart},
		{table: TableOCPAWSCost, columns: rollupColumns, rows: encodeRollup(awsPart, tables.ClusterTotals), partition: awsPart},
		{table: TableOCPAWSByAccount, columns: rollupColumns, rows: encodeRollup(awsPart, tables.ByAccount), partition: awsPart},
		{table: TableOCPAWSByService, columns: rollupColumns, rows: encodeRollup(awsPart, tables.ByService), partition: awsPart},
		{table: TableOCPAWSByRegion, columns: rollupColumns, rows: encodeRollup(awsPart, tables.ByRegion), partition: awsPart},
		{table: TableOCPAWSCompute, columns: rollupColumns, rows: encodeRollup(awsPart, tables.Compute), partition: awsPart},
		{table: TableOCPAWSStorage, columns: rollupColumns, rows: encodeRollup(awsPart, tables.Storage), partition: awsPart},
		{table: TableOCPAWSDatabase, columns: rollupColumns, rows: encodeRollup(awsPart, tables.Database), partition: awsPart},
		{table: TableOCPAWSNetwork, columns: rollupColumns, rows: encodeRollup(awsPart, tables.Network), partition: awsPart},
	}
	return w.run(ctx, truncate, loads)
}

func encodeOCP(p Partition, rows []types.OCPUsageSummary) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = ocpUsageValues(p, r)
	}
	return out
}

func encodeRollup(p Partition, rows []rollup.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = rollupValues(p, r)
	}
	return out
}
