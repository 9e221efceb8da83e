package objstore

import (
	"bytes"
	"context"
	"io"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ocp-cost-aggregator/internal/errors"
	"ocp-cost-aggregator/internal/logging"
)

// Batch is one chunk of decoded rows from a streamed partition
type Batch[T any] struct {
	Rows []T
	Err  error
}

// decode reads every row of one parquet object into T values. Footer
// problems are corrupt input; a projection the file cannot satisfy is a
// schema mismatch.
func decode[T any](key string, data []byte, required []string) ([]T, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrapf(errors.KindInputCorrupt, err, "opening parquet object %s", key)
	}
	if err := requireColumns(key, file, required); err != nil {
		return nil, err
	}

	reader := parquet.NewGenericReader[T](bytes.NewReader(data))
	defer reader.Close()

	rows := make([]T, 0, reader.NumRows())
	buf := make([]T, 1024)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(errors.KindInputSchema, err, "decoding parquet object %s", key)
		}
	}
	return rows, nil
}

// requireColumns verifies the projection against the file schema
func requireColumns(key string, file *parquet.File, required []string) error {
	present := make(map[string]struct{})
	for _, field := range file.Schema().Fields() {
		present[field.Name()] = struct{}{}
	}
	for _, col := range required {
		if _, ok := present[col]; !ok {
			return errors.Newf(errors.KindInputSchema, "object %s missing required column %q", key, col)
		}
	}
	return nil
}

// ReadAll reads a whole partition subtype into memory. Files fan out
// across parallelReaders workers; the result preserves lexicographic file
// order so downstream aggregation is reproducible. memoryBudgetRows caps
// the materialised row count; exceeding it is fatal.
func ReadAll[T any](ctx context.Context, c *Client, prefix string, required []string, parallelReaders, memoryBudgetRows int) ([]T, error) {
	keys, err := c.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, errors.Newf(errors.KindInputMissing, "no objects under %s", prefix)
	}

	results := make([][]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelReaders)
	for i, key := range keys {
		g.Go(func() error {
			data, err := c.Fetch(gctx, key)
			if err != nil {
				return err
			}
			rows, err := decode[T](key, data, required)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range results {
		total += len(rows)
	}
	if memoryBudgetRows > 0 && total > memoryBudgetRows {
		return nil, errors.Newf(errors.KindInputUnavailable,
			"partition %s holds %d rows, over the %d row memory budget; use streaming mode", prefix, total, memoryBudgetRows)
	}

	out := make([]T, 0, total)
	for _, rows := range results {
		out = append(out, rows...)
	}
	logging.Debug("partition read",
		zap.String("prefix", prefix), zap.Int("objects", len(keys)), zap.Int("rows", total))
	return out, nil
}

// Stream reads a partition subtype as a bounded sequence of row batches.
// The channel depth of one plus the in-flight batch bounds reader memory;
// a full channel suspends the reader until a batch is consumed. The
// channel closes after the final batch; a failure is delivered as the
// last batch's Err and the remaining files are skipped.
func Stream[T any](ctx context.Context, c *Client, prefix string, required []string, chunkSize int) <-chan Batch[T] {
	out := make(chan Batch[T], 1)

	go func() {
		defer close(out)

		emit := func(b Batch[T]) bool {
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		keys, err := c.List(ctx, prefix)
		if err != nil {
			emit(Batch[T]{Err: err})
			return
		}
		if len(keys) == 0 {
			emit(Batch[T]{Err: errors.Newf(errors.KindInputMissing, "no objects under %s", prefix)})
			return
		}

		for _, key := range keys {
			data, err := c.Fetch(ctx, key)
			if err != nil {
				emit(Batch[T]{Err: err})
				return
			}

			file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				emit(Batch[T]{Err: errors.Wrapf(errors.KindInputCorrupt, err, "opening parquet object %s", key)})
				return
			}
			if err := requireColumns(key, file, required); err != nil {
				emit(Batch[T]{Err: err})
				return
			}

			reader := parquet.NewGenericReader[T](bytes.NewReader(data))
			for {
				buf := make([]T, chunkSize)
				n, err := reader.Read(buf)
				if n > 0 {
					if !emit(Batch[T]{Rows: buf[:n]}) {
						reader.Close()
						return
					}
				}
				if err == io.EOF {
					break
				}
				if err != nil {
					reader.Close()
					emit(Batch[T]{Err: errors.Wrapf(errors.KindInputSchema, err, "decoding parquet object %s", key)})
					return
				}
			}
			reader.Close()
		}
	}()

	return out
}
