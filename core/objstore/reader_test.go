package objstore

import (
	"bytes"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocp-cost-aggregator/internal/errors"
)

type usageRow struct {
	UsageStart time.Time `parquet:"usage_start"`
	Namespace  string    `parquet:"namespace,optional"`
	Value      float64   `parquet:"value,optional"`
}

func writeParquet(t *testing.T, rows []usageRow) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[usageRow](&buf)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeRoundTrip(t *testing.T) {
	day := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	in := []usageRow{
		{UsageStart: day, Namespace: "web", Value: 1.5},
		{UsageStart: day.Add(time.Hour), Namespace: "batch", Value: 2.5},
	}

	out, err := decode[usageRow]("test.parquet", writeParquet(t, in), []string{"usage_start", "namespace"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "web", out[0].Namespace)
	assert.Equal(t, 2.5, out[1].Value)
	assert.True(t, out[0].UsageStart.Equal(day))
}

func TestDecodeMissingColumnIsSchemaError(t *testing.T) {
	data := writeParquet(t, []usageRow{{UsageStart: time.Now(), Namespace: "web"}})

	_, err := decode[usageRow]("test.parquet", data, []string{"usage_start", "cluster_id"})
	require.Error(t, err)
	assert.Equal(t, errors.KindInputSchema, errors.KindOf(err))
	assert.Contains(t, err.Error(), "cluster_id")
}

func TestDecodeCorruptFooter(t *testing.T) {
	_, err := decode[usageRow]("bad.parquet", []byte("this is not parquet"), nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindInputCorrupt, errors.KindOf(err))
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, isPermanent(assert.AnError))
}
