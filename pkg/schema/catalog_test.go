package schema

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

type fakeDescriber struct {
	tables atomic.Value // []models.Table
	calls  atomic.Int32
	err    error
}

func (f *fakeDescriber) DescribeSchema(ctx context.Context) ([]models.Table, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	tables, _ := f.tables.Load().([]models.Table)
	return tables, nil
}

func (f *fakeDescriber) setTables(tables []models.Table) {
	f.tables.Store(tables)
}

func TestCatalog_SnapshotRefreshesLazily(t *testing.T) {
	describer := &fakeDescriber{}
	describer.setTables([]models.Table{{Schema: "public", Name: "customers"}})
	catalog := NewCatalog(describer, zap.NewNop())

	snapshot, err := catalog.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.Tables, 1)
	assert.Equal(t, int32(1), describer.calls.Load())
	assert.False(t, catalog.LoadedAt().IsZero())

	// A second Snapshot serves the cached descriptor.
	again, err := catalog.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Same(t, snapshot, again)
	assert.Equal(t, int32(1), describer.calls.Load())
}

func TestCatalog_RefreshInstallsNewSnapshot(t *testing.T) {
	describer := &fakeDescriber{}
	describer.setTables([]models.Table{{Schema: "public", Name: "customers"}})
	catalog := NewCatalog(describer, zap.NewNop())

	before, err := catalog.Snapshot(context.Background())
	require.NoError(t, err)

	describer.setTables([]models.Table{
		{Schema: "public", Name: "customers"},
		{Schema: "public", Name: "orders"},
	})
	require.NoError(t, catalog.Refresh(context.Background()))

	after, err := catalog.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, after.Tables, 2)

	// The descriptor handed out before the refresh is untouched, so a
	// session that started against it keeps validating against it.
	assert.Len(t, before.Tables, 1)
	assert.NotSame(t, before, after)
}

func TestCatalog_SnapshotPropagatesDescribeError(t *testing.T) {
	describer := &fakeDescriber{err: errors.New("connection refused")}
	catalog := NewCatalog(describer, zap.NewNop())

	_, err := catalog.Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to describe schema")
	assert.True(t, catalog.LoadedAt().IsZero())
}
