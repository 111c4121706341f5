package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/inheritance10/sumbench/pkg/sumbench"
)

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestNewRun(t *testing.T) {
	started := time.Date(2026, 10, 18, 9, 30, 0, 123456789, time.UTC)
	run := NewRun(sumbench.Result{Sum: sumbench.ExpectedSum, Elapsed: 45 * time.Millisecond, Wall: 50 * time.Millisecond}, started)
	assert.Equal(t, sumbench.ExpectedSum, run.Sum)
	assert.InDelta(t, 0.045, run.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 0.050, run.WallSeconds, 1e-9)
	assert.Equal(t, started.Truncate(time.Millisecond), run.StartedAt)
	assert.NotEmpty(t, run.GoVersion)
	assert.True(t, run.ID.IsZero())
}

func TestNotConnected(t *testing.T) {
	s := &Store{}
	ctx := context.Background()
	assert.ErrorIs(t, s.Save(ctx, &Run{}), ErrNotConnected)
	_, err := s.Recent(ctx, 1)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.Stats(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = s.EnsureIndexes(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, s.Close(ctx))
}

func TestSave(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns id", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		s := New(mt.Coll)
		run := NewRun(sumbench.Result{Sum: sumbench.ExpectedSum, Elapsed: time.Second}, time.Now())
		require.NoError(mt, s.Save(context.Background(), &run))
		assert.False(mt, run.ID.IsZero())
	})

	mt.Run("write error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))
		s := New(mt.Coll)
		run := Run{ID: primitive.NewObjectID()}
		require.Error(mt, s.Save(context.Background(), &run))
	})
}

func TestEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates startedAt index", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		name, err := New(mt.Coll).EnsureIndexes(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, "startedAt_-1", name)
	})
}

func TestRecent(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes runs in order", func(mt *mtest.T) {
		newer, older := primitive.NewObjectID(), primitive.NewObjectID()
		started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
		first := mtest.CreateCursorResponse(1, namespace(mt), mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: newer},
				{Key: "sum", Value: sumbench.ExpectedSum},
				{Key: "elapsedSeconds", Value: 0.041},
				{Key: "startedAt", Value: started.Add(time.Minute)},
				{Key: "host", Value: "bench-1"},
			},
			bson.D{
				{Key: "_id", Value: older},
				{Key: "sum", Value: sumbench.ExpectedSum},
				{Key: "elapsedSeconds", Value: 0.052},
				{Key: "startedAt", Value: started},
				{Key: "host", Value: "bench-1"},
			},
		)
		last := mtest.CreateCursorResponse(0, namespace(mt), mtest.NextBatch)
		mt.AddMockResponses(first, last)

		runs, err := New(mt.Coll).Recent(context.Background(), 10)
		require.NoError(mt, err)
		require.Len(mt, runs, 2)
		assert.Equal(mt, newer, runs[0].ID)
		assert.Equal(mt, older, runs[1].ID)
		assert.InDelta(mt, 0.052, runs[1].ElapsedSeconds, 1e-9)
		assert.Equal(mt, "bench-1", runs[0].Host)
		assert.True(mt, runs[1].StartedAt.Equal(started))
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad sort",
		}))
		_, err := New(mt.Coll).Recent(context.Background(), 10)
		require.Error(mt, err)
	})
}

func TestStats(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("aggregates", func(mt *mtest.T) {
		first := mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: nil},
			{Key: "runs", Value: int64(3)},
			{Key: "avgElapsed", Value: 0.05},
			{Key: "minElapsed", Value: 0.04},
			{Key: "maxElapsed", Value: 0.06},
			{Key: "distinctSums", Value: bson.A{sumbench.ExpectedSum}},
		})
		mt.AddMockResponses(first)

		agg, err := New(mt.Coll).Stats(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, int64(3), agg.Runs)
		assert.InDelta(mt, 0.05, agg.AvgElapsed, 1e-9)
		assert.InDelta(mt, 0.04, agg.MinElapsed, 1e-9)
		assert.InDelta(mt, 0.06, agg.MaxElapsed, 1e-9)
		assert.Equal(mt, []int64{sumbench.ExpectedSum}, agg.DistinctSums)
	})

	mt.Run("empty collection", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))
		agg, err := New(mt.Coll).Stats(context.Background())
		require.NoError(mt, err)
		assert.Equal(mt, Aggregate{}, agg)
	})
}
