// Package store records benchmark runs in MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/inheritance10/sumbench/pkg/logflags"
	"github.com/inheritance10/sumbench/pkg/sumbench"
)

// ErrNotConnected is returned when a Store has no collection behind it.
var ErrNotConnected = errors.New("results store is not connected")

// Run is one stored benchmark run.
type Run struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Sum            int64              `bson:"sum"`
	ElapsedSeconds float64            `bson:"elapsedSeconds"`
	WallSeconds    float64            `bson:"wallSeconds"`
	StartedAt      time.Time          `bson:"startedAt"`
	Host           string             `bson:"host"`
	GoVersion      string             `bson:"goVersion"`
	GOOS           string             `bson:"goos"`
	GOARCH         string             `bson:"goarch"`
}

// NewRun describes r, started at startedAt, on the current host.
func NewRun(r sumbench.Result, startedAt time.Time) Run {
	host, _ := os.Hostname()
	return Run{
		Sum:            r.Sum,
		ElapsedSeconds: r.Seconds(),
		WallSeconds:    r.Wall.Seconds(),
		StartedAt:      startedAt.UTC().Truncate(time.Millisecond),
		Host:           host,
		GoVersion:      runtime.Version(),
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
	}
}

// Aggregate summarises every stored run.
type Aggregate struct {
	Runs         int64   `bson:"runs"`
	AvgElapsed   float64 `bson:"avgElapsed"`
	MinElapsed   float64 `bson:"minElapsed"`
	MaxElapsed   float64 `bson:"maxElapsed"`
	DistinctSums []int64 `bson:"distinctSums"`
}

// Options configures Connect.
type Options struct {
	URI         string
	Database    string
	Collection  string
	MaxPoolSize uint64
	Timeout     time.Duration
}

// Store is a MongoDB collection of Runs.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *logrus.Entry
}

// Connect dials the deployment at opts.URI and pings it.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(opts.URI).
		SetMaxPoolSize(opts.MaxPoolSize),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.URI, err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging %s: %w", opts.URI, err)
	}

	s := New(client.Database(opts.Database).Collection(opts.Collection))
	s.client = client
	s.log.Debugf("connected to %s (%s.%s)", opts.URI, opts.Database, opts.Collection)
	return s, nil
}

// New returns a Store over an existing collection. Close will not
// disconnect the collection's client.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll, log: logflags.StoreLogger()}
}

// EnsureIndexes creates the index used by Recent. Creating an index that
// already exists is not an error.
func (s *Store) EnsureIndexes(ctx context.Context) (string, error) {
	if s.coll == nil {
		return "", ErrNotConnected
	}
	name, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "startedAt", Value: -1}},
		Options: options.Index().SetName("startedAt_-1"),
	})
	if err != nil {
		return "", fmt.Errorf("creating index: %w", err)
	}
	s.log.Debugf("index %s ready", name)
	return name, nil
}

// Save inserts run and sets its ID.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if s.coll == nil {
		return ErrNotConnected
	}
	res, err := s.coll.InsertOne(ctx, run)
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		run.ID = id
	}
	s.log.WithFields(logrus.Fields{"id": run.ID.Hex(), "sum": run.Sum, "elapsed": run.ElapsedSeconds}).Debug("run saved")
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int64) ([]Run, error) {
	if s.coll == nil {
		return nil, ErrNotConnected
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetLimit(limit)
	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []Run
	for cursor.Next(ctx) {
		var run Run
		if err := cursor.Decode(&run); err != nil {
			return nil, fmt.Errorf("decoding run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Stats aggregates all stored runs server side. An empty collection
// yields the zero Aggregate.
func (s *Store) Stats(ctx context.Context) (Aggregate, error) {
	if s.coll == nil {
		return Aggregate{}, ErrNotConnected
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "runs", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avgElapsed", Value: bson.D{{Key: "$avg", Value: "$elapsedSeconds"}}},
			{Key: "minElapsed", Value: bson.D{{Key: "$min", Value: "$elapsedSeconds"}}},
			{Key: "maxElapsed", Value: bson.D{{Key: "$max", Value: "$elapsedSeconds"}}},
			{Key: "distinctSums", Value: bson.D{{Key: "$addToSet", Value: "$sum"}}},
		}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregating runs: %w", err)
	}
	defer cursor.Close(ctx)

	var agg Aggregate
	if cursor.Next(ctx) {
		if err := cursor.Decode(&agg); err != nil {
			return Aggregate{}, fmt.Errorf("decoding aggregate: %w", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return Aggregate{}, fmt.Errorf("aggregating runs: %w", err)
	}
	return agg, nil
}

// Close disconnects the client opened by Connect.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
