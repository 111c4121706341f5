package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Plan is the part of a query explanation that matters for Recent.
type Plan struct {
	// Stage is the innermost stage of the winning plan, normally
	// IXSCAN once EnsureIndexes has run and COLLSCAN before.
	Stage           string
	IndexName       string
	ExecutionMillis int64
	DocsExamined    int64
	KeysExamined    int64
	Returned        int64
}

// Warnings lists the problems an operator should act on.
func (p Plan) Warnings() []string {
	var w []string
	if p.Stage == "COLLSCAN" {
		w = append(w, "collection scan: the startedAt index is missing (record a run to create it)")
	}
	if p.Returned > 0 && p.DocsExamined > 2*p.Returned {
		w = append(w, fmt.Sprintf("examined %dx more documents than returned", p.DocsExamined/p.Returned))
	}
	if p.ExecutionMillis > 100 {
		w = append(w, fmt.Sprintf("slow query: %d ms", p.ExecutionMillis))
	}
	return w
}

type explainOutput struct {
	QueryPlanner struct {
		WinningPlan bson.Raw `bson:"winningPlan"`
	} `bson:"queryPlanner"`
	ExecutionStats struct {
		ExecutionTimeMillis int64 `bson:"executionTimeMillis"`
		TotalDocsExamined   int64 `bson:"totalDocsExamined"`
		TotalKeysExamined   int64 `bson:"totalKeysExamined"`
		NReturned           int64 `bson:"nReturned"`
	} `bson:"executionStats"`
}

// ExplainRecent asks the server how it executes the query behind Recent.
func (s *Store) ExplainRecent(ctx context.Context, limit int64) (Plan, error) {
	if s.coll == nil {
		return Plan{}, ErrNotConnected
	}
	cmd := bson.D{
		{Key: "explain", Value: bson.D{
			{Key: "find", Value: s.coll.Name()},
			{Key: "filter", Value: bson.D{}},
			{Key: "sort", Value: bson.D{{Key: "startedAt", Value: -1}}},
			{Key: "limit", Value: limit},
		}},
		{Key: "verbosity", Value: "executionStats"},
	}
	var out explainOutput
	if err := s.coll.Database().RunCommand(ctx, cmd).Decode(&out); err != nil {
		return Plan{}, fmt.Errorf("explaining recent runs: %w", err)
	}

	p := Plan{
		ExecutionMillis: out.ExecutionStats.ExecutionTimeMillis,
		DocsExamined:    out.ExecutionStats.TotalDocsExamined,
		KeysExamined:    out.ExecutionStats.TotalKeysExamined,
		Returned:        out.ExecutionStats.NReturned,
	}
	p.Stage, p.IndexName = leafStage(out.QueryPlanner.WinningPlan)
	s.log.Debugf("recent runs plan: stage=%s index=%s", p.Stage, p.IndexName)
	return p, nil
}

// leafStage follows inputStage links down to the stage that reads data.
// Servers using the slot based engine nest the plan under queryPlan.
func leafStage(plan bson.Raw) (stage, index string) {
	if qp, err := plan.LookupErr("queryPlan"); err == nil {
		if doc, ok := qp.DocumentOK(); ok {
			plan = doc
		}
	}
	for len(plan) > 0 {
		if v, err := plan.LookupErr("stage"); err == nil {
			stage, _ = v.StringValueOK()
		}
		if v, err := plan.LookupErr("indexName"); err == nil {
			index, _ = v.StringValueOK()
		}
		next, err := plan.LookupErr("inputStage")
		if err != nil {
			break
		}
		doc, ok := next.DocumentOK()
		if !ok {
			break
		}
		plan = doc
	}
	return stage, index
}
