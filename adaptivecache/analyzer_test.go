/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueryAnalyzer_Analyze(t *testing.T) {
	largeInList := "SELECT id FROM orders WHERE id IN (" + strings.TrimSuffix(strings.Repeat("?,", 12), ",") + ")"

	tests := []struct {
		name            string
		query           string
		execTime        time.Duration
		wantRules       []string
		wantImprovement time.Duration
	}{
		{
			name:            "where without index",
			query:           "select id from users where email = ?",
			execTime:        200 * time.Millisecond,
			wantRules:       []string{"add_index"},
			wantImprovement: 80 * time.Millisecond,
		},
		{
			name:            "where without index, fast query",
			query:           "SELECT id FROM users WHERE email = ?",
			execTime:        50 * time.Millisecond,
			wantRules:       []string{"add_index"},
			wantImprovement: 40 * time.Millisecond,
		},
		{
			name:      "where with index hint",
			query:     "SELECT id FROM users FORCE INDEX (idx_email) WHERE email = ?",
			execTime:  50 * time.Millisecond,
			wantRules: nil,
		},
		{
			name:            "select all",
			query:           "SELECT   *\n\tFROM users",
			execTime:        40 * time.Millisecond,
			wantRules:       []string{"select_columns"},
			wantImprovement: 20 * time.Millisecond,
		},
		{
			name:      "count all is not select all",
			query:     "SELECT COUNT(*) FROM users",
			execTime:  40 * time.Millisecond,
			wantRules: nil,
		},
		{
			name:            "large IN list",
			query:           largeInList,
			execTime:        100 * time.Millisecond,
			wantRules:       []string{"add_index", "batch_in_list"},
			wantImprovement: 100 * time.Millisecond,
		},
		{
			name:            "small IN list",
			query:           "SELECT id FROM orders WHERE id IN(1, 2, 3)",
			execTime:        100 * time.Millisecond,
			wantRules:       []string{"add_index"},
			wantImprovement: 80 * time.Millisecond,
		},
		{
			name:            "order without limit",
			query:           "SELECT id FROM orders ORDER BY created_at DESC",
			execTime:        10 * time.Millisecond,
			wantRules:       []string{"add_limit"},
			wantImprovement: 3 * time.Millisecond,
		},
		{
			name:      "order with limit",
			query:     "SELECT id FROM orders ORDER BY created_at DESC LIMIT 10",
			execTime:  10 * time.Millisecond,
			wantRules: nil,
		},
		{
			name:      "column name containing keyword",
			query:     "SELECT somewhere_id FROM t",
			execTime:  10 * time.Millisecond,
			wantRules: nil,
		},
	}
	analyzer := NewQueryAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := analyzer.Analyze(tt.query, tt.execTime)
			require.Equal(t, tt.query, rec.Query)
			require.Equal(t, tt.execTime, rec.ExecutionTime)
			require.Equal(t, tt.wantRules, rec.MatchedRules)
			require.Equal(t, tt.wantImprovement, rec.EstimatedImprovement)
			require.LessOrEqual(t, rec.EstimatedImprovement, rec.ExecutionTime)
			if len(tt.wantRules) == 0 {
				require.Equal(t, RecommendationAlreadyOptimized, rec.Recommendation)
			} else {
				require.Len(t, strings.Split(rec.Recommendation, recommendationSeparator), len(tt.wantRules))
			}
			require.True(t, rec.CreatedAt.IsZero())
		})
	}
}

func TestQueryAnalyzer_CombinedRecommendation(t *testing.T) {
	rec := NewQueryAnalyzer().Analyze("SELECT * FROM orders WHERE status = 'new' ORDER BY id", time.Second)
	require.Equal(t, []string{"add_index", "select_columns", "add_limit"}, rec.MatchedRules)
	require.Equal(t,
		"Add an index on the filtered columns; Select only the required columns; Add a LIMIT to ordered queries",
		rec.Recommendation)
	require.Equal(t, 160*time.Millisecond, rec.EstimatedImprovement)
}

func TestQueryAnalyzer_CustomRules(t *testing.T) {
	analyzer := NewQueryAnalyzer(
		QueryRule{
			Name:           "no_full_scan",
			Match:          func(f QueryFeatures) bool { return !f.HasWhere && !f.HasLimit },
			Recommendation: "Filter or limit the result",
			Estimate:       ProportionalEstimate(1, time.Second),
		},
		DefaultQueryRules(3)[2],
	)
	require.Equal(t, []string{"no_full_scan", "batch_in_list"}, analyzer.Rules())

	rec := analyzer.Analyze("SELECT a FROM t", 30*time.Millisecond)
	require.Equal(t, []string{"no_full_scan"}, rec.MatchedRules)
	require.Equal(t, 30*time.Millisecond, rec.EstimatedImprovement)

	rec = analyzer.Analyze("SELECT a FROM t WHERE b IN (1, 2, 3)", 30*time.Millisecond)
	require.Equal(t, []string{"batch_in_list"}, rec.MatchedRules)
	require.Equal(t, 21*time.Millisecond, rec.EstimatedImprovement)
}

func TestQueryAnalyzer_Features(t *testing.T) {
	f := NewQueryAnalyzer().Features(
		"select * from a where x in (1, (select max(y) from b), 3) and z in (4,5) order by x limit 1")
	require.Equal(t, QueryFeatures{
		HasWhere:       true,
		SelectsAll:     true,
		HasOrderBy:     true,
		HasLimit:       true,
		HasInList:      true,
		MaxInListItems: 3,
	}, f)
}

func TestQueryAnalyzer_Concurrent(t *testing.T) {
	analyzer := NewQueryAnalyzer()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec := analyzer.Analyze("SELECT * FROM t WHERE a = 1", 100*time.Millisecond)
				if len(rec.MatchedRules) != 2 {
					t.Errorf("unexpected rules: %v", rec.MatchedRules)
					return
				}
			}
		}()
	}
	wg.Wait()
}
