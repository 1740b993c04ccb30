/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package adaptivecache

import (
	"math"
	"strings"
	"time"

	"github.com/cloudflare/ahocorasick"
)

// DefaultLargeInListThreshold is the number of items starting from which an IN-list is considered large.
const DefaultLargeInListThreshold = 10

// RecommendationAlreadyOptimized is returned when no rule matches the query.
const RecommendationAlreadyOptimized = "Query is already optimized"

const recommendationSeparator = "; "

// Keywords searched in the normalized query. The order must match the keyword* indexes below.
var queryKeywords = []string{" WHERE ", " INDEX", " SELECT * ", " IN (", " ORDER BY ", " LIMIT "}

const (
	keywordWhere = iota
	keywordIndex
	keywordSelectAll
	keywordInList
	keywordOrderBy
	keywordLimit
)

// QueryFeatures describes syntactic features of a SQL query detected by the analyzer.
type QueryFeatures struct {
	HasWhere     bool
	HasIndexHint bool
	SelectsAll   bool
	HasOrderBy   bool
	HasLimit     bool
	HasInList    bool

	// MaxInListItems is the number of items in the largest IN-list of the query.
	MaxInListItems int
}

// QueryRule is a single heuristic of the analyzer.
type QueryRule struct {
	Name           string
	Match          func(f QueryFeatures) bool
	Recommendation string
	// Estimate returns the expected improvement for the given execution time.
	Estimate func(executionTime time.Duration) time.Duration
}

// ProportionalEstimate returns an estimate function that yields min(limit, executionTime*ratio).
func ProportionalEstimate(ratio float64, limit time.Duration) func(time.Duration) time.Duration {
	return func(executionTime time.Duration) time.Duration {
		return min(limit, time.Duration(math.Round(float64(executionTime)*ratio)))
	}
}

// DefaultQueryRules returns the built-in rules in evaluation order.
// largeInListThreshold is the minimal number of IN-list items for the batch_in_list rule.
func DefaultQueryRules(largeInListThreshold int) []QueryRule {
	if largeInListThreshold <= 0 {
		largeInListThreshold = DefaultLargeInListThreshold
	}
	return []QueryRule{
		{
			Name:           "add_index",
			Match:          func(f QueryFeatures) bool { return f.HasWhere && !f.HasIndexHint },
			Recommendation: "Add an index on the filtered columns",
			Estimate:       ProportionalEstimate(0.8, 80*time.Millisecond),
		},
		{
			Name:           "select_columns",
			Match:          func(f QueryFeatures) bool { return f.SelectsAll },
			Recommendation: "Select only the required columns",
			Estimate:       ProportionalEstimate(0.5, 50*time.Millisecond),
		},
		{
			Name:           "batch_in_list",
			Match:          func(f QueryFeatures) bool { return f.HasInList && f.MaxInListItems >= largeInListThreshold },
			Recommendation: "Batch lookups instead of large IN lists",
			Estimate:       ProportionalEstimate(0.7, 70*time.Millisecond),
		},
		{
			Name:           "add_limit",
			Match:          func(f QueryFeatures) bool { return f.HasOrderBy && !f.HasLimit },
			Recommendation: "Add a LIMIT to ordered queries",
			Estimate:       ProportionalEstimate(0.3, 30*time.Millisecond),
		},
	}
}

// QueryOptimizationRecord is the result of a single query analysis.
type QueryOptimizationRecord struct {
	Query                string        `json:"query" yaml:"query"`
	ExecutionTime        time.Duration `json:"executionTime" yaml:"executionTime"`
	Recommendation       string        `json:"recommendation" yaml:"recommendation"`
	EstimatedImprovement time.Duration `json:"estimatedImprovement" yaml:"estimatedImprovement"`
	MatchedRules         []string      `json:"matchedRules,omitempty" yaml:"matchedRules,omitempty"`
	CreatedAt            time.Time     `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
}

// QueryAnalyzer produces optimization recommendations for SQL queries using an ordered list of rules.
// It is stateless and safe for concurrent use.
type QueryAnalyzer struct {
	rules   []QueryRule
	matcher *ahocorasick.Matcher
}

// NewQueryAnalyzer creates a new QueryAnalyzer.
// If no rules are passed, DefaultQueryRules with the default IN-list threshold is used.
func NewQueryAnalyzer(rules ...QueryRule) *QueryAnalyzer {
	if len(rules) == 0 {
		rules = DefaultQueryRules(DefaultLargeInListThreshold)
	}
	return &QueryAnalyzer{
		rules:   append([]QueryRule(nil), rules...),
		matcher: ahocorasick.NewStringMatcher(queryKeywords),
	}
}

// Rules returns the names of the analyzer rules in evaluation order.
func (a *QueryAnalyzer) Rules() []string {
	names := make([]string, 0, len(a.rules))
	for i := range a.rules {
		names = append(names, a.rules[i].Name)
	}
	return names
}

// Analyze evaluates all rules against the query.
// The returned record has zero CreatedAt, it is up to the caller to stamp it.
func (a *QueryAnalyzer) Analyze(query string, executionTime time.Duration) QueryOptimizationRecord {
	features := a.Features(query)

	var recommendations, matched []string
	var improvement time.Duration
	for i := range a.rules {
		rule := &a.rules[i]
		if rule.Match == nil || !rule.Match(features) {
			continue
		}
		matched = append(matched, rule.Name)
		recommendations = append(recommendations, rule.Recommendation)
		if rule.Estimate != nil {
			improvement += rule.Estimate(executionTime)
		}
	}

	record := QueryOptimizationRecord{
		Query:         query,
		ExecutionTime: executionTime,
		MatchedRules:  matched,
	}
	if len(matched) == 0 {
		record.Recommendation = RecommendationAlreadyOptimized
		return record
	}
	record.Recommendation = strings.Join(recommendations, recommendationSeparator)
	record.EstimatedImprovement = max(0, min(improvement, executionTime))
	return record
}

// Features detects the syntactic features of the query.
func (a *QueryAnalyzer) Features(query string) QueryFeatures {
	normalized := normalizeQuery(query)

	var f QueryFeatures
	for _, idx := range a.matcher.MatchThreadSafe([]byte(normalized)) {
		switch idx {
		case keywordWhere:
			f.HasWhere = true
		case keywordIndex:
			f.HasIndexHint = true
		case keywordSelectAll:
			f.SelectsAll = true
		case keywordInList:
			f.HasInList = true
		case keywordOrderBy:
			f.HasOrderBy = true
		case keywordLimit:
			f.HasLimit = true
		}
	}
	if f.HasInList {
		f.MaxInListItems = maxInListItems(normalized)
	}
	return f
}

var punctuationSpacer = strings.NewReplacer("(", " ( ", ")", " ) ", ",", " , ", ";", " ; ")

// normalizeQuery upper-cases the query, puts spaces around punctuation and collapses whitespace.
// The result is padded with single spaces so that keywords at the edges match as whole words.
func normalizeQuery(query string) string {
	fields := strings.Fields(punctuationSpacer.Replace(strings.ToUpper(query)))
	return " " + strings.Join(fields, " ") + " "
}

// maxInListItems returns the number of items in the largest IN-list of the normalized query.
// A sub-select inside the list is counted as a single item.
func maxInListItems(normalized string) int {
	const marker = " IN ("
	result := 0
	for rest := normalized; ; {
		pos := strings.Index(rest, marker)
		if pos < 0 {
			return result
		}
		rest = rest[pos+len(marker):]

		depth, items, hasItem := 0, 0, false
	scan:
		for _, r := range rest {
			switch {
			case r == '(':
				depth++
				hasItem = true
			case r == ')' && depth == 0:
				break scan
			case r == ')':
				depth--
			case r == ',' && depth == 0:
				items++
				hasItem = false
			case r != ' ':
				hasItem = true
			}
		}
		if hasItem {
			items++
		}
		result = max(result, items)
	}
}
