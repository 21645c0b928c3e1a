// Package search provides the default name-similarity ranker for catalog
// queries. It satisfies station.Ranker; alternative heuristics can be swapped
// in without touching the collection service.
package search

import (
	"sort"
	"strings"

	"bahnhofjaeger/internal/station"
)

// minSimilarity filters out results whose name match is too weak to show.
const minSimilarity = 0.3

// maxPointValue normalizes point values into the 0-1 scoring range
// (price class 1 yields 70 points).
const maxPointValue = 70.0

// NameRanker scores stations by name similarity, blended with point value
// and a boost for main stations.
type NameRanker struct{}

var _ station.Ranker = (*NameRanker)(nil)

func NewNameRanker() *NameRanker { return &NameRanker{} }

// Rank returns the top results for the query, ordered by combined score
// descending. An empty or whitespace query yields no results.
func (r *NameRanker) Rank(stations []station.Station, query string, limit int) []station.SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	results := make([]station.SearchResult, 0, len(stations))
	for _, st := range stations {
		match := Similarity(st.Name, query)
		if match < minSimilarity {
			continue
		}

		score := match*0.7 + (float64(st.PointValue)/maxPointValue)*0.15
		if isMainStationName(st.Name) {
			score += 0.15
		}

		results = append(results, station.SearchResult{
			Station:    st,
			Score:      score,
			MatchScore: match,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Similarity scores how well a station name matches a query, between 0 (no
// match) and 1 (exact match). Prefix matches rank above substring matches,
// which rank above scattered character/word overlap.
func Similarity(name, query string) float64 {
	s1 := strings.ToLower(name)
	s2 := strings.ToLower(query)

	if s1 == s2 {
		return 1.0
	}

	if strings.HasPrefix(s1, s2) {
		return 0.9 + 0.1*(float64(len(s2))/float64(len(s1)))
	}

	if idx := strings.Index(s1, s2); idx >= 0 {
		positionPenalty := float64(idx) / float64(len(s1))
		return 0.8 - 0.3*positionPenalty
	}

	if strings.Contains(s2, s1) {
		return 0.7 * (float64(len(s1)) / float64(len(s2)))
	}

	// Weak fallback: positional character overlap plus word overlap,
	// with word matches weighted more heavily.
	matches := 0
	minLen := len(s1)
	if len(s2) < minLen {
		minLen = len(s2)
	}
	for i := 0; i < minLen; i++ {
		if s1[i] == s2[i] {
			matches++
		}
	}
	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}

	words1 := toWordSet(s1)
	words2 := toWordSet(s2)
	wordMatches := 0
	for w := range words1 {
		if words2[w] {
			wordMatches++
		}
	}
	maxWords := len(words1)
	if len(words2) > maxWords {
		maxWords = len(words2)
	}

	charScore := float64(matches) / float64(maxLen)
	wordScore := 0.0
	if maxWords > 0 {
		wordScore = float64(wordMatches) / float64(maxWords)
	}

	return 0.1 + charScore*0.3 + wordScore*0.5
}

func toWordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// isMainStationName recognizes Hauptbahnhof naming variants.
func isMainStationName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "hauptbahnhof") ||
		strings.Contains(lower, " hbf") ||
		strings.HasPrefix(lower, "hbf")
}
