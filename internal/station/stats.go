package station

import (
	"context"
	"fmt"
	"time"
)

// CollectionStats returns the full stats record. The cached totals come from
// the stats row; everything else is recomputed by joining the collection
// against the catalog on every call. The freshly derived record is written
// back so consumers reading the row directly see a consistent snapshot.
func (s *Service) CollectionStats(ctx context.Context) (*Stats, error) {
	now := s.clock.Now()

	stats, err := s.db.EnsureStats(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("loading stats row: %w", err)
	}

	stations, err := s.db.AllStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	collection, err := s.db.Collection(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading collection: %w", err)
	}

	stats.PriceClassStats = PriceClassStats(stations, collection)
	stats.MainStationStats = MainStationStats(stations, collection)
	stats.StationsThisMonth = CountThisMonth(collection, now)
	stats.Level = LevelForPoints(stats.TotalPoints)
	stats.MonthStreak = MonthStreak(collection, now)

	if err := s.db.SaveStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("caching derived stats: %w", err)
	}

	return stats, nil
}

// PriceClassStats computes the collected/total completion pair for every
// price tier 1..7. Catalog stations with a tier outside that range are
// excluded from all buckets.
func PriceClassStats(stations []Station, collection []CollectionEntry) map[int]TierStat {
	collected := make(map[string]bool, len(collection))
	for _, e := range collection {
		collected[e.StationID] = true
	}

	stats := make(map[int]TierStat, 7)
	for tier := 1; tier <= 7; tier++ {
		stats[tier] = TierStat{}
	}

	for _, st := range stations {
		if st.PriceClass < 1 || st.PriceClass > 7 {
			continue
		}
		tier := stats[st.PriceClass]
		tier.Total++
		if collected[st.ID] {
			tier.Collected++
		}
		stats[st.PriceClass] = tier
	}

	return stats
}

// MainStationStats computes the completion pair for the main-station bucket.
// The collected side counts entries whose snapshot carries the flag, so it
// reflects what the user actually collected.
func MainStationStats(stations []Station, collection []CollectionEntry) TierStat {
	var stat TierStat
	for _, st := range stations {
		if st.IsMainStation {
			stat.Total++
		}
	}
	for _, e := range collection {
		if e.Station.IsMainStation {
			stat.Collected++
		}
	}
	return stat
}

// CountThisMonth counts entries collected within the current calendar month,
// inclusive of its first and last instant.
func CountThisMonth(collection []CollectionEntry, now time.Time) int {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0)

	count := 0
	for _, e := range collection {
		ts := e.Timestamp.In(now.Location())
		if !ts.Before(start) && ts.Before(end) {
			count++
		}
	}
	return count
}

// MonthStreak counts consecutive calendar months containing at least one
// collection event, walking backward from the current month and stopping at
// the first gap. An empty collection, or a most recent entry outside the
// current month, yields 0.
func MonthStreak(collection []CollectionEntry, now time.Time) int {
	if len(collection) == 0 {
		return 0
	}

	months := make(map[string]bool, len(collection))
	var latest time.Time
	for _, e := range collection {
		ts := e.Timestamp.In(now.Location())
		months[monthToken(ts)] = true
		if ts.After(latest) {
			latest = ts
		}
	}

	if monthToken(latest) != monthToken(now) {
		return 0
	}

	streak := 0
	cursor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for months[monthToken(cursor)] {
		streak++
		cursor = cursor.AddDate(0, -1, 0)
	}
	return streak
}

func monthToken(t time.Time) string {
	return t.Format("2006-01")
}
