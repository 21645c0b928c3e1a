package station

import (
	"context"
	"fmt"
)

// SearchResult pairs a catalog station with its ranking score and the user's
// collected status.
type SearchResult struct {
	Station    Station `json:"station"`
	Score      float64 `json:"score"`
	MatchScore float64 `json:"matchScore"`
	Collected  bool    `json:"collected"`
}

// Ranker scores and orders catalog stations against a text query. The
// ranking heuristic is an external collaborator; the service only consumes
// its ordered, length-limited output.
type Ranker interface {
	Rank(stations []Station, query string, limit int) []SearchResult
}

// Acknowledger notifies a remote endpoint that a station was added. The call
// is non-authoritative: the local add is already committed before it runs and
// its failure never affects collection state.
type Acknowledger interface {
	AcknowledgeAdd(ctx context.Context, stationID string) error
}

// Service implements the collection operations on top of the Database,
// keeping the cached stats row consistent with every mutation.
type Service struct {
	db     Database
	ranker Ranker
	ack    Acknowledger
	logger Logger
	clock  Clock
}

// NewService creates a Service. ack may be nil when telemetry is disabled.
func NewService(db Database, ranker Ranker, ack Acknowledger, logger Logger, clock Clock) *Service {
	return &Service{
		db:     db,
		ranker: ranker,
		ack:    ack,
		logger: logger,
		clock:  clock,
	}
}

// Add puts a station into the collection. Collecting a station that is
// already collected is a defined outcome (AlreadyCollected), not an error.
// The outcome is only meaningful when the returned error is nil.
func (s *Service) Add(ctx context.Context, st Station) (AddOutcome, error) {
	entry := CollectionEntry{
		StationID: st.ID,
		Timestamp: s.clock.Now(),
		Station:   st,
	}

	added, err := s.db.AddToCollection(ctx, entry)
	if err != nil {
		return 0, fmt.Errorf("adding station %s: %w", st.ID, err)
	}
	if !added {
		return AlreadyCollected, nil
	}

	s.logger.Info("station collected", "id", st.ID, "name", st.Name, "points", st.PointValue)

	// The add is committed; the acknowledgment is fire-and-forget.
	if s.ack != nil {
		if err := s.ack.AcknowledgeAdd(ctx, st.ID); err != nil {
			s.logger.Warn("add acknowledgment failed", "id", st.ID, "error", err)
		}
	}

	return Added, nil
}

// Remove takes a station out of the collection. Removing a station that was
// never collected is a defined outcome (NotFound), not an error.
// The outcome is only meaningful when the returned error is nil.
//
// The stats decrement uses the point value from the entry's stored snapshot,
// not a fresh catalog lookup, so removal stays correct after re-imports.
func (s *Service) Remove(ctx context.Context, stationID string) (RemoveOutcome, error) {
	entry, err := s.db.RemoveFromCollection(ctx, stationID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("removing station %s: %w", stationID, err)
	}
	if entry == nil {
		return NotFound, nil
	}

	s.logger.Info("station removed", "id", stationID, "points", entry.Station.PointValue)
	return Removed, nil
}

// Collection returns all entries, unsorted.
func (s *Service) Collection(ctx context.Context) ([]CollectionEntry, error) {
	return s.db.Collection(ctx)
}

// SortedCollection returns all entries ordered by timestamp descending
// (most recent first).
func (s *Service) SortedCollection(ctx context.Context) ([]CollectionEntry, error) {
	return s.db.SortedCollection(ctx)
}

// StationByID looks up a catalog station. Returns nil when the id is unknown.
func (s *Service) StationByID(ctx context.Context, stationID string) (*Station, error) {
	return s.db.FindStationByID(ctx, stationID)
}

// IsCollected reports whether the station is in the collection.
func (s *Service) IsCollected(ctx context.Context, stationID string) (bool, error) {
	return s.db.HasEntry(ctx, stationID)
}

// Search ranks the catalog against the query and annotates each result with
// the user's collected status.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	stations, err := s.db.AllStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog for search: %w", err)
	}

	results := s.ranker.Rank(stations, query, limit)
	if err := s.RefreshCollected(ctx, results); err != nil {
		return nil, err
	}
	return results, nil
}

// RefreshCollected re-checks the collected status of existing search results
// in place, so callers can update a result list after a mutation without
// re-running the ranking.
func (s *Service) RefreshCollected(ctx context.Context, results []SearchResult) error {
	for i := range results {
		collected, err := s.db.HasEntry(ctx, results[i].Station.ID)
		if err != nil {
			return fmt.Errorf("checking collected status of %s: %w", results[i].Station.ID, err)
		}
		results[i].Collected = collected
	}
	return nil
}
