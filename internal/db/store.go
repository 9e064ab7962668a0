package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"route-tracker/internal/geo"
)

// RouteStore loads trip routes from a GTFS database. The connection can be
// swapped while sessions are running, e.g. when a newer city import appears.
type RouteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewRouteStore(db *sql.DB) *RouteStore {
	return &RouteStore{db: db}
}

// LoadRoute returns the shape of tripID as ordered waypoints.
func (s *RouteStore) LoadRoute(ctx context.Context, tripID string) ([]geo.Point, error) {
	s.mu.RLock()
	conn := s.db
	s.mu.RUnlock()

	trip, err := FetchTrip(ctx, conn, tripID)
	if err != nil {
		return nil, err
	}
	if trip.ShapeID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoShape, tripID)
	}
	pts, err := FetchShapePoints(ctx, conn, trip.ShapeID)
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: %s (shape %s is empty)", ErrNoShape, tripID, trip.ShapeID)
	}
	return pts.Route(), nil
}

// Swap installs conn and returns the previous connection for the caller to close.
func (s *RouteStore) Swap(conn *sql.DB) *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.db
	s.db = conn
	return old
}

// DB returns the current connection.
func (s *RouteStore) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}
