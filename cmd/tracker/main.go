package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"route-tracker/internal/config"
	"route-tracker/internal/db"
	"route-tracker/internal/metrics"
	"route-tracker/internal/publisher"
	"route-tracker/internal/session"
)

const cityDBCheckInterval = 30 * time.Minute

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	opts, err := cfg.TrackerOptions()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Resolve latest city database if CITY is set
	dsn := cfg.DatabaseURL
	var currentDBName string
	if cfg.City != "" {
		dsn, currentDBName, err = db.ResolveCityDSN(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			log.Fatalf("resolve latest import for city %q: %v", cfg.City, err)
		}
		log.Printf("Using database %q for city %q", currentDBName, cfg.City)
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error (%s): %v", db.Redact(dsn), err)
	}
	store := db.NewRouteStore(sqlDB)
	defer func() { store.DB().Close() }()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.AdvanceRadius, cfg.Deviation.CorridorRadius, cfg.SessionIdleTTL)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.EventSubjectPrefix, cfg.LogNATSSubjects, publisherMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer pub.Close()

	mgr, err := session.NewManager(store, pub, opts, cfg.SessionIdleTTL, mcol)
	if err != nil {
		log.Fatalf("session manager error: %v", err)
	}
	mgr.StartReaper(ctx)

	sub, err := pub.Subscribe(cfg.FixSubject, func(msg publisher.PositionMessage) {
		if err := mgr.HandleFix(ctx, msg); err != nil {
			log.Printf("fix for trip %s: %v", msg.TripID, err)
		}
	})
	if err != nil {
		log.Fatalf("nats subscribe %q: %v", cfg.FixSubject, err)
	}
	log.Printf("tracking positions on %q (policy=%s, advance=%.1fm, projection=%s)", cfg.FixSubject, opts.Policy, opts.AdvanceRadius, cfg.Projection)

	var done chan struct{}
	if cfg.City != "" {
		done = make(chan struct{})
		go func() {
			defer close(done)
			watchCityDB(ctx, cfg, store, currentDBName, mcol)
		}()
	}

	// Block until context cancelled
	<-ctx.Done()
	_ = sub.Unsubscribe()
	mgr.Stop()
	if done != nil {
		<-done
	}
	log.Println("shutdown complete")
}

// watchCityDB periodically re-resolves the city database and swaps the route
// store onto a newer import, or onto a fresh connection when pings fail.
// Running sessions keep the routes they already loaded.
func watchCityDB(ctx context.Context, cfg *config.Config, store *db.RouteStore, currentDBName string, mcol *metrics.Collector) {
	ticker := time.NewTicker(cityDBCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reason := ""
		if err := db.Ping(ctx, store.DB()); err != nil {
			log.Printf("db ping failed: %v, re-resolving city DB", err)
			reason = "ping_failure"
		}

		dsn, name, err := db.ResolveCityDSN(ctx, cfg.DatabaseURL, cfg.City)
		if err != nil {
			log.Printf("resolve latest import error: %v", err)
			continue
		}
		if name != currentDBName {
			log.Printf("Detected updated DB for city %q: %q -> %q", cfg.City, currentDBName, name)
			reason = "update"
		}
		if reason == "" {
			continue
		}

		newDB, err := openAndPing(ctx, dsn)
		if err != nil {
			log.Printf("open new DB error: %v", err)
			continue
		}
		if mcol != nil {
			mcol.DBSwitches.WithLabelValues(reason).Inc()
		}
		store.Swap(newDB).Close()
		currentDBName = name
		log.Printf("Switched to DB %q for city %q", currentDBName, cfg.City)
	}
}

func openAndPing(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// publisherMetrics avoids handing the publisher a typed nil collector.
func publisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}
