package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"route-tracker/internal/deviation"
	"route-tracker/internal/tracker"
)

type Config struct {
	DatabaseURL string
	City        string

	NATSURL            string
	FixSubject         string
	EventSubjectPrefix string
	LogNATSSubjects    bool
	MetricsAddr        string

	SessionIdleTTL time.Duration

	AdvanceRadius      float64
	StrongSignalRadius float64
	WeakSignalRadius   float64
	DeviationPolicy    deviation.Kind
	Deviation          deviation.Settings
	Projection         string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		// With CITY set the base DB is only used to look up the city database.
		if db == "" && os.Getenv("CITY") != "" {
			db = "postgres"
		}
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
	// Vehicle positions as published by the simulator: <route>.<trip>
	cfg.FixSubject = getenvDefault("FIX_SUBJECT", "*.*")
	cfg.EventSubjectPrefix = getenvDefault("EVENT_SUBJECT_PREFIX", "tracker")
	if strings.ContainsAny(cfg.EventSubjectPrefix, " *>") || strings.HasSuffix(cfg.EventSubjectPrefix, ".") {
		return nil, fmt.Errorf("invalid EVENT_SUBJECT_PREFIX: %q", cfg.EventSubjectPrefix)
	}
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("SESSION_IDLE_TTL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid SESSION_IDLE_TTL_SEC: %q", v)
		}
		cfg.SessionIdleTTL = time.Duration(sec) * time.Second
	} else {
		cfg.SessionIdleTTL = 10 * time.Minute
	}

	defaults := deviation.DefaultSettings()
	var err error
	if cfg.AdvanceRadius, err = metersFromEnv("ADVANCE_RADIUS_M", 8, false); err != nil {
		return nil, err
	}
	if cfg.StrongSignalRadius, err = metersFromEnv("STRONG_SIGNAL_RADIUS_M", 0, true); err != nil {
		return nil, err
	}
	if cfg.WeakSignalRadius, err = metersFromEnv("WEAK_SIGNAL_RADIUS_M", 0, true); err != nil {
		return nil, err
	}
	if cfg.Deviation.PerpendicularThreshold, err = metersFromEnv("PERPENDICULAR_THRESHOLD_M", defaults.PerpendicularThreshold, true); err != nil {
		return nil, err
	}
	if cfg.Deviation.CorridorRadius, err = metersFromEnv("CORRIDOR_RADIUS_M", defaults.CorridorRadius, false); err != nil {
		return nil, err
	}
	if cfg.Deviation.CorridorMargin, err = metersFromEnv("CORRIDOR_MARGIN_M", defaults.CorridorMargin, true); err != nil {
		return nil, err
	}

	v := os.Getenv("DEVIATION_POLICY")
	if cfg.DeviationPolicy, err = deviation.ParseKind(v); err != nil {
		return nil, fmt.Errorf("invalid DEVIATION_POLICY: %q", v)
	}

	cfg.Projection = strings.ToLower(getenvDefault("PROJECTION", "local"))
	if _, err := tracker.ParseProjection(cfg.Projection); err != nil {
		return nil, fmt.Errorf("invalid PROJECTION: %q", cfg.Projection)
	}

	return cfg, nil
}

// TrackerOptions builds the per-trip tracker options.
func (c *Config) TrackerOptions() (tracker.Options, error) {
	proj, err := tracker.ParseProjection(c.Projection)
	if err != nil {
		return tracker.Options{}, err
	}
	return tracker.Options{
		AdvanceRadius:      c.AdvanceRadius,
		StrongSignalRadius: c.StrongSignalRadius,
		WeakSignalRadius:   c.WeakSignalRadius,
		Policy:             c.DeviationPolicy,
		Deviation:          c.Deviation,
		Projection:         proj,
	}, nil
}

// metersFromEnv parses a distance in meters. Zero is accepted only when allowZero.
func metersFromEnv(key string, def float64, allowZero bool) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 || (f == 0 && !allowZero) || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
