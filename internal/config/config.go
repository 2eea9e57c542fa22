package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"sleigh-tracker/internal/db"
	"sleigh-tracker/internal/logging"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	SinkNone  = "none"
	SinkNATS  = "nats"
	SinkKafka = "kafka"
)

type Config struct {
	SchedulePath  string
	BedtimeHour   int
	BedtimeMinute int
	Location      *time.Location
	Locale        string
	FrameInterval time.Duration

	WaypointStore   string
	DatabaseURL     string
	SQLitePath      string
	WaypointRefresh time.Duration

	Sink              string
	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	KafkaBrokers      []string
	KafkaTopicPrefix  string

	HTTPAddr         string
	SubmitRatePerMin int
	MetricsAddr      string
	LogLevel         slog.Level
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error

	cfg.SchedulePath = getenvDefault("SCHEDULE_PATH", "santaData.json")

	if cfg.BedtimeHour, err = intInRange("BEDTIME_HOUR", 22, 0, 23); err != nil {
		return nil, err
	}
	if cfg.BedtimeMinute, err = intInRange("BEDTIME_MINUTE", 0, 0, 59); err != nil {
		return nil, err
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	cfg.Locale = getenvDefault("LOCALE", "en-US")
	if _, err := language.Parse(cfg.Locale); err != nil {
		return nil, fmt.Errorf("invalid LOCALE: %q", cfg.Locale)
	}

	if v := os.Getenv("FRAME_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid FRAME_INTERVAL_MS: %q", v)
		}
		cfg.FrameInterval = time.Duration(ms) * time.Millisecond
	} else {
		cfg.FrameInterval = 100 * time.Millisecond
	}

	cfg.WaypointStore = strings.ToLower(getenvDefault("WAYPOINT_STORE", StoreMemory))
	switch cfg.WaypointStore {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL, err = databaseURL(); err != nil {
			return nil, err
		}
	case StoreSQLite:
		cfg.SQLitePath = getenvDefault("SQLITE_PATH", "waypoints.db")
	default:
		return nil, fmt.Errorf("invalid WAYPOINT_STORE: %q", cfg.WaypointStore)
	}

	// Store re-read interval (seconds); 0 disables the refresher.
	if v := os.Getenv("WAYPOINT_REFRESH_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("invalid WAYPOINT_REFRESH_SEC: %q", v)
		}
		cfg.WaypointRefresh = time.Duration(sec) * time.Second
	} else {
		cfg.WaypointRefresh = 30 * time.Second
	}

	cfg.Sink = strings.ToLower(getenvDefault("SINK", SinkNone))
	switch cfg.Sink {
	case SinkNone:
	case SinkNATS:
		cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")
		cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "sleigh")
		cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))
	case SinkKafka:
		cfg.KafkaBrokers = splitList(getenvDefault("KAFKA_BROKERS", "127.0.0.1:9092"))
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS must list at least one broker")
		}
		cfg.KafkaTopicPrefix = getenvDefault("KAFKA_TOPIC_PREFIX", "sleigh")
	default:
		return nil, fmt.Errorf("invalid SINK: %q", cfg.Sink)
	}

	// API listen address. Empty disables the HTTP API.
	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if _, set := os.LookupEnv("HTTP_ADDR"); !set {
		cfg.HTTPAddr = ":8080"
	}

	if v := os.Getenv("SUBMIT_RATE_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid SUBMIT_RATE_PER_MIN: %q", v)
		}
		cfg.SubmitRatePerMin = n
	} else {
		cfg.SubmitRatePerMin = 6
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if cfg.LogLevel, err = logging.ParseLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
// WAYPOINT_DB, if set, replaces the database named by the DSN.
func databaseURL() (string, error) {
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		name := getenvDefault("PGDATABASE", "postgres")
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, name, sslmode)
		} else {
			dsn = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, name, sslmode)
		}
	}
	if name := strings.TrimSpace(os.Getenv("WAYPOINT_DB")); name != "" {
		out, err := db.WithDBName(dsn, name)
		if err != nil {
			return "", fmt.Errorf("invalid WAYPOINT_DB: %w", err)
		}
		dsn = out
	}
	return dsn, nil
}

func intInRange(key string, def, lo, hi int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
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
