package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string // TRACKER_DATABASE_URL (required)
	GRPCAddr    string // TRACKER_GRPC_ADDR (default ":9090")
	HTTPAddr    string // TRACKER_HTTP_ADDR (default ":8080")
	NATSURL     string // TRACKER_NATS_URL (optional, empty = no events)
	AuthToken   string // TRACKER_AUTH_TOKEN (optional, empty = auth disabled)

	// TimeZone is the server zone used for date facets when a request names
	// none or an invalid one. TRACKER_TIME_ZONE (default "UTC")
	TimeZone *time.Location

	// Index settings
	IndexRecoveryInterval time.Duration // TRACKER_INDEX_RECOVERY_INTERVAL (default 1m; 0 = disabled)
	IndexRecoveryRate     int           // TRACKER_INDEX_RECOVERY_RATE (default 50 issues/s; 0 = unlimited)

	// Sync settings
	SyncInterval   time.Duration // TRACKER_SYNC_INTERVAL (default 10m; 0 = disabled)
	SyncS3Bucket   string        // TRACKER_SYNC_S3_BUCKET (enables S3 when set)
	SyncS3Endpoint string        // TRACKER_SYNC_S3_ENDPOINT (custom endpoint for MinIO)
	SyncS3Region   string        // TRACKER_SYNC_S3_REGION (default "us-east-1")
	SyncS3Key      string        // TRACKER_SYNC_S3_KEY (default "tracker/issues.jsonl")
	SyncGitRepo    string        // TRACKER_SYNC_GIT_REPO (enables git when set; path to clone)
	SyncGitFile    string        // TRACKER_SYNC_GIT_FILE (default "issues.jsonl")
	SyncGitBranch  string        // TRACKER_SYNC_GIT_BRANCH (default "main")
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("TRACKER_DATABASE_URL"),
		GRPCAddr:       envOrDefault("TRACKER_GRPC_ADDR", ":9090"),
		HTTPAddr:       envOrDefault("TRACKER_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("TRACKER_NATS_URL"),
		AuthToken:      os.Getenv("TRACKER_AUTH_TOKEN"),
		SyncS3Bucket:   os.Getenv("TRACKER_SYNC_S3_BUCKET"),
		SyncS3Endpoint: os.Getenv("TRACKER_SYNC_S3_ENDPOINT"),
		SyncS3Region:   envOrDefault("TRACKER_SYNC_S3_REGION", "us-east-1"),
		SyncS3Key:      envOrDefault("TRACKER_SYNC_S3_KEY", "tracker/issues.jsonl"),
		SyncGitRepo:    os.Getenv("TRACKER_SYNC_GIT_REPO"),
		SyncGitFile:    envOrDefault("TRACKER_SYNC_GIT_FILE", "issues.jsonl"),
		SyncGitBranch:  envOrDefault("TRACKER_SYNC_GIT_BRANCH", "main"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("TRACKER_DATABASE_URL is required")
	}

	loc, err := time.LoadLocation(envOrDefault("TRACKER_TIME_ZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("TRACKER_TIME_ZONE: %w", err)
	}
	c.TimeZone = loc

	if c.SyncInterval, err = durationEnv("TRACKER_SYNC_INTERVAL", "10m"); err != nil {
		return nil, err
	}
	if c.IndexRecoveryInterval, err = durationEnv("TRACKER_INDEX_RECOVERY_INTERVAL", "1m"); err != nil {
		return nil, err
	}

	rate, err := strconv.Atoi(envOrDefault("TRACKER_INDEX_RECOVERY_RATE", "50"))
	if err != nil || rate < 0 {
		return nil, fmt.Errorf("TRACKER_INDEX_RECOVERY_RATE: invalid value %q", os.Getenv("TRACKER_INDEX_RECOVERY_RATE"))
	}
	c.IndexRecoveryRate = rate

	return c, nil
}

func durationEnv(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
