package runtime

import (
	"testing"

	"github.com/mohammad-safakhou/morningdrive/config"
)

func TestBuildPostgresDSN(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Postgres = config.PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "md"}
	dsn, err := BuildPostgresDSN(cfg)
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if dsn != "postgres://u:p@db:5432/md?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	cfg.Storage.Postgres.URL = "postgres://override"
	if dsn, _ := BuildPostgresDSN(cfg); dsn != "postgres://override" {
		t.Fatalf("url should win, got %q", dsn)
	}
	if _, err := BuildPostgresDSN(&config.Config{}); err == nil {
		t.Fatalf("expected incomplete config error")
	}
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(config.RedisConfig{Host: "cache", Port: "6380", DB: 2})
	if opts.Addr != "cache:6380" || opts.DB != 2 || opts.DialTimeout == 0 {
		t.Fatalf("unexpected options %+v", opts)
	}
}
