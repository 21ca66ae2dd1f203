package config

import "testing"

func TestFetchPolicyNormalize(t *testing.T) {
	cfg := FetchPolicyConfig{
		Disallow: []string{"www.Example.com", "bad.com", "https://Bad.com/path"},
		Paywall:  []string{"Paywall.com", "PAYWALL.COM", "https://www.wsj.com"},
	}
	norm := cfg.Normalize()
	if len(norm.Disallow) != 2 || norm.Disallow[0] != "bad.com" || norm.Disallow[1] != "example.com" {
		t.Fatalf("unexpected disallow list: %#v", norm.Disallow)
	}
	if len(norm.Paywall) != 2 || norm.Paywall[0] != "paywall.com" || norm.Paywall[1] != "wsj.com" {
		t.Fatalf("unexpected paywall list: %#v", norm.Paywall)
	}
	if blocked := cfg.Blocked(); len(blocked) != 4 {
		t.Fatalf("unexpected blocked hosts: %#v", blocked)
	}
}

func TestFetchPolicyValidate(t *testing.T) {
	if err := (FetchPolicyConfig{Disallow: []string{"a.com"}, Paywall: []string{"b.com"}}).Validate(); err != nil {
		t.Fatalf("expected valid policy: %v", err)
	}
	if err := (FetchPolicyConfig{Disallow: []string{"a.com"}, Paywall: []string{"https://www.A.com"}}).Validate(); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestFinishAppliesDefaultsAndValidates(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{JWTSecret: "s"},
		TTS:     TTSConfig{Cache: TTSCacheConfig{Dir: "cache"}},
		Storage: StorageConfig{Redis: RedisConfig{Host: "localhost", Port: "6379"}, Postgres: PostgresConfig{URL: "postgres://x"}},
	}
	if err := cfg.finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if cfg.TTS.Cache.Backend != "fs" || cfg.Scheduler.Tick.Minutes() != 1 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.TTS, cfg.Scheduler)
	}

	cfg.TTS.Cache.Backend = "memcached"
	if err := cfg.finish(); err == nil {
		t.Fatalf("expected invalid cache backend to fail")
	}
	cfg.TTS.Cache.Backend = "redis"
	cfg.Worker = WorkerConfig{RunTimeout: 30e9, ReclaimIdle: 10e9}
	if err := cfg.finish(); err == nil {
		t.Fatalf("expected reclaim_idle <= run_timeout to fail")
	}
}
