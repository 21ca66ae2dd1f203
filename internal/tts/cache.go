package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Cache stores synthesized WAV audio by content key. Entries never expire.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, wav []byte) error
}

// CacheKey is the content address of one synthesis. Changing any input,
// including the provider, changes the key.
func CacheKey(text, voice, style string, speed float64, provider string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s", text, voice, style, strconv.FormatFloat(speed, 'g', -1, 64), provider)))
	return hex.EncodeToString(sum[:])
}

// FSCache keeps one <key>.wav file per entry under Dir. Concurrent runs may
// share Dir: writes go through a temp file and rename, and equal keys imply
// equal content.
type FSCache struct {
	Dir string
}

func NewFSCache(dir string) (*FSCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tts cache dir: %w", err)
	}
	return &FSCache{Dir: dir}, nil
}

func (c *FSCache) path(key string) string { return filepath.Join(c.Dir, key+".wav") }

func (c *FSCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := os.ReadFile(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *FSCache) Put(_ context.Context, key string, wav []byte) error {
	tmp, err := os.CreateTemp(c.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}

// RedisCache keeps entries as plain string values under Prefix+key.
type RedisCache struct {
	Client *redis.Client
	Prefix string
}

const defaultRedisPrefix = "morningdrive:tts:"

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{Client: client, Prefix: defaultRedisPrefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, wav []byte) error {
	return c.Client.Set(ctx, c.Prefix+key, wav, 0).Err()
}
