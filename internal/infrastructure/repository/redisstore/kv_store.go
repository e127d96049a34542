package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces the per-bucket hashes.
const KeyPrefix = "paperflow:kv:"

// KVStore keeps each bucket in one Redis hash. HSETNX gives first-write-wins.
type KVStore struct {
	client *redis.Client
}

func NewKVStore(client *redis.Client) *KVStore {
	return &KVStore{client: client}
}

// Open parses a redis:// URL and checks connectivity.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func bucketKey(bucket string) string {
	return KeyPrefix + bucket
}

func (s *KVStore) Get(ctx context.Context, bucket, key string) ([]byte, bool, error) {
	value, err := s.client.HGet(ctx, bucketKey(bucket), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	return value, true, nil
}

func (s *KVStore) Put(ctx context.Context, bucket, key string, value []byte) (bool, error) {
	stored, err := s.client.HSetNX(ctx, bucketKey(bucket), key, value).Result()
	if err != nil {
		return false, fmt.Errorf("failed to write %s/%s: %w", bucket, key, err)
	}
	return stored, nil
}

func (s *KVStore) Flush(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *KVStore) Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error {
	iter := s.client.HScan(ctx, bucketKey(bucket), 0, "", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		if err := fn(key, []byte(iter.Val())); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", bucket, err)
	}
	return nil
}

func (s *KVStore) Delete(ctx context.Context, bucket string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, bucketKey(bucket), keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", bucket, err)
	}
	return nil
}
