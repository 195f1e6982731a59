// redis.go - Redis store.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "medproof:"

// RedisStore keeps records as JSON strings with a sorted-set index per study.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and pings it.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storageFailure(err, "connect to redis")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *RedisStore) SaveStudy(ctx context.Context, rec StudyRecord) error {
	if err := validateStudy(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return storageFailure(err, "encode study")
	}
	ok, err := s.client.SetNX(ctx, s.key("study", rec.Commitment), data, 0).Result()
	if err != nil {
		return storageFailure(err, "write study")
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) GetStudy(ctx context.Context, commitment string) (*StudyRecord, error) {
	var rec StudyRecord
	if err := s.getJSON(ctx, s.key("study", commitment), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveProof claims the proof hash first so concurrent writers of the same proof conflict.
func (s *RedisStore) SaveProof(ctx context.Context, rec ProofRecord) error {
	if err := validateProof(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return storageFailure(err, "encode proof")
	}
	hashKey := s.key("proofhash", rec.ProofHash)
	ok, err := s.client.SetNX(ctx, hashKey, rec.ID, 0).Result()
	if err != nil {
		return storageFailure(err, "claim proof hash")
	}
	if !ok {
		return ErrConflict
	}
	ok, err = s.client.SetNX(ctx, s.key("proof", rec.ID), data, 0).Result()
	if err != nil || !ok {
		_ = s.client.Del(ctx, hashKey).Err()
		if err != nil {
			return storageFailure(err, "write proof")
		}
		return ErrConflict
	}
	if rec.StudyCommitment != "" {
		member := redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.ID}
		if err := s.client.ZAdd(ctx, s.key("studyproofs", rec.StudyCommitment), member).Err(); err != nil {
			return storageFailure(err, "index proof")
		}
	}
	return nil
}

func (s *RedisStore) GetProof(ctx context.Context, id string) (*ProofRecord, error) {
	var rec ProofRecord
	if err := s.getJSON(ctx, s.key("proof", id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *RedisStore) ListProofs(ctx context.Context, studyCommitment string) ([]ProofRecord, error) {
	ids, err := s.client.ZRange(ctx, s.key("studyproofs", studyCommitment), 0, -1).Result()
	if err != nil {
		return nil, storageFailure(err, "read proof index")
	}
	out := make([]ProofRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetProof(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("proof %s: %w", id, err)
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storageFailure(err, "redis unavailable")
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, dst any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return storageFailure(err, "read record")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return storageFailure(err, "decode record")
	}
	return nil
}
