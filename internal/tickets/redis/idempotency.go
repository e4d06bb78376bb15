package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	keyPrefix      = "purchase_idem:"
	inFlightPrefix = "inflight:"
	donePrefix     = "done:"
)

type Outcome int

const (
	// Started means the caller owns the key and must Complete or Abort it.
	Started Outcome = iota
	// Replay means a previous request with the same key finished; reuse its response.
	Replay
	// InProgress means another request with the same key is still running.
	InProgress
	// Mismatch means the key was first used for a different request.
	Mismatch
)

// ErrClaimLost is returned by Complete when the in-flight marker expired or
// was taken over before the response could be stored.
var ErrClaimLost = errors.New("idempotency claim lost")

// Record is the stored response of a finished request.
type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
}

// compareAndSet replaces KEYS[1] only while it still holds the caller's marker.
var compareAndSet = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0`)

var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// IdempotencyStore remembers purchase responses per (buyer, Idempotency-Key)
// so a retried request does not buy a second set of tickets.
type IdempotencyStore struct {
	Client      *redis.Client
	TTL         time.Duration
	InFlightTTL time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl, inFlightTTL time.Duration) *IdempotencyStore {
	return &IdempotencyStore{Client: client, TTL: ttl, InFlightTTL: inFlightTTL}
}

func storeKey(buyerID int64, key string) string {
	return fmt.Sprintf("%s%d:%s", keyPrefix, buyerID, key)
}

// in-flight markers look like "inflight:<fingerprint>:<owner uuid>"
func newMarker(fingerprint string) string {
	return inFlightPrefix + fingerprint + ":" + uuid.NewString()
}

func markerFingerprint(marker string) string {
	rest := strings.TrimPrefix(marker, inFlightPrefix)
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		return rest[:i]
	}
	return ""
}

// Begin claims key for buyerID. fingerprint identifies the request body; a
// key reused for a different fingerprint yields Mismatch. On Started the
// returned marker identifies the claim for Complete and Abort; on Replay the
// stored record is returned.
func (s *IdempotencyStore) Begin(ctx context.Context, buyerID int64, key, fingerprint string) (Outcome, *Record, string, error) {
	k := storeKey(buyerID, key)
	marker := newMarker(fingerprint)

	ok, err := s.Client.SetNX(ctx, k, marker, s.InFlightTTL).Result()
	if err != nil {
		return 0, nil, "", fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return Started, nil, marker, nil
	}

	val, err := s.Client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry the request
		return InProgress, nil, "", nil
	}
	if err != nil {
		return 0, nil, "", fmt.Errorf("read idempotency key: %w", err)
	}
	if !strings.HasPrefix(val, donePrefix) {
		if markerFingerprint(val) != fingerprint {
			return Mismatch, nil, "", nil
		}
		return InProgress, nil, "", nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(strings.TrimPrefix(val, donePrefix)), &rec); err != nil {
		return 0, nil, "", fmt.Errorf("decode idempotency record: %w", err)
	}
	if rec.Fingerprint != fingerprint {
		return Mismatch, nil, "", nil
	}
	return Replay, &rec, "", nil
}

// Complete stores the final response under key if the claim is still held.
// The record inherits the fingerprint the claim was made with.
func (s *IdempotencyStore) Complete(ctx context.Context, buyerID int64, key, marker string, rec Record) error {
	rec.Fingerprint = markerFingerprint(marker)
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	stored, err := compareAndSet.Run(ctx, s.Client,
		[]string{storeKey(buyerID, key)},
		marker, donePrefix+string(payload), s.TTL.Milliseconds(),
	).Int()
	if err != nil {
		return err
	}
	if stored == 0 {
		return ErrClaimLost
	}
	return nil
}

// Abort releases the claim so the same key can be used again.
func (s *IdempotencyStore) Abort(ctx context.Context, buyerID int64, key, marker string) error {
	_, err := compareAndDelete.Run(ctx, s.Client, []string{storeKey(buyerID, key)}, marker).Result()
	return err
}
