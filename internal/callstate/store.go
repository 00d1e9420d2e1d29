package callstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partsiq_backend/platform/apperr"

	"github.com/redis/go-redis/v9"
)

// Store errors.
var (
	ErrNotFound        = errors.New("call state not found")
	ErrAlreadyExists   = errors.New("call state already exists")
	ErrVersionConflict = errors.New("call state version conflict")
)

const keyPrefix = "callstate:"

// createScript inserts a new state only if the key does not exist.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "v", 1, "status", ARGV[1], "data", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// writeScript applies a compare-and-swap update. Returns:
//
//	-2  key missing
//	-1  version mismatch
//	 0  state already terminal, write ignored
//	 1  applied
var writeScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return -2
end
local status = redis.call("HGET", KEYS[1], "status")
if status ~= "in_progress" then
  return 0
end
local v = tonumber(redis.call("HGET", KEYS[1], "v"))
if v ~= tonumber(ARGV[1]) then
  return -1
end
redis.call("HSET", KEYS[1], "v", v + 1, "status", ARGV[2], "data", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// Store persists call state in Redis with optimistic concurrency.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a store with the given state TTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func stateKey(callID string) string {
	return keyPrefix + callID
}

// Create inserts a fresh state. Fails with ErrAlreadyExists if a state for
// the call already exists.
func (s *Store) Create(ctx context.Context, state *CallState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal call state: %w", err)
	}

	res, err := createScript.Run(ctx, s.client,
		[]string{stateKey(state.CallID)},
		string(state.Status), payload, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "call state store unreachable", err)
	}
	if res == 0 {
		return ErrAlreadyExists
	}

	state.Version = 1
	return nil
}

// Get loads the state for a call. Returns ErrNotFound if absent or expired.
func (s *Store) Get(ctx context.Context, callID string) (*CallState, error) {
	fields, err := s.client.HMGet(ctx, stateKey(callID), "v", "data").Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "call state store unreachable", err)
	}
	if fields[0] == nil || fields[1] == nil {
		return nil, ErrNotFound
	}

	var version int64
	if _, err := fmt.Sscanf(fields[0].(string), "%d", &version); err != nil {
		return nil, fmt.Errorf("parse call state version: %w", err)
	}

	var state CallState
	if err := json.Unmarshal([]byte(fields[1].(string)), &state); err != nil {
		return nil, fmt.Errorf("unmarshal call state: %w", err)
	}

	state.Version = version
	return &state, nil
}

// Write persists a modified state under compare-and-swap semantics against
// state.Version. Writes to a terminal state are ignored and report
// applied=false with no error. A concurrent update returns
// ErrVersionConflict; callers should re-read and re-apply.
func (s *Store) Write(ctx context.Context, state *CallState) (applied bool, err error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return false, fmt.Errorf("marshal call state: %w", err)
	}

	res, err := writeScript.Run(ctx, s.client,
		[]string{stateKey(state.CallID)},
		state.Version, string(state.Status), payload, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, apperr.Wrap(apperr.KindUnavailable, "call state store unreachable", err)
	}

	switch res {
	case -2:
		return false, ErrNotFound
	case -1:
		return false, ErrVersionConflict
	case 0:
		return false, nil
	}

	state.Version++
	return true, nil
}

// Delete removes the state for a call. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, callID string) error {
	if err := s.client.Del(ctx, stateKey(callID)).Err(); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "call state store unreachable", err)
	}
	return nil
}
