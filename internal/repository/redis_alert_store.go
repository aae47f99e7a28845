package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/alert-relay/internal/domain"
)

const scanBatch = 100

// Lease scripts compare the stored owner before touching the key so a
// worker whose lease already expired cannot extend or drop someone else's.
var (
	refreshLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

	releaseLeaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)
)

// RedisAlertStore implements AlertStore and LeaseStore on a single Redis.
type RedisAlertStore struct {
	client   *redis.Client
	alertTTL time.Duration
}

// NewRedisAlertStore returns a store whose payload keys expire after alertTTL
// (0 keeps them forever). The TTL only bounds orphans left behind by a crash
// between pop and delete; live alerts are deleted long before it.
func NewRedisAlertStore(client *redis.Client, alertTTL time.Duration) *RedisAlertStore {
	return &RedisAlertStore{client: client, alertTTL: alertTTL}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func (s *RedisAlertStore) Enqueue(ctx context.Context, a *domain.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert %s: %w", a.ID, err)
	}

	// MULTI/EXEC: the payload write and the push land together.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, AlertKey(a.ID), payload, s.alertTTL)
		pipe.LPush(ctx, QueueKey(a.RecipientID), a.ID)
		return nil
	})
	if err != nil {
		return storeErr("enqueue alert "+a.ID, err)
	}
	return nil
}

func (s *RedisAlertStore) DequeueBlocking(ctx context.Context, recipientID string, timeout time.Duration) (string, bool, error) {
	res, err := s.client.BRPop(ctx, timeout, QueueKey(recipientID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("dequeue", err)
	}
	// res[0] is the key, res[1] the popped id
	return res[1], true, nil
}

func (s *RedisAlertStore) Load(ctx context.Context, id string) (*domain.Alert, error) {
	raw, err := s.client.Get(ctx, AlertKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrAlertNotFound
	}
	if err != nil {
		return nil, storeErr("load alert "+id, err)
	}

	var a domain.Alert
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w: %w", id, domain.ErrMalformedEvent, err)
	}
	return &a, nil
}

func (s *RedisAlertStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, AlertKey(id)).Err(); err != nil {
		return storeErr("delete alert "+id, err)
	}
	return nil
}

// ListRecipients walks the keyspace with SCAN rather than KEYS so a large
// keyspace never blocks the server.
func (s *RedisAlertStore) ListRecipients(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var (
		recipients []string
		cursor     uint64
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, QueueKeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return nil, storeErr("scan queues", err)
		}
		for _, k := range keys {
			id := strings.TrimPrefix(k, QueueKeyPrefix)
			if _, dup := seen[id]; dup || id == "" {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, id)
		}
		if next == 0 {
			return recipients, nil
		}
		cursor = next
	}
}

func (s *RedisAlertStore) QueueLength(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.client.LLen(ctx, QueueKey(recipientID)).Result()
	if err != nil {
		return 0, storeErr("queue length", err)
	}
	return n, nil
}

func (s *RedisAlertStore) AcquireLease(ctx context.Context, recipientID, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, LeaseKey(recipientID), owner, ttl).Result()
	if err != nil {
		return false, storeErr("acquire lease", err)
	}
	return ok, nil
}

func (s *RedisAlertStore) RefreshLease(ctx context.Context, recipientID, owner string, ttl time.Duration) (bool, error) {
	n, err := refreshLeaseScript.Run(ctx, s.client,
		[]string{LeaseKey(recipientID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, storeErr("refresh lease", err)
	}
	return n == 1, nil
}

func (s *RedisAlertStore) ReleaseLease(ctx context.Context, recipientID, owner string) error {
	if err := releaseLeaseScript.Run(ctx, s.client, []string{LeaseKey(recipientID)}, owner).Err(); err != nil {
		return storeErr("release lease", err)
	}
	return nil
}

// compile-time checks
var (
	_ AlertStore = (*RedisAlertStore)(nil)
	_ LeaseStore = (*RedisAlertStore)(nil)
)
