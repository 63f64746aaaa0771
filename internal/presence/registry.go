package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry counts live push connections per user. A user is online while the
// count is positive.
type Registry interface {
	// Connect records one connection and reports whether the user just came online.
	Connect(ctx context.Context, userID int) (bool, error)
	// Disconnect removes one connection and reports whether the user went offline.
	Disconnect(ctx context.Context, userID int) (bool, error)
	// Online lists online users in ascending id order.
	Online(ctx context.Context) ([]int, error)
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu     sync.Mutex
	counts map[int]int
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{counts: make(map[int]int)}
}

func (r *MemoryRegistry) Connect(_ context.Context, userID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[userID]++
	return r.counts[userID] == 1, nil
}

func (r *MemoryRegistry) Disconnect(_ context.Context, userID int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.counts[userID]
	if !ok {
		return false, nil
	}
	if n <= 1 {
		delete(r.counts, userID)
		return true, nil
	}
	r.counts[userID] = n - 1
	return false, nil
}

func (r *MemoryRegistry) Online(_ context.Context) ([]int, error) {
	r.mu.Lock()
	ids := make([]int, 0, len(r.counts))
	for id := range r.counts {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Ints(ids)
	return ids, nil
}

const defaultRedisKey = "realtime:presence"

// RedisRegistry keeps connection counts in a Redis hash so that restarts of a
// single node do not lose track of users connected elsewhere.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

func NewRedisRegistry(client *redis.Client, key string) *RedisRegistry {
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisRegistry{client: client, key: key}
}

// ConnectRedis configures a Redis client using the supplied URL.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}

func (r *RedisRegistry) Connect(ctx context.Context, userID int) (bool, error) {
	n, err := r.client.HIncrBy(ctx, r.key, strconv.Itoa(userID), 1).Result()
	if err != nil {
		return false, fmt.Errorf("presence connect %d: %w", userID, err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) Disconnect(ctx context.Context, userID int) (bool, error) {
	field := strconv.Itoa(userID)
	exists, err := r.client.HExists(ctx, r.key, field).Result()
	if err != nil {
		return false, fmt.Errorf("presence disconnect %d: %w", userID, err)
	}
	if !exists {
		return false, nil
	}
	n, err := r.client.HIncrBy(ctx, r.key, field, -1).Result()
	if err != nil {
		return false, fmt.Errorf("presence disconnect %d: %w", userID, err)
	}
	if n > 0 {
		return false, nil
	}
	if err := r.client.HDel(ctx, r.key, field).Err(); err != nil {
		return false, fmt.Errorf("presence disconnect %d: %w", userID, err)
	}
	return true, nil
}

func (r *RedisRegistry) Online(ctx context.Context) ([]int, error) {
	fields, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence online: %w", err)
	}
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
