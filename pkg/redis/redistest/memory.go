// Package redistest provides an in-memory redis command set for tests.
package redistest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/watchpoints/points-engine/pkg/redis"
)

// Memory implements redis.Cmdable over maps. TTLs are recorded, not enforced.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
	sets map[string]map[string]struct{}
	ttls map[string]time.Duration

	// Fail, when set, is returned by every command.
	Fail error
}

var _ redis.Cmdable = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]string),
		sets: make(map[string]map[string]struct{}),
		ttls: make(map[string]time.Duration),
	}
}

// NewClient wraps a fresh Memory in a redis.Client.
func NewClient() (*redis.Client, *Memory) {
	mem := NewMemory()
	return redis.NewFromCmdable(mem, "test"), mem
}

// Has reports whether key holds a string value.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// TTL returns the TTL last recorded for key.
func (m *Memory) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

// Members returns the sorted members of a set.
func (m *Memory) Members(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		out = append(out, member)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Ping(context.Context) *goredis.StatusCmd {
	if m.Fail != nil {
		return goredis.NewStatusResult("", m.Fail)
	}
	return goredis.NewStatusResult("PONG", nil)
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	if m.Fail != nil {
		return goredis.NewStatusResult("", m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = stringify(value)
	m.ttls[key] = ttl
	return goredis.NewStatusResult("OK", nil)
}

func (m *Memory) Get(_ context.Context, key string) *goredis.StringCmd {
	if m.Fail != nil {
		return goredis.NewStringResult("", m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (m *Memory) SetNX(_ context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	if m.Fail != nil {
		return goredis.NewBoolResult(false, m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.data[key]; exists {
		return goredis.NewBoolResult(false, nil)
	}
	m.data[key] = stringify(value)
	m.ttls[key] = ttl
	return goredis.NewBoolResult(true, nil)
}

func (m *Memory) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	if m.Fail != nil {
		return goredis.NewIntResult(0, m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			removed++
		}
		delete(m.data, key)
		delete(m.ttls, key)
		delete(m.sets, key)
	}
	return goredis.NewIntResult(removed, nil)
}

func (m *Memory) Incr(_ context.Context, key string) *goredis.IntCmd {
	if m.Fail != nil {
		return goredis.NewIntResult(0, m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if v, ok := m.data[key]; ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return goredis.NewIntResult(0, fmt.Errorf("value is not an integer"))
		}
		n = parsed
	}
	n++
	m.data[key] = strconv.FormatInt(n, 10)
	return goredis.NewIntResult(n, nil)
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) *goredis.BoolCmd {
	if m.Fail != nil {
		return goredis.NewBoolResult(false, m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return goredis.NewBoolResult(false, nil)
	}
	m.ttls[key] = ttl
	return goredis.NewBoolResult(true, nil)
}

func (m *Memory) SAdd(_ context.Context, key string, members ...any) *goredis.IntCmd {
	if m.Fail != nil {
		return goredis.NewIntResult(0, m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	var added int64
	for _, member := range members {
		s := stringify(member)
		if _, exists := set[s]; !exists {
			set[s] = struct{}{}
			added++
		}
	}
	return goredis.NewIntResult(added, nil)
}

func (m *Memory) SPopN(_ context.Context, key string, count int64) *goredis.StringSliceCmd {
	if m.Fail != nil {
		return goredis.NewStringSliceResult(nil, m.Fail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	members := make([]string, 0, len(set))
	for member := range set {
		members = append(members, member)
	}
	sort.Strings(members)
	if int64(len(members)) > count {
		members = members[:count]
	}
	for _, member := range members {
		delete(set, member)
	}
	return goredis.NewStringSliceResult(members, nil)
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
