package seen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memoryRedis answers EXISTS and SET from a map so the client never dials.
type memoryRedis struct {
	keys      map[string]string
	args      [][]interface{}
	pipelines int
	err       error
}

func (m *memoryRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled in tests")
	}
}

func (m *memoryRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		return m.apply(cmd)
	}
}

func (m *memoryRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		m.pipelines++
		if m.err != nil {
			return m.err
		}
		for _, cmd := range cmds {
			if err := m.apply(cmd); err != nil {
				return err
			}
		}
		return nil
	}
}

func (m *memoryRedis) apply(cmd redis.Cmder) error {
	args := cmd.Args()
	m.args = append(m.args, args)
	key := fmt.Sprint(args[1])
	switch c := cmd.(type) {
	case *redis.IntCmd:
		if cmd.Name() != "exists" {
			break
		}
		if _, ok := m.keys[key]; ok {
			c.SetVal(1)
		} else {
			c.SetVal(0)
		}
		return nil
	case *redis.StatusCmd:
		if cmd.Name() != "set" {
			break
		}
		m.keys[key] = fmt.Sprint(args[2])
		c.SetVal("OK")
		return nil
	}
	return fmt.Errorf("unsupported command %s", cmd.Name())
}

func newMemoryRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *memoryRedis) {
	t.Helper()
	mem := &memoryRedis{keys: make(map[string]string)}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(mem)
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test", ttl), mem
}

func TestRedisStoreFilterNewOrderAndDedup(t *testing.T) {
	ctx := context.Background()
	s, mem := newMemoryRedisStore(t, time.Hour)
	mem.keys["test:seen:itm:2"] = "2026-03-01T12:00:00Z"

	fresh, err := s.FilterNew(ctx, []string{"itm:3", "itm:1", "itm:2", "itm:3"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got := strings.Join(fresh, ","); got != "itm:3,itm:1" {
		t.Fatalf("fresh = %s, want itm:3,itm:1", got)
	}
	if mem.pipelines != 1 {
		t.Fatalf("expected one pipeline round trip, got %d", mem.pipelines)
	}
}

func TestRedisStoreMarkSeen(t *testing.T) {
	ctx := context.Background()
	s, mem := newMemoryRedisStore(t, time.Hour)

	if err := s.MarkSeen(ctx, []string{"itm:1", "fallback:coin|20.00|5m"}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, ok := mem.keys["test:seen:itm:1"]; !ok {
		t.Fatalf("expected prefixed key, have %v", mem.keys)
	}
	last := mem.args[len(mem.args)-1]
	if len(last) < 5 || fmt.Sprint(last[3]) != "ex" || fmt.Sprint(last[4]) != "3600" {
		t.Fatalf("expected SET with a one hour expiry, got %v", last)
	}

	fresh, err := s.FilterNew(ctx, []string{"itm:1", "itm:9"})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(fresh) != 1 || fresh[0] != "itm:9" {
		t.Fatalf("fresh = %v, want [itm:9]", fresh)
	}

	if fresh, err := s.FilterNew(ctx, nil); err != nil || fresh != nil {
		t.Fatalf("empty filter = %v, %v", fresh, err)
	}
}

func TestRedisStoreWrapsErrors(t *testing.T) {
	s, mem := newMemoryRedisStore(t, 0)
	mem.err = errors.New("connection refused")

	if _, err := s.FilterNew(context.Background(), []string{"itm:1"}); err == nil || !strings.Contains(err.Error(), "redis exists") {
		t.Fatalf("expected wrapped exists error, got %v", err)
	}
	if err := s.MarkSeen(context.Background(), []string{"itm:1"}); err == nil || !strings.Contains(err.Error(), "redis set") {
		t.Fatalf("expected wrapped set error, got %v", err)
	}
}
