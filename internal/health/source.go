// internal/health/source.go
package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Source provides the health score (0-100) of a sending identity. The
// score itself is computed elsewhere from historical delivery statistics.
type Source interface {
	GetHealthScore(ctx context.Context, identity string) (int, error)
}

// RedisSource reads scores maintained by the external health scorer under
// health:score:<identity>.
type RedisSource struct {
	Client *redis.Client
}

func NewRedisSource(addr string) *RedisSource {
	return &RedisSource{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (s *RedisSource) GetHealthScore(ctx context.Context, identity string) (int, error) {
	score, err := s.Client.Get(ctx, "health:score:"+identity).Int()
	if err == redis.Nil {
		// No reading yet: a fresh identity is assumed healthy.
		return 100, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get health score for %s: %w", identity, err)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

// StaticSource serves fixed scores; used in tests and the seeder.
type StaticSource struct {
	mu      sync.Mutex
	scores  map[string]int
	Default int
}

func NewStaticSource(defaultScore int) *StaticSource {
	return &StaticSource{scores: make(map[string]int), Default: defaultScore}
}

func (s *StaticSource) Set(identity string, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[identity] = score
}

func (s *StaticSource) GetHealthScore(ctx context.Context, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if score, ok := s.scores[identity]; ok {
		return score, nil
	}
	return s.Default, nil
}

var (
	_ Source = (*RedisSource)(nil)
	_ Source = (*StaticSource)(nil)
)
