package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// markScript atomically keeps the best fidelity seen for a key. Returns 1
// when the offered fidelity wins.
var markScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur or tonumber(ARGV[1]) > tonumber(cur) then
	redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
	return 1
end
return 0
`)

// RedisSeen is a SeenSet shared across collector instances. Keys expire
// so an abandoned run never pins memory on the Redis side.
type RedisSeen struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSeen(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSeen {
	if prefix == "" {
		prefix = "grantsetl:seen"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSeen{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSeen) MarkIfBetter(ctx context.Context, id string, fidelity int) (bool, error) {
	key := fmt.Sprintf("%s:%s", s.prefix, id)
	res, err := markScript.Run(ctx, s.client, []string{key}, fidelity, int(s.ttl.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("mark seen %s: %w", id, err)
	}
	return res == 1, nil
}
