package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 10 * time.Minute

// Cache keeps previews in Redis so repeated dry runs of an unchanged
// storyboard skip parsing and building.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ PreviewCache = (*Cache)(nil)

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// PreviewKey identifies a preview by source content and the parser
// settings that affect it.
func PreviewKey(format, source string, strictTrueFalse bool) string {
	sum := sha256.Sum256([]byte(format + "\x00" + strconv.FormatBool(strictTrueFalse) + "\x00" + source))
	return "uploadpreview:" + hex.EncodeToString(sum[:])
}

func (c *Cache) Get(ctx context.Context, key string) (*Preview, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p Preview
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Cache) Set(ctx context.Context, key string, p Preview) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
