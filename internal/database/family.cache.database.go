package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"imagevariants/internal/types"

	"github.com/valkey-io/valkey-go"
)

const (
	familyCacheKeyPattern      = "image_family:%s"
	familyGenerationKeyPattern = "image_family_gen:%s"
	familyGenerationTTL        = 24 * time.Hour
	familyCacheTimeout         = 5 * time.Second
)

// setIfGenerationScript writes the family only while its generation still
// matches the one read before the variants were loaded. A missing generation
// key counts as "0".
var setIfGenerationScript = valkey.NewLuaScript(`
local gen = redis.call("GET", KEYS[2])
if gen == false then gen = "0" end
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "EX", ARGV[3])
return 1
`)

// invalidateScript bumps the generation before dropping the entry, so a reader
// that loaded variants earlier can no longer store them.
var invalidateScript = valkey.NewLuaScript(`
local gen = redis.call("INCR", KEYS[2])
redis.call("EXPIRE", KEYS[2], ARGV[1])
redis.call("DEL", KEYS[1])
return gen
`)

// FamilyCache stores resolved families keyed by original image id.
type FamilyCache struct {
	client valkey.Client
	ttl    time.Duration
}

func NewFamilyCache(client valkey.Client, ttl time.Duration) *FamilyCache {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &FamilyCache{client: client, ttl: ttl}
}

func (c *FamilyCache) keys(originalID int) []string {
	return []string{
		NewCacheBuilder(c.client, originalID).WithHashPattern(familyCacheKeyPattern).Key(),
		NewCacheBuilder(c.client, originalID).WithHashPattern(familyGenerationKeyPattern).Key(),
	}
}

func (c *FamilyCache) Get(ctx context.Context, originalID int) (*types.FamilyView, bool, error) {
	var view types.FamilyView
	found, err := NewCacheBuilder(c.client, originalID).
		WithHashPattern(familyCacheKeyPattern).
		WithContext(ctx).
		Get(&view)
	if err != nil || !found {
		return nil, false, err
	}
	return &view, true, nil
}

// Generation returns the current invalidation counter of the family.
func (c *FamilyCache) Generation(ctx context.Context, originalID int) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, familyCacheTimeout)
	defer cancel()

	key := c.keys(originalID)[1]
	generation, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsInt64()
	if valkey.IsValkeyNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read family generation: %w", err)
	}
	return generation, nil
}

// Set stores view unless the family was invalidated after generation was read.
func (c *FamilyCache) Set(
	ctx context.Context,
	originalID int,
	generation int64,
	view *types.FamilyView,
) (bool, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value to json: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, familyCacheTimeout)
	defer cancel()

	stored, err := setIfGenerationScript.Exec(ctx, c.client, c.keys(originalID), []string{
		strconv.FormatInt(generation, 10),
		string(data),
		strconv.Itoa(int(c.ttl.Seconds())),
	}).AsInt64()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *FamilyCache) Invalidate(ctx context.Context, originalID int) error {
	ctx, cancel := context.WithTimeout(ctx, familyCacheTimeout)
	defer cancel()

	return invalidateScript.Exec(ctx, c.client, c.keys(originalID), []string{
		strconv.Itoa(int(familyGenerationTTL.Seconds())),
	}).Error()
}
