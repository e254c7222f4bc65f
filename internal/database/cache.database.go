package database

import (
	"context"
	"fmt"
	"time"

	"imagevariants/config"
	"imagevariants/pkg/logger"

	"github.com/valkey-io/valkey-go"
)

// Valkey database index organization
const (
	// GENERAL_CACHE_INDEX (DB 0) - health checks and miscellaneous keys
	GENERAL_CACHE_INDEX = iota

	// FAMILY_CACHE_INDEX (DB 1) - cached image families keyed by original id
	FAMILY_CACHE_INDEX

	// LOCK_CACHE_INDEX (DB 2) - derivation locks keyed by (original id, variant type)
	LOCK_CACHE_INDEX

	// EVENTS_CACHE_INDEX (DB 3) - pub/sub for image events
	EVENTS_CACHE_INDEX
)

func (s *DB) initializeCacheDB(config config.Config) error {
	log := s.log.Function("initializeCacheDB")

	address := config.DatabaseCacheAddress
	port := config.DatabaseCachePort
	if address == "" || port == 0 {
		log.Warn("cache address not configured, running without valkey")
		return nil
	}

	log.Info("initializing cache database")

	clients := []struct {
		target *CacheClient
		index  int
		name   string
	}{
		{&s.Cache.General, GENERAL_CACHE_INDEX, "general"},
		{&s.Cache.Family, FAMILY_CACHE_INDEX, "family"},
		{&s.Cache.Lock, LOCK_CACHE_INDEX, "lock"},
		{&s.Cache.Events, EVENTS_CACHE_INDEX, "events"},
	}

	for _, c := range clients {
		client, err := valkey.NewClient(
			valkey.ClientOption{
				InitAddress: []string{fmt.Sprintf("%s:%d", address, port)},
				SelectDB:    c.index,
			},
		)
		if err != nil {
			return log.Err("failed to create valkey client", err, "cache", c.name)
		}
		*c.target = client
	}

	if config.DatabaseCacheReset != -1 {
		go clearCacheDB(config.DatabaseCacheReset, s.Cache)
	}

	return nil
}

func clearCacheDB(index int, cacheDB Cache) {
	log := logger.New("database").File("cache.database").Function("clearCacheDB")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var client CacheClient
	var dbName string

	switch index {
	case GENERAL_CACHE_INDEX:
		client = cacheDB.General
		dbName = "General"
	case FAMILY_CACHE_INDEX:
		client = cacheDB.Family
		dbName = "Family"
	case LOCK_CACHE_INDEX:
		client = cacheDB.Lock
		dbName = "Lock"
	case EVENTS_CACHE_INDEX:
		client = cacheDB.Events
		dbName = "Events"
	default:
		log.Warn("Invalid cache database index", "index", index)
		return
	}

	if err := client.Do(ctx, client.B().Flushdb().Build()).Error(); err != nil {
		log.Er("Failed to clear cache database", err, "index", index, "dbName", dbName)
		return
	}

	log.Info("Successfully cleared cache database", "index", index, "dbName", dbName)
}
