package kvstore

import (
	"encoding/hex"
	"time"

	"github.com/go-redis/redis"

	"github.com/buildbarn/gpucache/pkg/util"
)

// Redis is a key/value backend storing each entry as one string value,
// following the teacher's pkg/blobstore/redis_blob_access.go shape.
// Unlike the teacher's blob access, there is no context plumbed through
// Get/Set: LoadFunc/StoreFunc are synchronous C-style callbacks with no
// context parameter (spec.md §6), so cancellation is not expressible
// here any more than it is for the filesystem or in-memory backends.
type Redis struct {
	client      *redis.Client
	keyPrefix   string
	keyDuration time.Duration
	errorLogger util.ErrorLogger
}

// NewRedis returns a Redis backend using client, prefixing every key
// with keyPrefix and expiring entries after keyDuration (zero means
// "no expiration", matching redis.Client.Set's own convention).
func NewRedis(client *redis.Client, keyPrefix string, keyDuration time.Duration, errorLogger util.ErrorLogger) *Redis {
	return &Redis{client: client, keyPrefix: keyPrefix, keyDuration: keyDuration, errorLogger: errorLogger}
}

func (r *Redis) redisKey(key []byte) string {
	return r.keyPrefix + hex.EncodeToString(key)
}

func (r *Redis) logError(err error) {
	if err != nil && r.errorLogger != nil {
		r.errorLogger.Log(err)
	}
}

// Load implements blobcache.LoadFunc.
func (r *Redis) Load(key []byte, out []byte) int {
	value, err := r.client.Get(r.redisKey(key)).Bytes()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		r.logError(err)
		return 0
	}
	if out == nil {
		return len(value)
	}
	copy(out, value)
	return len(value)
}

// Store implements blobcache.StoreFunc.
func (r *Redis) Store(key []byte, value []byte) {
	r.logError(r.client.Set(r.redisKey(key), value, r.keyDuration).Err())
}
