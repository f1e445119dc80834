package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

func (v Value) expired(now time.Time) bool {
	return !v.expires.IsZero() && v.expires.Before(now)
}

// Store keeps short lived values either in a local hashmap (self contained
// mode) or in redis. An empty string means the key doesn't exist.
type Store struct {
	sugar         *zap.SugaredLogger
	redisClient   *redis.Client
	selfContained bool

	mutex   sync.RWMutex
	hashmap map[string]Value
	stop    chan struct{}
	once    sync.Once
}

func New(sugar *zap.SugaredLogger, redisClient *redis.Client, selfContained bool) *Store {
	s := &Store{
		sugar:         sugar,
		redisClient:   redisClient,
		selfContained: selfContained,
		hashmap:       make(map[string]Value),
		stop:          make(chan struct{}),
	}

	if selfContained {
		go s.checkForLocalExpiredKeys()
	}

	return s
}

func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) checkForLocalExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			now := time.Now()
			s.mutex.Lock()
			for key, v := range s.hashmap {
				if v.expired(now) {
					delete(s.hashmap, key)
				}
			}
			s.mutex.Unlock()
		}
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.selfContained {
		s.sugar.Debugf("Getting value of key [%s] from hashmap", key)

		s.mutex.RLock()
		defer s.mutex.RUnlock()

		v, ok := s.hashmap[key]
		if !ok || v.expired(time.Now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting value of key [%s] from redis", key)

	value, err := s.redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func (s *Store) GetDel(ctx context.Context, key string) (string, error) {
	if s.selfContained {
		s.sugar.Debugf("Getting and deleting value of key [%s] from hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		v, ok := s.hashmap[key]
		delete(s.hashmap, key)
		if !ok || v.expired(time.Now()) {
			return "", nil
		}
		return v.value, nil
	}

	s.sugar.Debugf("Getting and deleting value of key [%s] from redis", key)

	value, err := s.redisClient.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

// Set stores value under key. An expiration of 0 keeps the key forever.
func (s *Store) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if s.selfContained {
		s.sugar.Debugf("Setting value of key [%s] in hashmap", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		s.hashmap[key] = newValue(value, expiration)
		return nil
	}

	s.sugar.Debugf("Setting value of key [%s] in redis", key)
	return s.redisClient.Set(ctx, key, value, expiration).Err()
}

// SetNX only stores value if key doesn't exist yet and reports whether it did.
func (s *Store) SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	if s.selfContained {
		s.sugar.Debugf("Setting value of key [%s] in hashmap if absent", key)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		if v, ok := s.hashmap[key]; ok && !v.expired(time.Now()) {
			return false, nil
		}
		s.hashmap[key] = newValue(value, expiration)
		return true, nil
	}

	s.sugar.Debugf("Setting value of key [%s] in redis if absent", key)
	return s.redisClient.SetNX(ctx, key, value, expiration).Result()
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if s.selfContained {
		s.sugar.Debugf("Deleting keys %v from hashmap", keys)

		s.mutex.Lock()
		defer s.mutex.Unlock()

		for _, key := range keys {
			delete(s.hashmap, key)
		}
		return nil
	}

	s.sugar.Debugf("Deleting keys %v from redis", keys)
	return s.redisClient.Del(ctx, keys...).Err()
}

func newValue(value string, expiration time.Duration) Value {
	v := Value{value: value}
	if expiration > 0 {
		v.expires = time.Now().Add(expiration)
	}
	return v
}
