package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrOTPInvalid covers wrong, expired and exhausted codes alike so callers
// cannot probe which one applied.
var ErrOTPInvalid = errors.New("invalid or expired code")

// OTPStore keeps one pending code per identifier.
type OTPStore interface {
	Save(ctx context.Context, identifier, code string) error
	// Verify consumes the code on success. Each call counts as an attempt;
	// once maxTries is reached the code is discarded.
	Verify(ctx context.Context, identifier, code string) error
}

func codesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RedisOTPStore shares codes across server instances.
type RedisOTPStore struct {
	client   *redis.Client
	ttl      time.Duration
	maxTries int
}

// NewRedisOTPStore connects to redisURL and pings it before returning.
func NewRedisOTPStore(redisURL string, ttl time.Duration, maxTries int) (*RedisOTPStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisOTPStore{client: client, ttl: ttl, maxTries: maxTries}, nil
}

func otpKey(identifier string) string   { return "otp:" + identifier }
func triesKey(identifier string) string { return "otp:" + identifier + ":tries" }

func (s *RedisOTPStore) Save(ctx context.Context, identifier, code string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, otpKey(identifier), code, s.ttl)
		pipe.Del(ctx, triesKey(identifier))
		return nil
	})
	return err
}

func (s *RedisOTPStore) Verify(ctx context.Context, identifier, code string) error {
	tries, err := s.client.Incr(ctx, triesKey(identifier)).Result()
	if err != nil {
		return err
	}
	if tries == 1 {
		s.client.Expire(ctx, triesKey(identifier), s.ttl)
	}

	stored, err := s.client.Get(ctx, otpKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrOTPInvalid
	}
	if err != nil {
		return err
	}

	if codesEqual(stored, code) {
		return s.client.Del(ctx, otpKey(identifier), triesKey(identifier)).Err()
	}
	if int(tries) >= s.maxTries {
		s.client.Del(ctx, otpKey(identifier), triesKey(identifier))
	}
	return ErrOTPInvalid
}

func (s *RedisOTPStore) Close() error {
	return s.client.Close()
}

type otpEntry struct {
	code      string
	tries     int
	expiresAt time.Time
}

// MemoryOTPStore is the single-instance fallback when Redis is not
// configured. A code expires ttl after Save; failed attempts do not extend
// it.
type MemoryOTPStore struct {
	mu       sync.Mutex
	cache    *lru.LRU[string, otpEntry]
	ttl      time.Duration
	maxTries int
	now      func() time.Time
}

func NewMemoryOTPStore(ttl time.Duration, maxTries int) *MemoryOTPStore {
	return &MemoryOTPStore{
		cache:    lru.NewLRU[string, otpEntry](1024, nil, ttl),
		ttl:      ttl,
		maxTries: maxTries,
		now:      time.Now,
	}
}

func (s *MemoryOTPStore) Save(_ context.Context, identifier, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(identifier, otpEntry{code: code, expiresAt: s.now().Add(s.ttl)})
	return nil
}

func (s *MemoryOTPStore) Verify(_ context.Context, identifier, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.cache.Get(identifier)
	if !ok {
		return ErrOTPInvalid
	}
	if !s.now().Before(entry.expiresAt) {
		s.cache.Remove(identifier)
		return ErrOTPInvalid
	}
	if codesEqual(entry.code, code) {
		s.cache.Remove(identifier)
		return nil
	}
	entry.tries++
	if entry.tries >= s.maxTries {
		s.cache.Remove(identifier)
	} else {
		s.cache.Add(identifier, entry)
	}
	return ErrOTPInvalid
}
