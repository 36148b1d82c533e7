package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisOTP(t *testing.T, ttl time.Duration, maxTries int) (*RedisOTPStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisOTPStore("redis://"+mr.Addr(), ttl, maxTries)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestOTPStores(t *testing.T) {
	stores := map[string]func(t *testing.T) OTPStore{
		"redis": func(t *testing.T) OTPStore {
			s, _ := newRedisOTP(t, 5*time.Minute, 3)
			return s
		},
		"memory": func(t *testing.T) OTPStore {
			return NewMemoryOTPStore(5*time.Minute, 3)
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("code is single use", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Save(ctx, "a@example.com", "123456"))
				assert.NoError(t, s.Verify(ctx, "a@example.com", "123456"))
				assert.ErrorIs(t, s.Verify(ctx, "a@example.com", "123456"), ErrOTPInvalid)
			})

			t.Run("unknown identifier", func(t *testing.T) {
				s := open(t)
				assert.ErrorIs(t, s.Verify(ctx, "nobody", "123456"), ErrOTPInvalid)
			})

			t.Run("wrong code then right code", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Save(ctx, "b", "111111"))
				assert.ErrorIs(t, s.Verify(ctx, "b", "000000"), ErrOTPInvalid)
				assert.NoError(t, s.Verify(ctx, "b", "111111"))
			})

			t.Run("discarded after max tries", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Save(ctx, "c", "222222"))
				for i := 0; i < 3; i++ {
					assert.ErrorIs(t, s.Verify(ctx, "c", "999999"), ErrOTPInvalid)
				}
				assert.ErrorIs(t, s.Verify(ctx, "c", "222222"), ErrOTPInvalid)
			})

			t.Run("new code resets tries", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Save(ctx, "d", "333333"))
				assert.ErrorIs(t, s.Verify(ctx, "d", "999999"), ErrOTPInvalid)
				assert.ErrorIs(t, s.Verify(ctx, "d", "999999"), ErrOTPInvalid)
				require.NoError(t, s.Save(ctx, "d", "444444"))
				assert.ErrorIs(t, s.Verify(ctx, "d", "999999"), ErrOTPInvalid)
				assert.ErrorIs(t, s.Verify(ctx, "d", "333333"), ErrOTPInvalid)
				assert.NoError(t, s.Verify(ctx, "d", "444444"))
			})
		})
	}
}

func TestRedisOTPStore_Expiry(t *testing.T) {
	s, mr := newRedisOTP(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", "123456"))
	assert.True(t, mr.Exists("otp:a"))

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, s.Verify(ctx, "a", "123456"), ErrOTPInvalid)
}

func TestMemoryOTPStore_Expiry(t *testing.T) {
	s := NewMemoryOTPStore(20*time.Millisecond, 3)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", "123456"))
	time.Sleep(60 * time.Millisecond)
	assert.ErrorIs(t, s.Verify(ctx, "a", "123456"), ErrOTPInvalid)
}

func TestMemoryOTPStore_WrongGuessesDoNotExtendExpiry(t *testing.T) {
	s := NewMemoryOTPStore(time.Minute, 5)
	clock := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "a", "123456"))
	clock = clock.Add(50 * time.Second)
	assert.ErrorIs(t, s.Verify(ctx, "a", "000000"), ErrOTPInvalid)

	clock = clock.Add(15 * time.Second)
	assert.ErrorIs(t, s.Verify(ctx, "a", "123456"), ErrOTPInvalid, "code outlived its ttl")

	require.NoError(t, s.Save(ctx, "a", "654321"))
	assert.NoError(t, s.Verify(ctx, "a", "654321"))
}

func TestNewRedisOTPStore_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisOTPStore("redis://"+addr, time.Minute, 3)
	assert.Error(t, err)
}
