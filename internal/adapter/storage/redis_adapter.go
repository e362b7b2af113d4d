package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const otpKeyPrefix = "otp:"

// verifyOTPScript mirrors domain.OTPEntry.Check. It returns
// {outcome, remainingAttempts, userID} using the domain.OTPOutcome values.
var verifyOTPScript = redis.NewScript(`
local key = KEYS[1]
local code = ARGV[1]
local now = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

local fields = redis.call('HMGET', key, 'code', 'user_id', 'expires_at', 'attempts')
if not fields[1] then
	return {1, 0, 0}
end

local attempts = tonumber(fields[4])
if now > tonumber(fields[3]) then
	redis.call('DEL', key)
	return {2, 0, 0}
end

if attempts >= max then
	redis.call('DEL', key)
	return {3, 0, 0}
end

if fields[1] ~= code then
	attempts = redis.call('HINCRBY', key, 'attempts', 1)
	return {4, max - attempts, 0}
end

redis.call('DEL', key)
return {0, 0, tonumber(fields[2])}
`)

// RedisOTPStore shares issued codes between server instances. Entries are
// hashes that Redis also expires on its own at ExpiresAt.
type RedisOTPStore struct {
	client *redis.Client
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

var _ port.OTPStore = (*RedisOTPStore)(nil)

func (r *RedisOTPStore) Save(ctx context.Context, key string, entry domain.OTPEntry) error {
	k := otpKeyPrefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			"code", entry.Code,
			"user_id", entry.UserID,
			"expires_at", entry.ExpiresAt.UnixMilli(),
			"attempts", entry.Attempts,
		)
		pipe.PExpireAt(ctx, k, entry.ExpiresAt)
		return nil
	})
	return classify("save otp", err)
}

func (r *RedisOTPStore) Verify(ctx context.Context, key, code string, now time.Time, maxAttempts int) (domain.OTPResult, error) {
	res, err := verifyOTPScript.Run(ctx, r.client, []string{otpKeyPrefix + key},
		code, now.UnixMilli(), maxAttempts).Int64Slice()
	if err != nil {
		return domain.OTPResult{}, classify("verify otp", err)
	}
	if len(res) != 3 {
		return domain.OTPResult{}, fmt.Errorf("verify otp: unexpected script reply %v", res)
	}
	return domain.OTPResult{
		Outcome:           domain.OTPOutcome(res[0]),
		RemainingAttempts: int(res[1]),
		UserID:            res[2],
	}, nil
}
