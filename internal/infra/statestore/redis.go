package statestore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"weekly_report_bot/internal/domain/conversation"
)

const keyPrefix = "weekly_report_bot:state:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires abandoned dialogues. Zero keeps them forever.
	TTL time.Duration
}

// Redis is a conversation.Store that survives restarts.
type Redis struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb, ttl: opts.TTL}, nil
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (r *Redis) Get(ctx context.Context, userID int64) (conversation.State, error) {
	raw, err := r.rdb.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading conversation state of %d: %w", userID, err)
	}
	st, err := conversation.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("error loading conversation state of %d: %w", userID, err)
	}
	return st, nil
}

func (r *Redis) Set(ctx context.Context, userID int64, st conversation.State) error {
	if st == nil {
		return r.Clear(ctx, userID)
	}
	raw, err := conversation.Encode(st)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, key(userID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("error saving conversation state of %d: %w", userID, err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, userID int64) error {
	if err := r.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("error clearing conversation state of %d: %w", userID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
