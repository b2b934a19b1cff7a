package sink

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/huestrip/internal/frame"
)

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis publishes frame JSON on a pub/sub channel.
type Redis struct {
	cfg    RedisConfig
	client redis.UniversalClient
	box    *mailbox
}

// NewRedis creates a Redis sink.
func NewRedis(cfg RedisConfig) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
		ReadTimeout:  time.Second,
	})
	return NewRedisWithClient(cfg, client)
}

// NewRedisWithClient creates a Redis sink on an existing client.
func NewRedisWithClient(cfg RedisConfig, client redis.UniversalClient) *Redis {
	return &Redis{cfg: cfg, client: client, box: newMailbox()}
}

// Name implements Sink.
func (s *Redis) Name() string { return "redis" }

// Emit implements frame.Sink.
func (s *Redis) Emit(f frame.Frame) {
	s.box.put(f)
}

// Run publishes frames until ctx is cancelled.
func (s *Redis) Run(ctx context.Context) error {
	defer s.client.Close()

	failing := false
	for {
		var f frame.Frame
		select {
		case <-ctx.Done():
			pending, ok := s.box.take()
			if !ok {
				return nil
			}
			flushCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = s.publish(flushCtx, pending)
			cancel()
			return nil
		case f = <-s.box.C():
		}

		err := s.publish(ctx, f)
		switch {
		case err != nil && ctx.Err() == nil && !failing:
			log.Warn().Err(err).Str("addr", s.cfg.Addr).Msg("Redis publish failed")
			failing = true
		case err == nil && failing:
			log.Info().Str("addr", s.cfg.Addr).Msg("Redis publish recovered")
			failing = false
		}
	}
}

func (s *Redis) publish(ctx context.Context, f frame.Frame) error {
	payload, err := f.JSON()
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.cfg.Channel, payload).Err()
}
