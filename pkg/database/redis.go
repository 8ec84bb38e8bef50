package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"intuneget/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Redis struct {
	Client *redis.Client
	tracer trace.Tracer
}

func NewRedis(ctx context.Context) (*Redis, error) {
	redisURL := config.GetEnv("REDIS_URL", "redis://localhost:6379")

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("Connected to Redis at: %s", opt.Addr)

	r := &Redis{Client: client}

	// Only initialize tracer if telemetry is enabled
	if config.GetBoolEnv("ENABLE_TELEMETRY", false) {
		r.tracer = otel.Tracer("redis-client")
	}

	return r, nil
}

func (r *Redis) Close() error {
	return r.Client.Close()
}

// startSpan opens a span for a Redis command when tracing is enabled
func (r *Redis) startSpan(ctx context.Context, name, operation string, keys ...string) (context.Context, trace.Span) {
	if r.tracer == nil {
		return ctx, nil
	}
	return r.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.StringSlice("redis.keys", keys),
			attribute.String("redis.operation", operation),
		),
	)
}

func finishSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil && err != redis.Nil {
		span.RecordError(err)
	}
	span.End()
}

func (r *Redis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, span := r.startSpan(ctx, "redis.set", "SET", key)
	err := r.Client.Set(ctx, key, value, expiration).Err()
	finishSpan(span, err)
	return err
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	ctx, span := r.startSpan(ctx, "redis.get", "GET", key)
	result, err := r.Client.Get(ctx, key).Result()
	finishSpan(span, err)
	return result, err
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	ctx, span := r.startSpan(ctx, "redis.delete", "DEL", keys...)
	err := r.Client.Del(ctx, keys...).Err()
	finishSpan(span, err)
	return err
}

// SetNX sets key only if it does not exist yet; used for distributed locks
func (r *Redis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	ctx, span := r.startSpan(ctx, "redis.setnx", "SETNX", key)
	ok, err := r.Client.SetNX(ctx, key, value, expiration).Result()
	finishSpan(span, err)
	return ok, err
}

// CompareAndDelete removes key only while it still holds value
func (r *Redis) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	ctx, span := r.startSpan(ctx, "redis.compare_and_delete", "EVAL", key)
	deleted, err := compareAndDeleteScript.Run(ctx, r.Client, []string{key}, value).Int()
	finishSpan(span, err)
	return deleted == 1, err
}

var compareAndDeleteScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (r *Redis) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

// SetJSON stores a JSON-serializable object in Redis with expiration
func (r *Redis) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return r.Set(ctx, key, jsonData, expiration)
}

// GetJSON retrieves and unmarshals a JSON object from Redis. Returns redis.Nil on a miss.
func (r *Redis) GetJSON(ctx context.Context, key string, dest interface{}) error {
	jsonData, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonData), dest); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}
