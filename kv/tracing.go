package kv

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"

type traced struct {
	next   Store
	tracer trace.Tracer
}

var _ Store = (*traced)(nil)

// WithTracing records one client span per store command using the global
// OpenTelemetry tracer provider. Keys are not recorded because some of them
// embed credentials.
func WithTracing(s Store) Store {
	return &traced{next: s, tracer: otel.Tracer(tracerName)}
}

func (t *traced) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "redis"), attribute.String("db.operation", op))
	return t.tracer.Start(ctx, "kv."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *traced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := t.start(ctx, "GET")
	val, found, err := t.next.Get(ctx, key)
	span.SetAttributes(attribute.Bool("kv.hit", found))
	finish(span, err)
	return val, found, err
}

func (t *traced) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	ctx, span := t.start(ctx, "SET", attribute.Int64("kv.ttl_ms", ttl.Milliseconds()))
	err := t.next.Set(ctx, key, val, ttl)
	finish(span, err)
	return err
}

func (t *traced) Del(ctx context.Context, keys ...string) (int64, error) {
	ctx, span := t.start(ctx, "DEL", attribute.Int("kv.keys", len(keys)))
	n, err := t.next.Del(ctx, keys...)
	finish(span, err)
	return n, err
}

func (t *traced) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, span := t.start(ctx, "SCAN")
	keys, err := t.next.Keys(ctx, pattern)
	span.SetAttributes(attribute.Int("kv.keys", len(keys)))
	finish(span, err)
	return keys, err
}

func (t *traced) Incr(ctx context.Context, key string) (int64, error) {
	ctx, span := t.start(ctx, "INCR")
	n, err := t.next.Incr(ctx, key)
	finish(span, err)
	return n, err
}

func (t *traced) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, span := t.start(ctx, "EXPIRE", attribute.Int64("kv.ttl_ms", ttl.Milliseconds()))
	ok, err := t.next.Expire(ctx, key, ttl)
	finish(span, err)
	return ok, err
}

func (t *traced) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := t.start(ctx, "PTTL")
	d, err := t.next.TTL(ctx, key)
	finish(span, err)
	return d, err
}

func (t *traced) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	ctx, span := t.start(ctx, "MGET", attribute.Int("kv.keys", len(keys)))
	vals, err := t.next.MGet(ctx, keys...)
	finish(span, err)
	return vals, err
}

func (t *traced) Pipeline(ctx context.Context, ops ...Op) error {
	ctx, span := t.start(ctx, "PIPELINE", attribute.Int("kv.ops", len(ops)))
	err := t.next.Pipeline(ctx, ops...)
	finish(span, err)
	return err
}

func (t *traced) Ping(ctx context.Context) error {
	ctx, span := t.start(ctx, "PING")
	err := t.next.Ping(ctx)
	finish(span, err)
	return err
}

func (t *traced) Close() error {
	return t.next.Close()
}
