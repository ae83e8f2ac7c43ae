package storage

import "context"

// Prefixed scopes every key of an underlying Storage under a fixed prefix.
type Prefixed struct {
	inner  Storage
	prefix string
}

func WithPrefix(inner Storage, prefix string) *Prefixed {
	return &Prefixed{inner: inner, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Set(ctx context.Context, key, value string) error {
	return p.inner.Set(ctx, p.prefix+key, value)
}

func (p *Prefixed) SetMany(ctx context.Context, kv map[string]string) error {
	scoped := make(map[string]string, len(kv))
	for k, v := range kv {
		scoped[p.prefix+k] = v
	}
	return p.inner.SetMany(ctx, scoped)
}

func (p *Prefixed) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = p.prefix + k
	}
	return p.inner.Delete(ctx, scoped...)
}
