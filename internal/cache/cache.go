// Package cache implementa la cache de respuestas del pipeline de forecast.
//
// Cada clave (texto libre de longitud arbitraria) se direcciona por su SHA-256 en hex,
// así cualquier carácter es representable como identificador de almacenamiento.
// Cada entrada guarda su propio timestamp de creación junto al payload JSON:
//
//	{"timestamp": "2025-03-01T10:00:00Z", "payload": <valor>}
//
// Una entrada que no se puede decodificar se borra en el momento (auto-reparación)
// y se trata como miss. No hay locking entre procesos: last-writer-wins.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyedge/internal/metrics"
)

// DefaultTTL es la expiración por defecto de una entrada.
const DefaultTTL = 24 * time.Hour

var (
	// ErrNotFound lo devuelve un Store cuando el id no existe.
	ErrNotFound = errors.New("cache entry not found")
	// ErrCacheWrite envuelve cualquier fallo de Set.
	ErrCacheWrite = errors.New("cache write failed")
)

// Store es el backend de bytes de la cache, direccionado por el hash hex de la clave.
type Store interface {
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, data []byte) error
	Delete(ctx context.Context, id string) error
}

// Lister lo implementan los stores que pueden enumerar sus entradas (necesario para Prune).
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// entry es el sobre persistido de cada valor.
type entry struct {
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Cache es la cache clave→valor con TTL sobre un Store.
type Cache struct {
	store   Store
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configura una Cache.
type Option func(*Cache)

// WithTTL cambia la expiración. Valores <= 0 se ignoran.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock inyecta el reloj (tests de expiración).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics registra hits, misses y corrupciones en m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New crea una Cache sobre store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key devuelve el identificador de almacenamiento de una clave: SHA-256 hex de sus bytes UTF-8.
func Key(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// TTL devuelve la expiración configurada.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get decodifica en out el valor guardado bajo key.
// Devuelve false si no hay entrada, si expiró o si está corrupta (en cuyo caso la borra).
func (c *Cache) Get(ctx context.Context, key string, out any) bool {
	id := Key(key)

	data, err := c.store.Read(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("cache read failed, treating as miss", "id", id, "err", err)
		}
		c.metrics.CacheLookup(metrics.CacheMiss)
		return false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.heal(ctx, id, fmt.Errorf("decode entry: %w", err))
		return false
	}
	if e.Timestamp.IsZero() || len(e.Payload) == 0 {
		c.heal(ctx, id, errors.New("entry without timestamp or payload"))
		return false
	}

	if c.now().Sub(e.Timestamp) > c.ttl {
		c.metrics.CacheLookup(metrics.CacheExpired)
		return false
	}

	if err := json.Unmarshal(e.Payload, out); err != nil {
		c.heal(ctx, id, fmt.Errorf("decode payload: %w", err))
		return false
	}

	c.metrics.CacheLookup(metrics.CacheHit)
	return true
}

// Set guarda value bajo key, sobreescribiendo cualquier entrada previa.
// El error devuelto envuelve ErrCacheWrite y no debe abortar al caller.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		c.metrics.CacheWriteError()
		return fmt.Errorf("cache.Set: %w: marshal payload: %v", ErrCacheWrite, err)
	}

	data, err := json.Marshal(entry{Timestamp: c.now().UTC(), Payload: payload})
	if err != nil {
		c.metrics.CacheWriteError()
		return fmt.Errorf("cache.Set: %w: marshal entry: %v", ErrCacheWrite, err)
	}

	if err := c.store.Write(ctx, Key(key), data); err != nil {
		c.metrics.CacheWriteError()
		return fmt.Errorf("cache.Set: %w: %v", ErrCacheWrite, err)
	}
	return nil
}

// Prune borra las entradas expiradas o corruptas y devuelve cuántas eliminó.
// Solo funciona con stores que implementan Lister; el resto devuelve 0.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	lister, ok := c.store.(Lister)
	if !ok {
		return 0, nil
	}

	ids, err := lister.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache.Prune: list: %w", err)
	}

	removed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		data, err := c.store.Read(ctx, id)
		if err != nil {
			continue
		}
		var e entry
		stale := json.Unmarshal(data, &e) != nil || e.Timestamp.IsZero() ||
			c.now().Sub(e.Timestamp) > c.ttl
		if !stale {
			continue
		}
		if err := c.store.Delete(ctx, id); err != nil {
			slog.Warn("cache prune: delete failed", "id", id, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// heal borra una entrada corrupta para que el próximo lookup no falle igual.
func (c *Cache) heal(ctx context.Context, id string, cause error) {
	c.metrics.CacheLookup(metrics.CacheCorrupt)
	slog.Warn("corrupted cache entry, deleting", "id", id, "err", cause)
	if err := c.store.Delete(ctx, id); err != nil {
		slog.Warn("cache self-heal failed", "id", id, "err", err)
	}
}
