package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
)

// Claimer sichert zu, dass eine Analyse-ID zur selben Zeit nur von einem Worker bearbeitet wird.
type Claimer interface {
	// Claim gibt false zurück, wenn die ID bereits beansprucht ist.
	Claim(ctx context.Context, analysisID uint) (bool, error)
	Release(ctx context.Context, analysisID uint) error
}

func claimKey(analysisID uint) string {
	return fmt.Sprintf("metabolitics:claim:analysis:%d", analysisID)
}

// RedisClaimer nutzt SET NX mit TTL und funktioniert über mehrere Instanzen hinweg.
type RedisClaimer struct {
	client     *redis.Client
	ttl        time.Duration
	instanceID string
}

// NewRedisClaimer verbindet sich mit Redis und prüft die Verbindung.
func NewRedisClaimer(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisClaimer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	hostname, _ := os.Hostname()
	return &RedisClaimer{client: client, ttl: ttl, instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid())}, nil
}

func (c *RedisClaimer) Claim(ctx context.Context, analysisID uint) (bool, error) {
	ok, err := c.client.SetNX(ctx, claimKey(analysisID), c.instanceID, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim analysis %d: %w", analysisID, err)
	}
	return ok, nil
}

// releaseScript löscht den Schlüssel nur, wenn diese Instanz ihn hält.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

func (c *RedisClaimer) Release(ctx context.Context, analysisID uint) error {
	if err := releaseScript.Run(ctx, c.client, []string{claimKey(analysisID)}, c.instanceID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release analysis %d: %w", analysisID, err)
	}
	return nil
}

// Close schließt die Redis-Verbindung.
func (c *RedisClaimer) Close() error {
	return c.client.Close()
}

// MemoryClaimer ist die Einzelinstanz-Variante auf Basis von go-cache.
type MemoryClaimer struct {
	claims *cache.Cache
	ttl    time.Duration
}

// NewMemoryClaimer erstellt einen Claimer, dessen Einträge nach ttl verfallen.
func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	return &MemoryClaimer{claims: cache.New(ttl, 2*ttl), ttl: ttl}
}

func (c *MemoryClaimer) Claim(_ context.Context, analysisID uint) (bool, error) {
	// Add schlägt fehl, solange ein unverfallener Eintrag existiert.
	return c.claims.Add(claimKey(analysisID), struct{}{}, c.ttl) == nil, nil
}

func (c *MemoryClaimer) Release(_ context.Context, analysisID uint) error {
	c.claims.Delete(claimKey(analysisID))
	return nil
}
