package calendar

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

// GuestStore is the guest side of the backing store.
type GuestStore interface {
	// FindBySurname returns one guest whose surname contains name ignoring
	// case, or nil when none does.
	FindBySurname(ctx context.Context, name string) (*models.Guest, error)
	Create(ctx context.Context, surname string) (*models.Guest, error)
}

// GuestResolver maps free-text guest names to guest ids, creating guests
// that do not exist yet.
//
// Matching is "first found": a case-insensitive substring match of the name
// against stored surnames, and when several guests match the store returns
// the one with the lowest id.
//
// A resolver lives for one sync pass. Resolved ids are cached by normalized
// name and concurrent lookups of the same name share one store round trip,
// so a name unknown at the start of the pass creates a single guest even
// when it appears in several feeds.
type GuestResolver struct {
	store  GuestStore
	logger *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	cache   map[string]int64
	created atomic.Int64
}

// NewGuestResolver creates a resolver with an empty cache.
func NewGuestResolver(store GuestStore, logger *zap.Logger) *GuestResolver {
	return &GuestResolver{
		store:  store,
		logger: logger,
		cache:  make(map[string]int64),
	}
}

// Resolve returns the id of the guest matching name, creating the guest if
// needed. On any store failure it logs and returns nil; the error is also
// returned (*LookupError or *CreateError) for callers that count failures.
func (r *GuestResolver) Resolve(ctx context.Context, name string) (*int64, error) {
	key := normalizeName(name)

	r.mu.Lock()
	id, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return &id, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		r.mu.Lock()
		id, ok := r.cache[key]
		r.mu.Unlock()
		if ok {
			return id, nil
		}

		id, err := r.lookupOrCreate(ctx, name)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		r.logger.Warn("guest resolution failed", zap.String("name", name), zap.Error(err))
		return nil, err
	}

	resolved := v.(int64)
	return &resolved, nil
}

// Created returns how many guests this resolver has created.
func (r *GuestResolver) Created() int {
	return int(r.created.Load())
}

func (r *GuestResolver) lookupOrCreate(ctx context.Context, name string) (int64, error) {
	guest, err := r.store.FindBySurname(ctx, name)
	if err != nil {
		return 0, &LookupError{Name: name, Err: err}
	}
	if guest != nil {
		return guest.ID, nil
	}

	r.logger.Info("creating guest", zap.String("name", name))
	guest, err = r.store.Create(ctx, name)
	if err != nil {
		return 0, &CreateError{Name: name, Err: err}
	}
	r.created.Add(1)
	return guest.ID, nil
}

// normalizeName is the cache key for a guest name.
func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// formatGuestID renders an optional guest id for exported descriptions.
func formatGuestID(id *int64) string {
	if id == nil {
		return "unknown"
	}
	return strconv.FormatInt(*id, 10)
}
