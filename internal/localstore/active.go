package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/domain"
)

// DefaultKey is the single key the active log lives under.
const DefaultKey = "setpad:active-log"

// ActiveLog caches exactly one training log, the one last saved.
type ActiveLog struct {
	kv    KeyValue
	key   string
	users auth.Provider
	now   func() time.Time
}

// NewActiveLog stores under key, or DefaultKey when key is empty.
func NewActiveLog(kv KeyValue, key string) *ActiveLog {
	if key == "" {
		key = DefaultKey
	}
	return &ActiveLog{kv: kv, key: key, now: time.Now}
}

// PerUser makes the cache keep one active log per signed-in user, under
// "<key>:<userId>". Without a signed-in user the plain key is used.
func (a *ActiveLog) PerUser(users auth.Provider) *ActiveLog {
	a.users = users
	return a
}

func (a *ActiveLog) keyFor(ctx context.Context) string {
	if a.users == nil {
		return a.key
	}
	if u, ok := a.users.CurrentUser(ctx); ok {
		return a.key + ":" + u.ID
	}
	return a.key
}

// Save normalizes and stores record, replacing whatever was cached.
func (a *ActiveLog) Save(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error) {
	normalized := domain.Normalize(record, a.now())

	payload, err := json.Marshal(normalized)
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := a.kv.Set(ctx, a.keyFor(ctx), payload); err != nil {
		return domain.LogRecord{}, err
	}
	return normalized, nil
}

// Load returns nil when nothing is cached. An unreadable value is reported
// and treated as absent.
func (a *ActiveLog) Load(ctx context.Context) (*domain.LogRecord, error) {
	key := a.keyFor(ctx)
	payload, ok, err := a.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	record, err := domain.DecodeLogRecord(payload)
	if err != nil {
		log.WithError(err).WithField("key", key).Warn("discarding unreadable active log")
		return nil, nil
	}
	normalized := domain.Normalize(record, a.now())
	return &normalized, nil
}

// Clear removes the cached log. Clearing an empty cache succeeds.
func (a *ActiveLog) Clear(ctx context.Context) error {
	return a.kv.Delete(ctx, a.keyFor(ctx))
}
