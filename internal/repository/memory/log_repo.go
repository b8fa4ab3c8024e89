// Package memory provides in-process repositories for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/repository"
)

// LogRepository keeps logs in a map keyed by user and log id.
type LogRepository struct {
	mu    sync.RWMutex
	users auth.Provider
	logs  map[string]map[string]domain.LogRecord
	now   func() time.Time
}

// NewLogRepository returns an empty store. A nil now uses time.Now.
func NewLogRepository(users auth.Provider, now func() time.Time) *LogRepository {
	if now == nil {
		now = time.Now
	}
	return &LogRepository{
		users: users,
		logs:  make(map[string]map[string]domain.LogRecord),
		now:   now,
	}
}

var _ repository.LogRepository = (*LogRepository)(nil)

func (r *LogRepository) userID(ctx context.Context) (string, error) {
	u, ok := r.users.CurrentUser(ctx)
	if !ok {
		return "", repository.ErrUnauthenticated
	}
	return u.ID, nil
}

func (r *LogRepository) Get(ctx context.Context, id string) (*domain.LogRecord, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.logs[uid][id]
	if !ok {
		return nil, nil
	}
	cp := rec.Clone()
	return &cp, nil
}

func (r *LogRepository) Put(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return domain.LogRecord{}, err
	}
	if record.ID == "" {
		return domain.LogRecord{}, errors.New("log id is required")
	}

	record = record.Clone()
	record.LastOpened = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logs[uid] == nil {
		r.logs[uid] = make(map[string]domain.LogRecord)
	}
	r.logs[uid][record.ID] = record
	return record.Clone(), nil
}

func (r *LogRepository) Delete(ctx context.Context, id string) error {
	uid, err := r.userID(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs[uid], id)
	return nil
}

func (r *LogRepository) List(ctx context.Context) ([]domain.LogSummary, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LogSummary, 0, len(all))
	for _, rec := range all {
		out = append(out, rec.Summary())
	}
	return out, nil
}

func (r *LogRepository) All(ctx context.Context) ([]domain.LogRecord, error) {
	uid, err := r.userID(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]domain.LogRecord, 0, len(r.logs[uid]))
	for _, rec := range r.logs[uid] {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastOpened.Equal(out[j].LastOpened) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastOpened.After(out[j].LastOpened)
	})
	return out, nil
}

// UserRepository is the in-memory counterpart of the Mongo users collection.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[primitive.ObjectID]domain.User
	byEmail map[string]primitive.ObjectID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[primitive.ObjectID]domain.User),
		byEmail: make(map[string]primitive.ObjectID),
	}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.PasswordHash == "" {
		return primitive.NilObjectID, errors.New("user email and password hash are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return primitive.NilObjectID, repository.ErrDuplicateEmail
	}

	user.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.byID[user.ID] = *user
	r.byEmail[user.Email] = user.ID
	return user.ID, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}
