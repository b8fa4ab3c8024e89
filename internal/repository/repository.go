package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"alcyxob/setpad/internal/domain"
)

// Error constants for repository layer
var (
	ErrNotFound        = RepositoryError("not found")
	ErrDuplicateEmail  = RepositoryError("user with this email already exists")
	ErrUnauthenticated = RepositoryError("no signed-in user")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
}

// LogRepository stores the signed-in user's training logs.
// Every method returns ErrUnauthenticated, without touching the backend,
// when no user is signed in.
type LogRepository interface {
	// Get returns nil, nil when the log does not exist.
	Get(ctx context.Context, id string) (*domain.LogRecord, error)
	// Put creates or fully replaces the log and stamps LastOpened.
	Put(ctx context.Context, record domain.LogRecord) (domain.LogRecord, error)
	// Delete succeeds when the log is already gone.
	Delete(ctx context.Context, id string) error
	// List returns summaries ordered by LastOpened, most recent first.
	List(ctx context.Context) ([]domain.LogSummary, error)
	// All returns every log in full, in List order.
	All(ctx context.Context) ([]domain.LogRecord, error)
}
