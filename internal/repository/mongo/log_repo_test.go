package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"alcyxob/setpad/internal/auth"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/repository"
)

const testNS = "setpad.tables"

var testStoreTime = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

func signedIn() context.Context {
	return auth.WithUser(context.Background(), domain.AuthUser{ID: "user-1"})
}

func newTestLogRepo(mt *mtest.T) *mongoLogRepository {
	repo := NewMongoLogRepository(mt.DB, auth.ContextProvider{}).(*mongoLogRepository)
	repo.now = func() time.Time { return testStoreTime }
	return repo
}

func TestMongoLogRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get decodes stored log", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch, bson.D{
			{Key: "userId", Value: "user-1"},
			{Key: "logId", Value: "log-1"},
			{Key: "tableName", Value: "Leg Day"},
			{Key: "date", Value: "2024-05-30"},
			{Key: "rows", Value: bson.A{
				bson.D{
					{Key: "id", Value: 0},
					{Key: "exercise", Value: "Squat"},
					{Key: "weightUnit", Value: "kg"},
					{Key: "sets", Value: bson.A{bson.D{{Key: "reps", Value: "5"}, {Key: "weight", Value: "100"}}}},
				},
			}},
		}))

		rec, err := repo.Get(signedIn(), "log-1")
		require.NoError(mt, err)
		require.NotNil(mt, rec)
		assert.Equal(mt, "Leg Day", rec.TableName)
		assert.Equal(mt, domain.LogDate("2024-05-30"), rec.Date)
		require.Len(mt, rec.Rows, 1)
		assert.Equal(mt, domain.UnitKg, rec.Rows[0].WeightUnit)
		assert.Equal(mt, "100", rec.Rows[0].Sets[0].Weight)
	})

	mt.Run("get missing returns nil", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch))

		rec, err := repo.Get(signedIn(), "nope")
		require.NoError(mt, err)
		assert.Nil(mt, rec)
	})

	mt.Run("put stamps last opened", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		in := domain.LogRecord{ID: "log-1", TableName: "A", LastOpened: time.Unix(0, 0)}
		out, err := repo.Put(signedIn(), in)
		require.NoError(mt, err)
		assert.Equal(mt, testStoreTime, out.LastOpened)
		assert.Equal(mt, "A", out.TableName)
	})

	mt.Run("put surfaces write errors", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "server shutting down",
		}))

		_, err := repo.Put(signedIn(), domain.LogRecord{ID: "log-1"})
		assert.Error(mt, err)
	})

	mt.Run("delete", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		assert.NoError(mt, repo.Delete(signedIn(), "already-gone"))
	})

	mt.Run("list keeps server order", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		newer := testStoreTime
		older := testStoreTime.Add(-time.Hour)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch,
			bson.D{{Key: "logId", Value: "b"}, {Key: "tableName", Value: "B"}, {Key: "lastOpened", Value: newer}},
			bson.D{{Key: "logId", Value: "a"}, {Key: "tableName", Value: "A"}, {Key: "lastOpened", Value: older}},
		))

		list, err := repo.List(signedIn())
		require.NoError(mt, err)
		require.Len(mt, list, 2)
		assert.Equal(mt, "b", list[0].ID)
		assert.Equal(mt, "a", list[1].ID)
		assert.True(mt, list[0].LastOpened.Equal(newer))
	})

	mt.Run("list empty", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, testNS, mtest.FirstBatch))

		list, err := repo.List(signedIn())
		require.NoError(mt, err)
		assert.NotNil(mt, list)
		assert.Empty(mt, list)
	})

	mt.Run("signed out fails before any call", func(mt *mtest.T) {
		repo := newTestLogRepo(mt)
		ctx := context.Background()

		_, err := repo.Get(ctx, "x")
		assert.ErrorIs(mt, err, repository.ErrUnauthenticated)
		_, err = repo.Put(ctx, domain.LogRecord{ID: "x"})
		assert.ErrorIs(mt, err, repository.ErrUnauthenticated)
		assert.ErrorIs(mt, repo.Delete(ctx, "x"), repository.ErrUnauthenticated)
		_, err = repo.List(ctx)
		assert.ErrorIs(mt, err, repository.ErrUnauthenticated)
		_, err = repo.All(ctx)
		assert.ErrorIs(mt, err, repository.ErrUnauthenticated)
	})
}

func TestMongoUserRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate email", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		_, err := repo.Create(context.Background(), &domain.User{Email: "a@b.c", PasswordHash: "x"})
		assert.ErrorIs(mt, err, repository.ErrDuplicateEmail)
	})

	mt.Run("missing user", func(mt *mtest.T) {
		repo := NewMongoUserRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "setpad.users", mtest.FirstBatch))

		_, err := repo.GetByEmail(context.Background(), "a@b.c")
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})
}
