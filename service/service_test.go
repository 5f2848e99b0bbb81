package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/favorites/favorite"
	"github.com/jacentio/favorites/internal/ddbfake"
	"github.com/jacentio/favorites/service"
	"github.com/jacentio/favorites/store"
)

// clock returns a Now func that advances one second per call.
func clock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestService(t *testing.T, cfg service.Config) (*service.Service, *store.Store, *ddbfake.Table) {
	t.Helper()
	storeCfg := store.DefaultConfig()
	table := ddbfake.New(storeCfg.TableName, storeCfg.IndexName)
	st := store.New(table, storeCfg)
	if cfg.Now == nil {
		cfg.Now = clock()
	}
	return service.New(st, cfg, nil), st, table
}

func strPtr(s string) *string { return &s }

func assertFailure(t *testing.T, err error, kind error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, msg, svcErr.Message)
}

func TestScenario_AddDuplicateUpdateRemove(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{})
	ctx := context.Background()

	fav, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m1", Title: strPtr("Dune")})
	require.NoError(t, err)
	assert.NotEmpty(t, fav.ID)
	assert.Len(t, fav.ID, 26, "ids are ULIDs")
	assert.Equal(t, "U1", fav.UserID)
	assert.Equal(t, "Dune", *fav.Title)
	assert.Equal(t, fav.CreatedAt, fav.UpdatedAt)

	_, err = svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m1", Title: strPtr("Dune (again)")})
	assertFailure(t, err, service.ErrDuplicate, "movie already in favorites")

	updated, err := svc.Update(ctx, "U1", fav.ID, favorite.Patch{favorite.FieldRating: 8})
	require.NoError(t, err)
	require.NotNil(t, updated.Rating)
	assert.Equal(t, 8.0, *updated.Rating)
	assert.True(t, updated.UpdatedAt.After(fav.UpdatedAt))
	assert.Equal(t, fav.CreatedAt, updated.CreatedAt)

	require.NoError(t, svc.Remove(ctx, "U1", fav.ID))

	_, err = svc.Get(ctx, "U1", fav.ID)
	assertFailure(t, err, service.ErrNotFound, "favorite not found")

	err = svc.Remove(ctx, "U1", fav.ID)
	assertFailure(t, err, service.ErrNotFound, "favorite not found")
}

func TestAdd_RequiresMovieID(t *testing.T) {
	svc, _, table := newTestService(t, service.Config{})

	for _, movieID := range []string{"", "   ", "\t\n"} {
		_, err := svc.Add(context.Background(), "U1", favorite.CreateInput{MovieID: movieID})
		assertFailure(t, err, service.ErrValidation, "movieId is required")
	}
	assert.Equal(t, 0, table.Len())
}

func TestAdd_UsesInjectedIDAndClock(t *testing.T) {
	at := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, service.Config{
		Now:   func() time.Time { return at },
		NewID: func() string { return "01J00000000000000000000001" },
	})

	fav, err := svc.Add(context.Background(), "U1", favorite.CreateInput{MovieID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "01J00000000000000000000001", fav.ID)
	assert.Equal(t, at, fav.CreatedAt)
}

func TestAdd_Quota(t *testing.T) {
	if testing.Short() {
		t.Skip("adds 1000 favorites")
	}
	svc, _, _ := newTestService(t, service.Config{})
	ctx := context.Background()

	for i := 0; i < service.DefaultMaxPerUser; i++ {
		_, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: fmt.Sprintf("m%04d", i)})
		require.NoError(t, err, "add #%d", i+1)
	}

	_, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "one-too-many"})
	assertFailure(t, err, service.ErrValidation, "favorites limit reached (1000)")

	// Other users are unaffected.
	_, err = svc.Add(ctx, "U2", favorite.CreateInput{MovieID: "one-too-many"})
	assert.NoError(t, err)
}

func TestAdd_QuotaConfigurable(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{MaxPerUser: 2})
	ctx := context.Background()

	for _, m := range []string{"m1", "m2"} {
		_, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: m})
		require.NoError(t, err)
	}
	_, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m3"})
	assertFailure(t, err, service.ErrValidation, "favorites limit reached (2)")
}

func TestAdd_ConcurrentSameMovie(t *testing.T) {
	svc, _, table := newTestService(t, service.Config{})
	ctx := context.Background()

	const n = 16
	var succeeded, duplicates atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := svc.Add(gctx, "U1", favorite.CreateInput{MovieID: "m1"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, service.ErrDuplicate):
				duplicates.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(n-1), duplicates.Load())
	assert.Equal(t, 2, table.Len(), "one entity and one marker")
}

// racingRepo lets the pre-check pass and then loses the transactional write,
// as when another request commits the same movie in between.
type racingRepo struct {
	service.Repository
	createErr error
}

func (r racingRepo) ExistsByMovieID(context.Context, string, string) (bool, error) {
	return false, nil
}

func (r racingRepo) Create(context.Context, string, string, time.Time, favorite.CreateInput) (favorite.Favorite, error) {
	return favorite.Favorite{}, r.createErr
}

func TestAdd_LateConflictLooksLikePreCheck(t *testing.T) {
	conflict := fmt.Errorf("%w: TransactionCanceledException", store.ErrConflict)
	svc := service.New(racingRepo{createErr: conflict}, service.Config{}, nil)

	_, err := svc.Add(context.Background(), "U1", favorite.CreateInput{MovieID: "m1"})
	assertFailure(t, err, service.ErrDuplicate, "movie already in favorites")
	assert.NotErrorIs(t, err, store.ErrConflict, "store conflict is translated, not leaked")
}

func TestAdd_InfrastructureErrorPropagates(t *testing.T) {
	boom := errors.New("engine unreachable")
	svc := service.New(racingRepo{createErr: boom}, service.Config{}, nil)

	_, err := svc.Add(context.Background(), "U1", favorite.CreateInput{MovieID: "m1"})
	assert.ErrorIs(t, err, boom)
	var svcErr *service.Error
	assert.False(t, errors.As(err, &svcErr))
}

func TestAdd_CountErrorPropagates(t *testing.T) {
	svc, _, table := newTestService(t, service.Config{})
	boom := errors.New("throttled")
	table.FailNext("Query", boom)

	_, err := svc.Add(context.Background(), "U1", favorite.CreateInput{MovieID: "m1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, table.Calls("TransactWriteItems"))
}

func TestAdd_PreCheckSkipsWrite(t *testing.T) {
	svc, _, table := newTestService(t, service.Config{})
	ctx := context.Background()

	_, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m1"})
	require.NoError(t, err)
	writes := table.Calls("TransactWriteItems")

	_, err = svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m1"})
	assert.ErrorIs(t, err, service.ErrDuplicate)
	assert.Equal(t, writes, table.Calls("TransactWriteItems"))
}

func TestUpdate_MovieIDIsImmutable(t *testing.T) {
	svc, st, table := newTestService(t, service.Config{})
	ctx := context.Background()

	fav, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m1", Title: strPtr("Dune")})
	require.NoError(t, err)

	patches := map[string]favorite.Patch{
		"different movie":   {favorite.FieldMovieID: "m2"},
		"same movie":        {favorite.FieldMovieID: "m1"},
		"null movie":        {favorite.FieldMovieID: nil},
		"alongside a field": {favorite.FieldMovieID: "m1", favorite.FieldTitle: "Arrival"},
	}
	for name, patch := range patches {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Update(ctx, "U1", fav.ID, patch)
			assertFailure(t, err, service.ErrValidation, "movieId cannot be updated")
		})
	}

	stored, found, err := st.GetByID(ctx, "U1", fav.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fav, stored)
	assert.Equal(t, 0, table.Calls("UpdateItem"))
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{})

	_, err := svc.Update(context.Background(), "U1", "01J00000000000000000000000", favorite.Patch{favorite.FieldNotes: "x"})
	assertFailure(t, err, service.ErrNotFound, "favorite not found")
}

func TestGet_ScopedToUser(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{})
	ctx := context.Background()

	fav, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: "m1"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "U1", fav.ID)
	require.NoError(t, err)
	assert.Equal(t, fav, got)

	_, err = svc.Get(ctx, "U2", fav.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestList_Passthrough(t *testing.T) {
	svc, _, _ := newTestService(t, service.Config{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		fav, err := svc.Add(ctx, "U1", favorite.CreateInput{MovieID: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		ids = append(ids, fav.ID)
	}

	page, err := svc.List(ctx, "U1", favorite.ListOptions{Limit: 2, Order: favorite.OrderAsc})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[:2], []string{page.Items[0].ID, page.Items[1].ID})
	assert.NotEmpty(t, page.NextCursor)

	page, err = svc.List(ctx, "U1", favorite.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, ids[4], page.Items[0].ID, "newest first by default")
}

func TestError(t *testing.T) {
	err := error(service.Validation("bad input"))
	assert.Equal(t, "bad input", err.Error())
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.NotErrorIs(t, err, service.ErrNotFound)

	wrapped := fmt.Errorf("handler: %w", service.Duplicate("dup"))
	assert.ErrorIs(t, wrapped, service.ErrDuplicate)
}
