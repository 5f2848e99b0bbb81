//go:build e2e

// Package e2e contains end-to-end integration tests using a real DynamoDB table.
// Run with: go test -tags=e2e -v ./e2e/...
//
// The endpoint is DYNAMODB_LOCAL_URL when set (e.g. DynamoDB Local on
// http://localhost:8000), AWS otherwise.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/favorites/favorite"
	"github.com/jacentio/favorites/internal/ddbclient"
	"github.com/jacentio/favorites/service"
	"github.com/jacentio/favorites/store"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "favorites-e2e-test"

var (
	testID    string
	tableName string

	ddbClient *dynamodb.Client
	testStore *store.Store
	testSvc   *service.Service
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	tableName = fmt.Sprintf("%s-%s", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Table: %s\n", tableName)

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	ctx := context.Background()
	var err error
	ddbClient, err = ddbclient.New(ctx, ddbclient.Options{
		Region:   region,
		LocalURL: os.Getenv("DYNAMODB_LOCAL_URL"),
	})
	if err != nil {
		fmt.Printf("Failed to create DynamoDB client: %v\n", err)
		os.Exit(1)
	}

	cfg := store.Config{TableName: tableName, IndexName: "GSI1"}
	if err := store.EnsureTable(ctx, ddbClient, cfg, 2*time.Minute); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	testStore = store.New(ddbClient, cfg)
	testSvc = service.New(testStore, service.Config{}, nil)

	code := m.Run()

	if _, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(tableName)}); err != nil {
		fmt.Printf("Warning: failed to delete table %s: %v\n", tableName, err)
	}

	os.Exit(code)
}

// newUser returns a fresh user id so tests never share partitions.
func newUser() string {
	return "e2e|" + uuid.New().String()
}

func strPtr(s string) *string { return &s }

// --- Service Tests ---

func TestScenario_Dune(t *testing.T) {
	ctx := context.Background()
	user := newUser()

	fav, err := testSvc.Add(ctx, user, favorite.CreateInput{MovieID: "m1", Title: strPtr("Dune")})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if fav.ID == "" {
		t.Fatal("expected generated id")
	}
	if !fav.CreatedAt.Equal(fav.UpdatedAt) {
		t.Errorf("expected createdAt == updatedAt, got %v and %v", fav.CreatedAt, fav.UpdatedAt)
	}

	_, err = testSvc.Add(ctx, user, favorite.CreateInput{MovieID: "m1"})
	if !errors.Is(err, service.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	updated, err := testSvc.Update(ctx, user, fav.ID, favorite.Patch{favorite.FieldRating: 8})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Rating == nil || *updated.Rating != 8 {
		t.Errorf("expected rating 8, got %v", updated.Rating)
	}
	if !updated.UpdatedAt.After(fav.UpdatedAt) {
		t.Errorf("expected updatedAt to advance")
	}

	if err := testSvc.Remove(ctx, user, fav.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := testSvc.Get(ctx, user, fav.ID); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected not found after remove, got %v", err)
	}
	if err := testSvc.Remove(ctx, user, fav.ID); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("expected not found on second remove, got %v", err)
	}
}

func TestConcurrentAdds_ExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	user := newUser()

	const n = 10
	var (
		mu         sync.Mutex
		wins       int
		duplicates int
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := testSvc.Add(gctx, user, favorite.CreateInput{MovieID: "race"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, service.ErrDuplicate):
				duplicates++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if duplicates != n-1 {
		t.Errorf("expected %d duplicates, got %d", n-1, duplicates)
	}
}

// --- Store Tests ---

func TestCreate_MarkerWrittenAtomically(t *testing.T) {
	ctx := context.Background()
	user := newUser()
	now := time.Now().UTC()

	if _, err := testStore.Create(ctx, user, "f1", now, favorite.CreateInput{MovieID: "m1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Same movie under a new id is rejected by the marker.
	_, err := testStore.Create(ctx, user, "f2", now, favorite.CreateInput{MovieID: "m1"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, found, err := testStore.GetByID(ctx, user, "f2"); err != nil || found {
		t.Errorf("rejected entity must not exist: found=%v err=%v", found, err)
	}

	// Same id for another movie is rejected by the entity condition.
	_, err = testStore.Create(ctx, user, "f1", now, favorite.CreateInput{MovieID: "m2"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdate_NeverUpserts(t *testing.T) {
	ctx := context.Background()
	user := newUser()

	_, found, err := testStore.Update(ctx, user, "missing", time.Now(), favorite.Patch{favorite.FieldNotes: "x"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if found {
		t.Fatal("expected not found")
	}
	if _, found, _ := testStore.GetByID(ctx, user, "missing"); found {
		t.Error("update must not create a record")
	}
}

func TestUpdate_ExplicitNull(t *testing.T) {
	ctx := context.Background()
	user := newUser()

	if _, err := testStore.Create(ctx, user, "f1", time.Now(), favorite.CreateInput{MovieID: "m1", Notes: strPtr("meh")}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	updated, found, err := testStore.Update(ctx, user, "f1", time.Now(), favorite.Patch{favorite.FieldNotes: nil})
	if err != nil || !found {
		t.Fatalf("Update failed: found=%v err=%v", found, err)
	}
	if updated.Notes != nil {
		t.Errorf("expected notes cleared, got %q", *updated.Notes)
	}
}

func TestListByUser_Pagination(t *testing.T) {
	ctx := context.Background()
	user := newUser()

	const total = 7
	var ids []string
	for i := 0; i < total; i++ {
		fav, err := testSvc.Add(ctx, user, favorite.CreateInput{MovieID: fmt.Sprintf("m%d", i)})
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids = append(ids, fav.ID)
	}

	for _, order := range []favorite.Order{favorite.OrderAsc, favorite.OrderDesc} {
		var seen []string
		cursor := ""
		for {
			page, err := testStore.ListByUser(ctx, user, favorite.ListOptions{Limit: 3, Cursor: cursor, Order: order})
			if err != nil {
				t.Fatalf("ListByUser failed: %v", err)
			}
			for _, f := range page.Items {
				seen = append(seen, f.ID)
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}

		if len(seen) != total {
			t.Fatalf("%s: expected %d items, got %d", order, total, len(seen))
		}
		for i := range seen {
			want := ids[i]
			if order == favorite.OrderDesc {
				want = ids[total-1-i]
			}
			if seen[i] != want {
				t.Errorf("%s: position %d: expected %s, got %s", order, i, want, seen[i])
			}
		}
	}

	count, err := testStore.CountByUser(ctx, user)
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if count != total {
		t.Errorf("expected count %d, got %d", total, count)
	}
}

func TestDeleteOrphanMarker(t *testing.T) {
	ctx := context.Background()
	user := newUser()

	if _, err := testStore.Create(ctx, user, "f1", time.Now(), favorite.CreateInput{MovieID: "m1"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// A stale favorite id leaves the marker alone.
	if err := testStore.DeleteOrphanMarker(ctx, user, "m1", "f0"); err != nil {
		t.Fatalf("DeleteOrphanMarker failed: %v", err)
	}
	if _, err := testStore.Create(ctx, user, "f2", time.Now(), favorite.CreateInput{MovieID: "m1"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected marker to survive, got %v", err)
	}

	if err := testStore.DeleteOrphanMarker(ctx, user, "m1", "f1"); err != nil {
		t.Fatalf("DeleteOrphanMarker failed: %v", err)
	}
	// The entity f1 still exists, so only a new id can be written.
	if _, err := testStore.Create(ctx, user, "f2", time.Now(), favorite.CreateInput{MovieID: "m1"}); err != nil {
		t.Errorf("expected create to succeed once the marker is gone, got %v", err)
	}
}
