package boltstore

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"bitbucket.org/kleinnic74/tourist/cache"
	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/domain/gps"

	"github.com/stretchr/testify/assert"
	bolt "go.etcd.io/bbolt"
)

const dbfile = "tourist.db"

type TestFunc func(*testing.T, cache.ClosableStore)

func runTestWithStore(t *testing.T, f TestFunc) {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), dbfile), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewBoltStore(db)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	f(t, store)
}

func TestCreateMarkerThenGet(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, err := store.CreateMarker(ctx, gps.NewCoordinates(37.7749, -122.4194))
		if err != nil {
			t.Fatalf("Failed to create marker: %s", err)
		}
		found, err := store.GetMarker(ctx, marker.ID)
		if err != nil {
			t.Fatalf("Should have found a marker with id %s", marker.ID)
		}
		assert.Equal(t, marker.ID, found.ID)
		assert.Equal(t, marker.Location.Lat(), found.Location.Lat())
		assert.Equal(t, marker.Location.Long(), found.Location.Long())
	})
}

func TestGetUnknownMarker(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		_, err := store.GetMarker(context.Background(), domain.MarkerID("nope"))
		if err == nil {
			t.Fatalf("Expected an error for an unknown marker")
		}
		assert.IsType(t, cache.ErrUnknownMarker(""), err)
	})
}

func TestInsertThenPhotosForInOrder(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, err := store.CreateMarker(ctx, cache.RandomCoordinates())
		if err != nil {
			t.Fatal(err)
		}
		var inserted []string
		for i := 0; i < 5; i++ {
			remoteID := fmt.Sprintf("remote-%d", i)
			if _, err := store.InsertPhoto(ctx, marker.ID, remoteID, "image/jpeg", []byte{byte(i)}); err != nil {
				t.Fatalf("Failed to insert photo: %s", err)
			}
			inserted = append(inserted, remoteID)
		}
		photos, err := store.PhotosFor(ctx, marker.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(photos) != len(inserted) {
			t.Fatalf("Bad number of photos returned, expected %d, got %d", len(inserted), len(photos))
		}
		for i, p := range photos {
			assert.Equal(t, inserted[i], p.RemoteID, "photos must come back in insertion order")
			assert.Equal(t, marker.ID, p.Marker)
		}
	})
}

func TestInsertDuplicateRemoteID(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, _ := store.CreateMarker(ctx, cache.RandomCoordinates())
		if _, err := store.InsertPhoto(ctx, marker.ID, "twin", "image/jpeg", []byte{1}); err != nil {
			t.Fatal(err)
		}
		_, err := store.InsertPhoto(ctx, marker.ID, "twin", "image/jpeg", []byte{2})
		assert.IsType(t, cache.ErrPhotoExists{}, err)

		exists, err := store.HasPhoto(ctx, marker.ID, "twin")
		assert.NoError(t, err)
		assert.True(t, exists)

		photos, _ := store.PhotosFor(ctx, marker.ID)
		assert.Len(t, photos, 1)
	})
}

func TestInsertIntoUnknownMarker(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		_, err := store.InsertPhoto(context.Background(), domain.MarkerID("gone"), "r1", "", nil)
		assert.IsType(t, cache.ErrUnknownMarker(""), err)
	})
}

func TestDeleteMarkerCascades(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, _ := store.CreateMarker(ctx, cache.RandomCoordinates())
		for i := 0; i < 3; i++ {
			if _, err := store.InsertPhoto(ctx, marker.ID, fmt.Sprintf("r%d", i), "image/jpeg", []byte{byte(i)}); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.DeleteMarker(ctx, marker.ID); err != nil {
			t.Fatalf("Failed to delete marker: %s", err)
		}
		_, err := store.GetMarker(ctx, marker.ID)
		assert.IsType(t, cache.ErrUnknownMarker(""), err)
		_, err = store.PhotosFor(ctx, marker.ID)
		assert.IsType(t, cache.ErrUnknownMarker(""), err)

		markers, err := store.Markers(ctx)
		assert.NoError(t, err)
		assert.Empty(t, markers)

		// A late download for the deleted marker must be rejected
		_, err = store.InsertPhoto(ctx, marker.ID, "late", "", []byte{9})
		assert.IsType(t, cache.ErrUnknownMarker(""), err)
	})
}

func TestDeletePhotosKeepsMarker(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, _ := store.CreateMarker(ctx, cache.RandomCoordinates())
		for i := 0; i < 5; i++ {
			if _, err := store.InsertPhoto(ctx, marker.ID, fmt.Sprintf("r%d", i), "", []byte{byte(i)}); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.DeletePhotos(ctx, marker.ID); err != nil {
			t.Fatal(err)
		}
		photos, err := store.PhotosFor(ctx, marker.ID)
		assert.NoError(t, err)
		assert.Empty(t, photos)
		if _, err := store.GetMarker(ctx, marker.ID); err != nil {
			t.Fatalf("Marker should survive a photo clear: %s", err)
		}
		// The remote id index must be cleared as well
		exists, _ := store.HasPhoto(ctx, marker.ID, "r0")
		assert.False(t, exists)
		if _, err := store.InsertPhoto(ctx, marker.ID, "r0", "", []byte{0}); err != nil {
			t.Fatalf("Re-inserting after a clear should work: %s", err)
		}
	})
}

func TestGetPhoto(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, _ := store.CreateMarker(ctx, cache.RandomCoordinates())
		inserted, err := store.InsertPhoto(ctx, marker.ID, "r1", "image/png", []byte{0x89, 0x50})
		if err != nil {
			t.Fatal(err)
		}
		found, err := store.GetPhoto(ctx, marker.ID, inserted.ID)
		if err != nil {
			t.Fatalf("Should have found photo %s: %s", inserted.ID, err)
		}
		assert.Equal(t, inserted.RemoteID, found.RemoteID)
		assert.Equal(t, inserted.Image, found.Image)

		_, err = store.GetPhoto(ctx, marker.ID, domain.PhotoID("missing"))
		assert.IsType(t, cache.ErrPhotoNotFound(""), err)
	})
}

func TestConcurrentInsertsSameMarker(t *testing.T) {
	runTestWithStore(t, func(t *testing.T, store cache.ClosableStore) {
		ctx := context.Background()
		marker, _ := store.CreateMarker(ctx, cache.RandomCoordinates())
		const n = 20
		done := make(chan error, n)
		for i := 0; i < n; i++ {
			go func(i int) {
				_, err := store.InsertPhoto(ctx, marker.ID, fmt.Sprintf("c%d", i), "", []byte{byte(i)})
				done <- err
			}(i)
		}
		for i := 0; i < n; i++ {
			if err := <-done; err != nil {
				t.Errorf("Concurrent insert failed: %s", err)
			}
		}
		photos, err := store.PhotosFor(ctx, marker.ID)
		assert.NoError(t, err)
		assert.Len(t, photos, n)
		seen := make(map[string]bool)
		for _, p := range photos {
			if seen[p.RemoteID] {
				t.Errorf("Duplicate remote id %s", p.RemoteID)
			}
			seen[p.RemoteID] = true
		}
	})
}
