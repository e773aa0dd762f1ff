// Package boltstore is an implementation of the photo cache store
// using BoltDB for storing data persistently
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"bitbucket.org/kleinnic74/tourist/cache"
	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/domain/gps"
	"bitbucket.org/kleinnic74/tourist/logging"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	markersBucket   = []byte("markers")
	photosBucket    = []byte("photos")
	remoteIDsBucket = []byte("remoteids")
)

// BoltStore uses BoltDB as the storage implementation for markers and
// their cached photos. Photos of a marker live in a nested bucket keyed
// by a monotonic sequence number which preserves insertion order and
// makes the cascade delete a single bucket drop within one transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltStore on the given BoltDB instance
func NewBoltStore(db *bolt.DB) (cache.ClosableStore, error) {
	for _, b := range [][]byte{markersBucket, photosBucket, remoteIDsBucket} {
		if err := createBucket(db, b); err != nil {
			return nil, err
		}
	}
	return &BoltStore{db: db}, nil
}

func createBucket(db *bolt.DB, name []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	})
}

// Close closes this store
func (store *BoltStore) Close() {
	store.db.Close()
}

func (store *BoltStore) CreateMarker(ctx context.Context, pos gps.Coordinates) (*domain.Marker, error) {
	marker := &domain.Marker{
		ID:       domain.MarkerID(uuid.New().String()),
		Location: pos,
		Created:  time.Now(),
	}
	encoded, err := json.Marshal(marker)
	if err != nil {
		return nil, err
	}
	err = store.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(markersBucket).Put([]byte(marker.ID), encoded); err != nil {
			return err
		}
		if _, err := tx.Bucket(photosBucket).CreateBucketIfNotExists([]byte(marker.ID)); err != nil {
			return err
		}
		_, err := tx.Bucket(remoteIDsBucket).CreateBucketIfNotExists([]byte(marker.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return marker, nil
}

func (store *BoltStore) GetMarker(ctx context.Context, id domain.MarkerID) (*domain.Marker, error) {
	var found *domain.Marker
	return found, store.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(markersBucket).Get([]byte(id))
		if data == nil {
			return cache.UnknownMarker(id)
		}
		var marker domain.Marker
		if err := json.Unmarshal(data, &marker); err != nil {
			logging.From(ctx).Error("Could not unmarshal marker", zap.Error(err))
			return err
		}
		found = &marker
		return nil
	})
}

func (store *BoltStore) Markers(ctx context.Context) ([]*domain.Marker, error) {
	var found = make([]*domain.Marker, 0)
	err := store.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(markersBucket).ForEach(func(k, v []byte) error {
			var marker domain.Marker
			if err := json.Unmarshal(v, &marker); err != nil {
				logging.From(ctx).Error("Could not unmarshal marker", zap.Error(err))
				return err
			}
			found = append(found, &marker)
			return nil
		})
	})
	return found, err
}

func (store *BoltStore) PhotosFor(ctx context.Context, id domain.MarkerID) ([]*domain.Photo, error) {
	var found = make([]*domain.Photo, 0)
	err := store.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(markersBucket).Get([]byte(id)) == nil {
			return cache.UnknownMarker(id)
		}
		b := tx.Bucket(photosBucket).Bucket([]byte(id))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var photo domain.Photo
			if err := json.Unmarshal(v, &photo); err != nil {
				logging.From(ctx).Error("Could not unmarshal photo", zap.Error(err))
				return err
			}
			found = append(found, &photo)
			return nil
		})
	})
	return found, err
}

func (store *BoltStore) InsertPhoto(ctx context.Context, id domain.MarkerID, remoteID, mime string, image []byte) (*domain.Photo, error) {
	photo := &domain.Photo{
		ID:        domain.PhotoID(uuid.New().String()),
		Marker:    id,
		RemoteID:  remoteID,
		Mime:      mime,
		Image:     image,
		FetchedAt: time.Now(),
	}
	encoded, err := json.Marshal(photo)
	if err != nil {
		return nil, err
	}
	err = store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(markersBucket).Get([]byte(id)) == nil {
			return cache.UnknownMarker(id)
		}
		ids, err := tx.Bucket(remoteIDsBucket).CreateBucketIfNotExists([]byte(id))
		if err != nil {
			return err
		}
		if existing := ids.Get([]byte(remoteID)); existing != nil {
			return cache.ErrPhotoExists{Marker: id, RemoteID: remoteID}
		}
		photos, err := tx.Bucket(photosBucket).CreateBucketIfNotExists([]byte(id))
		if err != nil {
			return err
		}
		seq, err := photos.NextSequence()
		if err != nil {
			return err
		}
		key := sequenceKey(seq)
		if err := photos.Put(key, encoded); err != nil {
			return err
		}
		return ids.Put([]byte(remoteID), key)
	})
	if err != nil {
		return nil, err
	}
	return photo, nil
}

func (store *BoltStore) HasPhoto(ctx context.Context, id domain.MarkerID, remoteID string) (exists bool, err error) {
	err = store.db.View(func(tx *bolt.Tx) error {
		ids := tx.Bucket(remoteIDsBucket).Bucket([]byte(id))
		exists = ids != nil && ids.Get([]byte(remoteID)) != nil
		return nil
	})
	return
}

func (store *BoltStore) GetPhoto(ctx context.Context, id domain.MarkerID, photoID domain.PhotoID) (*domain.Photo, error) {
	var found *domain.Photo
	return found, store.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(markersBucket).Get([]byte(id)) == nil {
			return cache.UnknownMarker(id)
		}
		b := tx.Bucket(photosBucket).Bucket([]byte(id))
		if b == nil {
			return cache.ErrPhotoNotFound(photoID)
		}
		// Seq keys are small, a scan is fine for per-page galleries
		err := b.ForEach(func(k, v []byte) error {
			var photo domain.Photo
			if err := json.Unmarshal(v, &photo); err != nil {
				return err
			}
			if photo.ID == photoID {
				found = &photo
			}
			return nil
		})
		if err != nil {
			return err
		}
		if found == nil {
			return cache.ErrPhotoNotFound(photoID)
		}
		return nil
	})
}

func (store *BoltStore) DeletePhotos(ctx context.Context, id domain.MarkerID) error {
	return store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(markersBucket).Get([]byte(id)) == nil {
			return cache.UnknownMarker(id)
		}
		if err := deleteIfExists(tx.Bucket(photosBucket), []byte(id)); err != nil {
			return err
		}
		if err := deleteIfExists(tx.Bucket(remoteIDsBucket), []byte(id)); err != nil {
			return err
		}
		if _, err := tx.Bucket(photosBucket).CreateBucket([]byte(id)); err != nil {
			return err
		}
		_, err := tx.Bucket(remoteIDsBucket).CreateBucket([]byte(id))
		return err
	})
}

func (store *BoltStore) DeleteMarker(ctx context.Context, id domain.MarkerID) error {
	return store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(markersBucket).Get([]byte(id)) == nil {
			return cache.UnknownMarker(id)
		}
		if err := tx.Bucket(markersBucket).Delete([]byte(id)); err != nil {
			return err
		}
		if err := deleteIfExists(tx.Bucket(photosBucket), []byte(id)); err != nil {
			return err
		}
		return deleteIfExists(tx.Bucket(remoteIDsBucket), []byte(id))
	})
}

func deleteIfExists(parent *bolt.Bucket, key []byte) error {
	if parent.Bucket(key) == nil {
		return nil
	}
	return parent.DeleteBucket(key)
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
