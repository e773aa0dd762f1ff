// Package cache defines the contract of the durable per-marker photo cache.
package cache

import (
	"context"
	"fmt"

	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/domain/gps"
)

// Store represents a persistent storage of markers and their cached photos.
//
// All mutating operations are atomic with respect to concurrent readers:
// a reader never observes a partially applied cascade. Photos of a marker
// are returned in insertion order, this is the only ordering consumers
// may rely on.
type Store interface {
	CreateMarker(ctx context.Context, pos gps.Coordinates) (*domain.Marker, error)
	GetMarker(ctx context.Context, id domain.MarkerID) (*domain.Marker, error)
	Markers(ctx context.Context) ([]*domain.Marker, error)

	PhotosFor(ctx context.Context, id domain.MarkerID) ([]*domain.Photo, error)
	InsertPhoto(ctx context.Context, id domain.MarkerID, remoteID, mime string, image []byte) (*domain.Photo, error)
	HasPhoto(ctx context.Context, id domain.MarkerID, remoteID string) (bool, error)
	GetPhoto(ctx context.Context, id domain.MarkerID, photo domain.PhotoID) (*domain.Photo, error)

	// DeletePhotos removes all photos of the given marker, the marker itself stays
	DeletePhotos(ctx context.Context, id domain.MarkerID) error
	// DeleteMarker removes the marker and all its photos as one atomic cascade
	DeleteMarker(ctx context.Context, id domain.MarkerID) error
}

// ClosableStore is a Store that can be closed
type ClosableStore interface {
	Store

	Close()
}

// ErrUnknownMarker is returned when an operation references a marker
// that does not exist in the store
type ErrUnknownMarker domain.MarkerID

func (err ErrUnknownMarker) Error() string {
	return fmt.Sprintf("no such marker '%s'", string(err))
}

func UnknownMarker(id domain.MarkerID) error {
	return ErrUnknownMarker(id)
}

// ErrPhotoExists is returned when inserting a photo whose remote id is
// already cached for the same marker
type ErrPhotoExists struct {
	Marker   domain.MarkerID
	RemoteID string
}

func (err ErrPhotoExists) Error() string {
	return fmt.Sprintf("photo '%s' already cached for marker '%s'", err.RemoteID, err.Marker)
}

// ErrPhotoNotFound is returned when looking up a photo id that is not
// cached for the given marker
type ErrPhotoNotFound domain.PhotoID

func (err ErrPhotoNotFound) Error() string {
	return fmt.Sprintf("no such photo '%s'", string(err))
}
