// Package domain holds the core data model: location markers placed by a
// user and the photos cached for each of them.
package domain

import (
	"time"

	"bitbucket.org/kleinnic74/tourist/domain/gps"
)

// MarkerID is the unique identifier of a Marker, stable
// across process runs
type MarkerID string

// PhotoID is the unique identifier of a cached Photo
type PhotoID string

// Marker is a user-placed location with an associated photo cache.
// Its coordinates never change after creation.
type Marker struct {
	ID       MarkerID        `json:"id"`
	Location gps.Coordinates `json:"gps"`
	Created  time.Time       `json:"created"`
}

// Photo is a single cached image belonging to exactly one marker. A Photo
// is immutable once inserted, it can only be deleted and re-inserted.
type Photo struct {
	ID        PhotoID   `json:"id"`
	Marker    MarkerID  `json:"marker"`
	RemoteID  string    `json:"remoteId"`
	Mime      string    `json:"mime,omitempty"`
	Image     []byte    `json:"image,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// PhotoRef is a pointer to a remote image as returned by the search
// service. It is never persisted: a ref either becomes a Photo once its
// image has been downloaded or is dropped.
type PhotoRef struct {
	RemoteID string
	URL      string
}
