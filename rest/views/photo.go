// Package views holds the JSON shapes served to gallery clients. Image
// bytes are never inlined, clients fetch them through the image route.
package views

import (
	"fmt"
	"time"

	"bitbucket.org/kleinnic74/tourist/domain"
)

type Photo struct {
	ID        domain.PhotoID `json:"id"`
	RemoteID  string         `json:"remoteId"`
	Mime      string         `json:"mime,omitempty"`
	FetchedAt time.Time      `json:"fetchedAt"`
	Links     Links          `json:"links"`
}

type Links struct {
	Image string `json:"image"`
}

func PhotoFrom(p *domain.Photo) Photo {
	return Photo{
		ID:        p.ID,
		RemoteID:  p.RemoteID,
		Mime:      p.Mime,
		FetchedAt: p.FetchedAt,
		Links: Links{
			Image: fmt.Sprintf("/markers/%s/photos/%s/image", p.Marker, p.ID),
		},
	}
}
