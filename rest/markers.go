package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"bitbucket.org/kleinnic74/tourist/cache"
	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/domain/gps"
	"bitbucket.org/kleinnic74/tourist/fetcher"
	"bitbucket.org/kleinnic74/tourist/flickr"
	"bitbucket.org/kleinnic74/tourist/logging"
	"bitbucket.org/kleinnic74/tourist/rest/views"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// App is the REST API over the marker photo cache
type App struct {
	store cache.Store
	coord *fetcher.Coordinator
}

func NewApp(store cache.Store, coord *fetcher.Coordinator) *App {
	return &App{store: store, coord: coord}
}

func (a *App) InitRoutes(r *mux.Router) {
	r.HandleFunc("/markers", a.createMarker).Methods("POST")
	r.HandleFunc("/markers", a.getMarkers).Methods("GET")
	r.HandleFunc("/markers/{id}", a.getMarker).Methods("GET")
	r.HandleFunc("/markers/{id}", a.deleteMarker).Methods("DELETE")
	r.HandleFunc("/markers/{id}/photos", a.getPhotos).Methods("GET")
	r.HandleFunc("/markers/{id}/photos", a.fetchPhotos).Methods("POST")
	r.HandleFunc("/markers/{id}/photos", a.refreshPhotos).Methods("PUT")
	r.HandleFunc("/markers/{id}/photos/{photo}/image", a.getPhotoImage).Methods("GET")
}

type newMarker struct {
	Lat  float64 `json:"lat"`
	Long float64 `json:"long"`
}

func (a *App) createMarker(w http.ResponseWriter, r *http.Request) {
	var body newMarker
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, err)
		return
	}
	pos := gps.NewCoordinates(body.Lat, body.Long)
	if !pos.IsValid() {
		respondWithError(w, http.StatusBadRequest, fmt.Errorf("invalid coordinates %s", pos))
		return
	}
	marker, err := a.store.CreateMarker(r.Context(), pos)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	// Kick off the first page fetch, the gallery fills in behind the event stream
	go func() {
		ctx := logging.Context(context.Background(), logging.From(r.Context()))
		if err := a.coord.RequestPhotos(ctx, marker.ID, 1); err != nil {
			logging.From(ctx).Warn("Initial photo fetch failed",
				zap.String("marker", string(marker.ID)), zap.Error(err))
		}
	}()
	respondWithJSON(w, http.StatusCreated, marker)
}

func (a *App) getMarkers(w http.ResponseWriter, r *http.Request) {
	markers, err := a.store.Markers(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err)
		return
	}
	respondWithJSON(w, http.StatusOK, markers)
}

func (a *App) getMarker(w http.ResponseWriter, r *http.Request) {
	id := domain.MarkerID(mux.Vars(r)["id"])
	marker, err := a.store.GetMarker(r.Context(), id)
	if err != nil {
		respondToStoreError(w, id, err)
		return
	}
	respondWithJSON(w, http.StatusOK, marker)
}

func (a *App) deleteMarker(w http.ResponseWriter, r *http.Request) {
	id := domain.MarkerID(mux.Vars(r)["id"])
	if err := a.coord.DeleteMarker(r.Context(), id); err != nil {
		respondToStoreError(w, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) getPhotos(w http.ResponseWriter, r *http.Request) {
	id := domain.MarkerID(mux.Vars(r)["id"])
	photos, err := a.store.PhotosFor(r.Context(), id)
	if err != nil {
		respondToStoreError(w, id, err)
		return
	}
	photoViews := make([]views.Photo, len(photos))
	for i, p := range photos {
		photoViews[i] = views.PhotoFrom(p)
	}
	respondWithJSON(w, http.StatusOK, photoViews)
}

func (a *App) fetchPhotos(w http.ResponseWriter, r *http.Request) {
	id := domain.MarkerID(mux.Vars(r)["id"])
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		if page, err = strconv.Atoi(p); err != nil || page < 1 {
			respondWithError(w, http.StatusBadRequest, fmt.Errorf("invalid page '%s'", p))
			return
		}
	}
	if err := a.coord.RequestPhotos(r.Context(), id, page); err != nil {
		respondToFetchError(w, id, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (a *App) refreshPhotos(w http.ResponseWriter, r *http.Request) {
	id := domain.MarkerID(mux.Vars(r)["id"])
	if err := a.coord.RefreshPhotos(r.Context(), id); err != nil {
		respondToFetchError(w, id, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (a *App) getPhotoImage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := domain.MarkerID(vars["id"])
	photoID := domain.PhotoID(vars["photo"])
	photo, err := a.store.GetPhoto(r.Context(), id, photoID)
	if err != nil {
		switch err.(type) {
		case cache.ErrUnknownMarker, cache.ErrPhotoNotFound:
			respondWithError(w, http.StatusNotFound, err)
		default:
			logging.From(r.Context()).Error("Internal error", zap.Error(err))
			respondWithError(w, http.StatusInternalServerError, err)
		}
		return
	}
	mime := photo.Mime
	if mime == "" {
		mime = "application/octet-stream"
	}
	respondWithBinary(w, mime, int64(len(photo.Image)), bytes.NewReader(photo.Image))
}

func respondToStoreError(w http.ResponseWriter, id domain.MarkerID, err error) {
	switch err.(type) {
	case cache.ErrUnknownMarker:
		respondWithError(w, http.StatusNotFound, fmt.Errorf("no marker with id %s", id))
	default:
		respondWithError(w, http.StatusInternalServerError, err)
	}
}

func respondToFetchError(w http.ResponseWriter, id domain.MarkerID, err error) {
	switch err.(type) {
	case cache.ErrUnknownMarker:
		respondWithError(w, http.StatusNotFound, fmt.Errorf("no marker with id %s", id))
	case *flickr.RemoteError:
		respondWithError(w, http.StatusBadGateway, err)
	default:
		respondWithError(w, http.StatusInternalServerError, err)
	}
}
