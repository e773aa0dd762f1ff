// Package fetcher coordinates the fetch cycle of a marker: one remote
// search for a page of photo references, a bounded concurrent fan-out of
// image downloads, and the insertion of each successful download into
// the photo cache.
package fetcher

import (
	"context"
	"errors"
	"sync"

	"bitbucket.org/kleinnic74/tourist/cache"
	"bitbucket.org/kleinnic74/tourist/domain"
	"bitbucket.org/kleinnic74/tourist/events"
	"bitbucket.org/kleinnic74/tourist/flickr"
	"bitbucket.org/kleinnic74/tourist/logging"

	"github.com/h2non/filetype"
	"go.uber.org/zap"
)

type Searcher interface {
	Search(ctx context.Context, lat, lon, radiusKm float64, page int) (*flickr.SearchPage, error)
}

type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// State of the fetch cycle of one marker
type State string

const (
	FetchingPage = State("fetching-page")
	Downloading  = State("downloading")
	Failed       = State("failed")
)

// ErrClosed is returned for fetch requests arriving after Close
var ErrClosed = errors.New("fetch coordinator is closed")

const (
	// DefaultRadiusKm is the search radius used by the original client
	DefaultRadiusKm = 7

	// DefaultPoolSize bounds the concurrent downloads across all markers
	DefaultPoolSize = 32
)

type session struct {
	page  int
	state State
}

type downloadRequest struct {
	ctx    context.Context
	marker domain.MarkerID
	ref    domain.PhotoRef

	wg *sync.WaitGroup
}

// Coordinator owns the in-flight fetch state of all markers. At most one
// fetch cycle runs per marker at any time: a second request for a marker
// that is already in flight joins it and returns immediately. Fetch
// state is never persisted, a restart simply forgets it.
type Coordinator struct {
	store  cache.Store
	search Searcher
	images Downloader
	bus    *events.Bus

	radiusKm float64

	mu         sync.Mutex
	closed     bool
	sessions   map[domain.MarkerID]*session
	totalPages map[domain.MarkerID]int

	cycles    sync.WaitGroup
	downloads chan downloadRequest
}

func NewCoordinator(store cache.Store, search Searcher, images Downloader, bus *events.Bus) *Coordinator {
	c := &Coordinator{
		store:      store,
		search:     search,
		images:     images,
		bus:        bus,
		radiusKm:   DefaultRadiusKm,
		sessions:   make(map[domain.MarkerID]*session),
		totalPages: make(map[domain.MarkerID]int),
		downloads:  make(chan downloadRequest),
	}
	for i := 0; i < DefaultPoolSize; i++ {
		go c.worker()
	}
	return c
}

// Close rejects new fetch cycles, waits for the in-flight ones to
// settle and then stops the download workers. Safe to call more than
// once and safe against cycles started from detached goroutines.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cycles.Wait()
	close(c.downloads)
}

// RequestPhotos runs one fetch cycle for the given marker and page. It
// returns once the page's downloads have all settled, failed downloads
// simply yield fewer photos. If a cycle is already in flight for the
// marker the call joins it and returns nil immediately.
func (c *Coordinator) RequestPhotos(ctx context.Context, id domain.MarkerID, page int) error {
	if page < 1 {
		page = 1
	}
	logger, ctx := logging.FromWithNameAndFields(ctx, "fetcher",
		zap.String("marker", string(id)), zap.Int("page", page))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, inFlight := c.sessions[id]; inFlight {
		c.mu.Unlock()
		logger.Debug("Fetch already in flight, joining")
		return nil
	}
	if bound, known := c.totalPages[id]; known && page > bound {
		c.mu.Unlock()
		logger.Debug("Page beyond last known bound, nothing to fetch", zap.Int("totalPages", bound))
		return nil
	}
	s := &session{page: page, state: FetchingPage}
	c.sessions[id] = s
	c.cycles.Add(1)
	c.mu.Unlock()
	defer c.release(id)

	return c.fetchPage(ctx, s, id, page)
}

// RefreshPhotos drops all cached photos of the marker and fetches page 1
// anew. The marker's session slot is held across the clear, so no reader
// of the fetch state observes an idle marker with an empty photo set.
func (c *Coordinator) RefreshPhotos(ctx context.Context, id domain.MarkerID) error {
	logger, ctx := logging.FromWithNameAndFields(ctx, "fetcher", zap.String("marker", string(id)))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, inFlight := c.sessions[id]; inFlight {
		c.mu.Unlock()
		logger.Debug("Fetch already in flight, joining")
		return nil
	}
	s := &session{page: 1, state: FetchingPage}
	c.sessions[id] = s
	delete(c.totalPages, id)
	c.cycles.Add(1)
	c.mu.Unlock()
	defer c.release(id)

	if err := c.store.DeletePhotos(ctx, id); err != nil {
		c.fail(s)
		return err
	}
	c.bus.Publish(events.CacheChange{Marker: id, Action: events.PhotosCleared})
	return c.fetchPage(ctx, s, id, 1)
}

// DeleteMarker removes the marker and its photo cache. A fetch cycle
// still in flight for the marker is left alone: its late downloads hit
// the store, find the marker gone and are dropped.
func (c *Coordinator) DeleteMarker(ctx context.Context, id domain.MarkerID) error {
	if err := c.store.DeleteMarker(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.totalPages, id)
	c.mu.Unlock()
	c.bus.Publish(events.CacheChange{Marker: id, Action: events.MarkerDeleted})
	return nil
}

func (c *Coordinator) fetchPage(ctx context.Context, s *session, id domain.MarkerID, page int) error {
	logger := logging.From(ctx)

	marker, err := c.store.GetMarker(ctx, id)
	if err != nil {
		c.fail(s)
		return err
	}

	searchesTotal.Inc()
	result, err := c.search.Search(ctx, marker.Location.Lat(), marker.Location.Long(), c.radiusKm, page)
	if err != nil {
		searchFailures.Inc()
		c.fail(s)
		logger.Warn("Photo search failed", zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.totalPages[id] = result.TotalPages
	s.state = Downloading
	c.mu.Unlock()

	var wg sync.WaitGroup
	launched := 0
	for _, ref := range result.Refs {
		exists, err := c.store.HasPhoto(ctx, id, ref.RemoteID)
		if err != nil {
			logger.Warn("Dedup check failed", zap.String("remoteId", ref.RemoteID), zap.Error(err))
			continue
		}
		if exists {
			dedupSkips.Inc()
			continue
		}
		wg.Add(1)
		c.downloads <- downloadRequest{ctx: ctx, marker: id, ref: ref, wg: &wg}
		launched++
	}
	wg.Wait()

	logger.Info("Fetch cycle settled",
		zap.Int("refs", len(result.Refs)),
		zap.Int("launched", launched),
		zap.Int("totalPages", result.TotalPages))
	c.bus.Publish(events.CacheChange{Marker: id, Action: events.PageCompleted})
	return nil
}

func (c *Coordinator) worker() {
	for req := range c.downloads {
		c.downloadOne(req.ctx, req.marker, req.ref)
		req.wg.Done()
	}
}

func (c *Coordinator) downloadOne(ctx context.Context, id domain.MarkerID, ref domain.PhotoRef) {
	logger := logging.From(ctx).With(zap.String("remoteId", ref.RemoteID))

	data, err := c.images.Download(ctx, ref.URL)
	if err != nil {
		downloadFailures.Inc()
		logger.Warn("Image download failed, dropping photo", zap.String("url", ref.URL), zap.Error(err))
		return
	}
	if _, err := c.store.InsertPhoto(ctx, id, ref.RemoteID, sniffMime(data), data); err != nil {
		switch err.(type) {
		case cache.ErrUnknownMarker:
			// Marker was deleted while the download was in flight
			logger.Debug("Marker gone, dropping downloaded photo")
		case cache.ErrPhotoExists:
			logger.Debug("Photo already cached, dropping download")
		default:
			logger.Error("Failed to store photo", zap.Error(err))
		}
		return
	}
	downloadsTotal.Inc()
	c.bus.Publish(events.CacheChange{Marker: id, Action: events.PhotoInserted})
}

func (c *Coordinator) fail(s *session) {
	c.mu.Lock()
	s.state = Failed
	c.mu.Unlock()
}

func (c *Coordinator) release(id domain.MarkerID) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
	c.cycles.Done()
}

// SessionInfo describes one in-flight fetch cycle
type SessionInfo struct {
	Marker     domain.MarkerID `json:"marker"`
	Page       int             `json:"page"`
	State      State           `json:"state"`
	TotalPages int             `json:"totalPages,omitempty"`
}

func (c *Coordinator) Sessions() []SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	sessions := make([]SessionInfo, 0, len(c.sessions))
	for id, s := range c.sessions {
		sessions = append(sessions, SessionInfo{
			Marker:     id,
			Page:       s.page,
			State:      s.state,
			TotalPages: c.totalPages[id],
		})
	}
	return sessions
}

func sniffMime(data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return "application/octet-stream"
}
