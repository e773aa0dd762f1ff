package flickr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const searchBody = `{
  "photos": {
    "page": 1,
    "pages": 4,
    "photo": [
      {"id": "50148", "url_m": "https://live.example.com/50148_m.jpg"},
      {"id": "50149", "url_m": "https://live.example.com/50149_m.jpg"},
      {"id": "50150"}
    ]
  },
  "stat": "ok"
}`

func TestSearch(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = make(map[string]string)
		for k, v := range r.URL.Query() {
			query[k] = v[0]
		}
		fmt.Fprint(w, searchBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key")
	page, err := c.Search(context.Background(), 37.7749, -122.4194, 7, 1)
	if err != nil {
		t.Fatalf("Search failed: %s", err)
	}
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 4, page.TotalPages)
	// The ref without an image URL must be skipped
	assert.Len(t, page.Refs, 2)
	assert.Equal(t, "50148", page.Refs[0].RemoteID)
	assert.Equal(t, "https://live.example.com/50148_m.jpg", page.Refs[0].URL)

	assert.Equal(t, "flickr.photos.search", query["method"])
	assert.Equal(t, "test-key", query["api_key"])
	assert.Equal(t, "json", query["format"])
	assert.Equal(t, "1", query["nojsoncallback"])
	assert.Equal(t, "1", query["page"])
	assert.Equal(t, "11", query["per_page"])
}

func TestSearchServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"stat": "fail", "code": 100, "message": "Invalid API Key"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad-key")
	_, err := c.Search(context.Background(), 48.2082, 16.3738, 7, 1)
	if err == nil {
		t.Fatal("Expected an error for a service failure")
	}
	remote, ok := err.(*RemoteError)
	if !ok {
		t.Fatalf("Expected a RemoteError, got %T", err)
	}
	assert.Contains(t, remote.Message, "Invalid API Key")
}

func TestSearchGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "jsonFlickrApi({")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key")
	_, err := c.Search(context.Background(), 0, 0, 7, 1)
	assert.IsType(t, &RemoteError{}, err)
}

func TestSearchRejectsBadArguments(t *testing.T) {
	c := NewClient("", "key")
	if _, err := c.Search(context.Background(), 0, 0, 0, 1); err == nil {
		t.Error("Expected an error for a non-positive radius")
	}
	if _, err := c.Search(context.Background(), 0, 0, 7, 0); err == nil {
		t.Error("Expected an error for page 0")
	}
}

func TestDownload(t *testing.T) {
	content := []byte{0xff, 0xd8, 0xff, 0xe0, 0x12, 0x34}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	}))
	defer srv.Close()

	c := NewClient("", "key")
	data, err := c.Download(context.Background(), srv.URL+"/50148_m.jpg")
	if err != nil {
		t.Fatalf("Download failed: %s", err)
	}
	assert.Equal(t, content, data)
}

func TestDownloadErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("", "key")
	if _, err := c.Download(context.Background(), srv.URL+"/gone.jpg"); err == nil {
		t.Fatal("Expected an error for a 404 download")
	}
}
