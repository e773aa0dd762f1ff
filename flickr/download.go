package flickr

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
)

// Download retrieves the raw bytes of the image at the given URL. There
// is no retry here, a failed download is the caller's business.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned status %d for %s", res.StatusCode, url)
	}
	return ioutil.ReadAll(res.Body)
}
