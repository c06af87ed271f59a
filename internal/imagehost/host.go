// Package imagehost uploads listing photos to a public image host.
package imagehost

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Image is an uploaded photo.
type Image struct {
	// URL is the public URL passed to the marketplace.
	URL string
	// ID is the handle used to delete the image.
	ID string
}

// Host uploads and deletes images.
type Host interface {
	Upload(ctx context.Context, data []byte, filename string) (*Image, error)
	Delete(ctx context.Context, id string) error
}

// handleError turns failing responses (>399 status code) into errors.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d): %s", res.Request.Method, res.Request.URL, res.StatusCode(), res.String())
	}
	return res, nil
}
