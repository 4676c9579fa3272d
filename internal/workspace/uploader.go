package workspace

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/barrister-ai/barrister/internal/api"
)

// DocumentUploader is the slice of the API client the uploader needs.
type DocumentUploader interface {
	UploadDocument(ctx context.Context, req api.UploadDocumentRequest) (*api.UploadDocumentResponse, error)
}

// Result is the outcome for one file in a batch upload.
type Result struct {
	Path  string
	ID    string
	Title string
	Err   error
}

// Uploader extracts and uploads local files concurrently.
type Uploader struct {
	client DocumentUploader
	limit  int
}

// NewUploader creates an Uploader. If limit is <= 0, it defaults to 4.
func NewUploader(client DocumentUploader, limit int) *Uploader {
	if limit <= 0 {
		limit = 4
	}
	return &Uploader{client: client, limit: limit}
}

// UploadFile extracts one file and uploads it.
func (u *Uploader) UploadFile(ctx context.Context, path string) (Result, error) {
	doc, err := Extract(path)
	if err != nil {
		return Result{Path: path, Err: err}, err
	}
	resp, err := u.client.UploadDocument(ctx, api.UploadDocumentRequest{
		Title:   doc.Title,
		Content: doc.Content,
	})
	if err != nil {
		return Result{Path: path, Err: err}, err
	}
	return Result{Path: path, ID: resp.ID, Title: resp.Title}, nil
}

// UploadAll extracts and uploads the given files concurrently, bounded so a
// large batch does not overwhelm the backend. Per-file failures are recorded
// in the results rather than aborting the batch; the returned error is
// non-nil only when the context is cancelled.
func (u *Uploader) UploadAll(ctx context.Context, paths []string) ([]Result, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	results := make([]Result, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(u.limit)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				results[i] = Result{Path: path, Err: err}
				return err
			}
			res, err := u.UploadFile(gCtx, path)
			results[i] = res
			if err != nil {
				// Recorded per file; only cancellation stops the batch.
				if gCtx.Err() != nil {
					return fmt.Errorf("uploading %s: %w", path, err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
