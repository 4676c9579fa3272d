package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/barrister-ai/barrister/internal/api"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractPlainText(t *testing.T) {
	path := writeFile(t, "notes.txt", "plain text body")

	doc, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Title != "notes" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Content != "plain text body" {
		t.Errorf("Content = %q", doc.Content)
	}
}

func TestExtractHTML(t *testing.T) {
	src := `<html><head><title>Retainer Agreement</title>
<script>var hidden = "nope";</script>
<style>body { color: red }</style></head>
<body><h1>Terms</h1><p>The client agrees to pay.</p></body></html>`
	path := writeFile(t, "agreement.html", src)

	doc, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if doc.Title != "Retainer Agreement" {
		t.Errorf("Title = %q, want html title", doc.Title)
	}
	for _, want := range []string{"Terms", "The client agrees to pay."} {
		if !strings.Contains(doc.Content, want) {
			t.Errorf("content missing %q:\n%s", want, doc.Content)
		}
	}
	for _, reject := range []string{"hidden", "color: red"} {
		if strings.Contains(doc.Content, reject) {
			t.Errorf("script/style text leaked into content: %q", reject)
		}
	}
}

func TestExtractMissingFile(t *testing.T) {
	if _, err := Extract(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeDocClient struct {
	mu      sync.Mutex
	uploads []api.UploadDocumentRequest
	failOn  string
}

func (f *fakeDocClient) UploadDocument(_ context.Context, req api.UploadDocumentRequest) (*api.UploadDocumentResponse, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	f.mu.Unlock()
	if req.Title == f.failOn {
		return nil, &api.Error{Status: 500, Code: api.CodeInternalError, Message: "boom"}
	}
	return &api.UploadDocumentResponse{ID: "doc-" + req.Title, Title: req.Title}, nil
}

func TestUploadAll(t *testing.T) {
	client := &fakeDocClient{}
	up := NewUploader(client, 2)

	paths := []string{
		writeFile(t, "one.txt", "first"),
		writeFile(t, "two.txt", "second"),
		writeFile(t, "three.txt", "third"),
	}

	results, err := up.UploadAll(context.Background(), paths)
	if err != nil {
		t.Fatalf("UploadAll: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	// Results line up with the input order regardless of scheduling.
	for i, want := range []string{"one", "two", "three"} {
		if results[i].Err != nil {
			t.Errorf("results[%d] failed: %v", i, results[i].Err)
		}
		if results[i].ID != "doc-"+want {
			t.Errorf("results[%d].ID = %q", i, results[i].ID)
		}
	}
}

func TestUploadAllRecordsPerFileFailures(t *testing.T) {
	client := &fakeDocClient{failOn: "bad"}
	up := NewUploader(client, 2)

	paths := []string{
		writeFile(t, "good.txt", "fine"),
		writeFile(t, "bad.txt", "breaks"),
	}

	results, err := up.UploadAll(context.Background(), paths)
	if err != nil {
		t.Fatalf("UploadAll: %v (per-file failures should not abort the batch)", err)
	}
	if results[0].Err != nil {
		t.Errorf("good file failed: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("failing file reported no error")
	}
	var apiErr *api.Error
	if !errors.As(results[1].Err, &apiErr) {
		t.Errorf("failure type = %T", results[1].Err)
	}
}

func TestUploadAllEmpty(t *testing.T) {
	up := NewUploader(&fakeDocClient{}, 0)
	results, err := up.UploadAll(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("UploadAll(nil) = %v, %v", results, err)
	}
}

func TestUploadFileUnreadable(t *testing.T) {
	up := NewUploader(&fakeDocClient{}, 1)
	res, err := up.UploadFile(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Err == nil {
		t.Error("result does not carry the error")
	}
}
