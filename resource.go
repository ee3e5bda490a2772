package formz

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/zoobzio/capitan"
)

// ResourceKind tells the consumer how to drive a Resource.
type ResourceKind int

const (
	// ResourceStatic is a fixed option set embedded in the schema.
	ResourceStatic ResourceKind = iota

	// ResourcePreload is loaded once up front; queries filter locally.
	ResourcePreload

	// ResourcePartial is queried per search/page; the full set is never
	// held client-side.
	ResourcePartial
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceStatic:
		return "static"
	case ResourcePreload:
		return "preload"
	case ResourcePartial:
		return "partial"
	default:
		return "unknown"
	}
}

// ResourceItem is one selectable option.
type ResourceItem struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// ResourceQuery narrows a load. Zero values mean "everything": no search
// filter, first page, unbounded page size.
type ResourceQuery struct {
	Search   string
	Page     int
	PageSize int
}

// ResourceResult is one page of options. TotalCount is the size of the
// full filtered set, not the page.
type ResourceResult struct {
	Items      []ResourceItem
	TotalCount int
}

// Resource supplies the option set behind a selection field. The engine
// never calls Load itself; fields carry their Resource so the consumer
// drives loading at the right moment for its UI.
type Resource interface {
	// Kind tells the consumer the loading discipline.
	Kind() ResourceKind

	// Load returns options for the query.
	Load(ctx context.Context, q ResourceQuery) (ResourceResult, error)
}

// staticResource serves a fixed item set with local filtering and paging.
type staticResource struct {
	items []ResourceItem
}

// StaticResource builds a Resource over a fixed option set.
func StaticResource(items ...ResourceItem) Resource {
	return &staticResource{items: items}
}

func (r *staticResource) Kind() ResourceKind { return ResourceStatic }

func (r *staticResource) Load(_ context.Context, q ResourceQuery) (ResourceResult, error) {
	return pageItems(r.items, q), nil
}

// funcResource adapts a plain function into a Resource.
type funcResource struct {
	kind ResourceKind
	fn   func(ctx context.Context, q ResourceQuery) (ResourceResult, error)
}

// FuncResource builds a Resource from a load function. Use it to back a
// field with a server endpoint or any custom option source.
func FuncResource(kind ResourceKind, fn func(ctx context.Context, q ResourceQuery) (ResourceResult, error)) Resource {
	return &funcResource{kind: kind, fn: fn}
}

func (r *funcResource) Kind() ResourceKind { return r.kind }

func (r *funcResource) Load(ctx context.Context, q ResourceQuery) (ResourceResult, error) {
	return r.fn(ctx, q)
}

// FileResource serves options from a file on disk and follows rewrites,
// so a dropped-in options file refreshes selects without a restart. The
// document is either a bare item list or {"items": [...], "totalCount": n}.
type FileResource struct {
	path  string
	codec Codec

	mu    sync.RWMutex
	items []ResourceItem
}

// fileDocument is the on-disk shape of a resource file.
type fileDocument struct {
	Items      []ResourceItem `json:"items" yaml:"items"`
	TotalCount int            `json:"totalCount" yaml:"totalCount"`
}

// NewFileResource creates a FileResource reading path with codec. Call
// Start to load the file and begin following changes.
func NewFileResource(path string, codec Codec) *FileResource {
	return &FileResource{path: path, codec: codec}
}

// Start performs the initial load and begins watching the file for
// rewrites. The watch stops when ctx is canceled.
func (r *FileResource) Start(ctx context.Context) error {
	if err := r.reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch file %s: %w", r.path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Only reload on write or create events
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					capitan.Emit(ctx, ResourceLoadFailed,
						KeyPath.Field(r.path),
						KeyError.Field(err.Error()),
					)
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Continue watching despite errors
			}
		}
	}()
	return nil
}

func (r *FileResource) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read resource file %s: %w", r.path, err)
	}

	var doc fileDocument
	if err := r.codec.Unmarshal(data, &doc); err != nil {
		// Fall back to a bare item list.
		var items []ResourceItem
		if err2 := r.codec.Unmarshal(data, &items); err2 != nil {
			return fmt.Errorf("failed to decode resource file %s: %w", r.path, err)
		}
		doc.Items = items
	}

	r.mu.Lock()
	r.items = doc.Items
	r.mu.Unlock()
	return nil
}

// Kind returns ResourcePreload: the file is held in memory and queries
// filter locally.
func (r *FileResource) Kind() ResourceKind { return ResourcePreload }

// Load filters and pages the cached item set.
func (r *FileResource) Load(_ context.Context, q ResourceQuery) (ResourceResult, error) {
	r.mu.RLock()
	items := r.items
	r.mu.RUnlock()
	return pageItems(items, q), nil
}

// pageItems applies a query's search filter and paging to an item set.
func pageItems(items []ResourceItem, q ResourceQuery) ResourceResult {
	filtered := items
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		filtered = nil
		for _, item := range items {
			if strings.Contains(strings.ToLower(item.Label), needle) ||
				strings.Contains(strings.ToLower(item.ID), needle) {
				filtered = append(filtered, item)
			}
		}
	}
	total := len(filtered)
	if q.PageSize > 0 {
		start := q.Page * q.PageSize
		if start > total {
			start = total
		}
		end := start + q.PageSize
		if end > total {
			end = total
		}
		filtered = filtered[start:end]
	}
	return ResourceResult{Items: filtered, TotalCount: total}
}
