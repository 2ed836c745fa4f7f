package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned for unknown notification ids.
var ErrNotFound = errors.New("notification not found")

// Inbox keeps displayed notifications in memory and records navigations.
// It implements both Displayer and Navigator for headless hosts.
type Inbox struct {
	mu         sync.RWMutex
	shown      map[string]Notification
	navigation []string
	limit      int
}

// NewInbox creates an inbox holding at most limit notifications (100 when <= 0).
// The oldest notification is evicted when full.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 100
	}
	return &Inbox{
		shown: make(map[string]Notification),
		limit: limit,
	}
}

// Show implements Displayer.
func (in *Inbox) Show(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if _, exists := in.shown[n.ID]; !exists && len(in.shown) >= in.limit {
		in.evictOldest()
	}
	in.shown[n.ID] = n
	return nil
}

func (in *Inbox) evictOldest() {
	var oldest string
	for id, n := range in.shown {
		if oldest == "" || n.CreatedAt.Before(in.shown[oldest].CreatedAt) {
			oldest = id
		}
	}
	delete(in.shown, oldest)
}

// Close implements Displayer. Closing an unknown id is not an error.
func (in *Inbox) Close(_ context.Context, id string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.shown, id)
	return nil
}

// OpenWindow implements Navigator.
func (in *Inbox) OpenWindow(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	in.navigation = append(in.navigation, url)
	return nil
}

// Get returns a displayed notification.
func (in *Inbox) Get(id string) (Notification, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()

	n, ok := in.shown[id]
	if !ok {
		return Notification{}, ErrNotFound
	}
	return n, nil
}

// List returns displayed notifications, newest first.
func (in *Inbox) List() []Notification {
	in.mu.RLock()
	defer in.mu.RUnlock()

	list := make([]Notification, 0, len(in.shown))
	for _, n := range in.shown {
		list = append(list, n)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// Navigations returns every URL opened so far, in order.
func (in *Inbox) Navigations() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]string(nil), in.navigation...)
}
