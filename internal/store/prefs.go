package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Keys of the two persisted entries
const (
	FavoritesKey = "dietFavorites"
	WaterKey     = "waterIntake"
)

// GlassML is how much one logged glass adds to the water total
const GlassML = 250

// Favorites is the list of saved diet recommendations, stored as a JSON array
type Favorites struct {
	store Store
}

// NewFavorites wraps s
func NewFavorites(s Store) *Favorites {
	return &Favorites{store: s}
}

// List returns the saved recommendations in the order they were added
func (f *Favorites) List(ctx context.Context) ([]string, error) {
	raw, ok, err := f.store.Get(ctx, FavoritesKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return []string{}, nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("failed to decode favorites: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// Add saves item unless it is already present and returns the new list
func (f *Favorites) Add(ctx context.Context, item string) ([]string, error) {
	items, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	if slices.Contains(items, item) {
		return items, nil
	}
	items = append(items, item)
	return items, f.save(ctx, items)
}

// Remove drops every copy of item and returns the new list
func (f *Favorites) Remove(ctx context.Context, item string) ([]string, error) {
	items, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	items = slices.DeleteFunc(items, func(s string) bool { return s == item })
	return items, f.save(ctx, items)
}

func (f *Favorites) save(ctx context.Context, items []string) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode favorites: %w", err)
	}
	return f.store.Set(ctx, FavoritesKey, data)
}

// Water is the running water-intake total in millilitres, stored as number text
type Water struct {
	store Store
}

// NewWater wraps s
func NewWater(s Store) *Water {
	return &Water{store: s}
}

// Total returns the logged intake, 0 when nothing has been logged
func (w *Water) Total(ctx context.Context) (int, error) {
	raw, ok, err := w.store.Get(ctx, WaterKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	total, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("failed to decode water intake %q: %w", raw, err)
	}
	return total, nil
}

// AddGlass adds one glass and returns the new total
func (w *Water) AddGlass(ctx context.Context) (int, error) {
	total, err := w.Total(ctx)
	if err != nil {
		return 0, err
	}
	total += GlassML
	return total, w.store.Set(ctx, WaterKey, []byte(strconv.Itoa(total)))
}

// Reset sets the total back to zero
func (w *Water) Reset(ctx context.Context) error {
	return w.store.Set(ctx, WaterKey, []byte("0"))
}
