// Package menu performs menu-item reads and mutations against the record
// store, including image upload.
package menu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/dinehall/datalayer/internal/api"
	"github.com/dinehall/datalayer/internal/syncbus"
	"github.com/dinehall/datalayer/pkg/logger"
)

// Item is a menu item record.
type Item struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price" validate:"gte=0"`
	Category    string  `json:"category,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Available   bool    `json:"available"`
}

var validate = validator.New()

// Service performs menu operations.
type Service struct {
	client *api.Client
	bus    *syncbus.Bus
	log    *logger.Logger
}

// NewService creates a menu service on top of the orchestrating client.
func NewService(client *api.Client, bus *syncbus.Bus, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("menu")
	}
	return &Service{client: client, bus: bus, log: log}
}

// List fetches all menu items. This read opts into the retry policy:
// transient failures against a cold server process are common and the
// menu is the first thing every view needs.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	raw, err := s.client.Get(ctx, "/menu-items", api.Options{Retry: true})
	if err != nil {
		return nil, err
	}

	normalized, err := api.NormalizeList(raw)
	if err != nil {
		return nil, fmt.Errorf("list menu items: %w", err)
	}

	var items []Item
	if err := unmarshal(normalized, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Create adds a menu item.
func (s *Service) Create(ctx context.Context, item Item) (*Item, error) {
	if err := validate.Struct(item); err != nil {
		return nil, fmt.Errorf("invalid menu item: %w", err)
	}

	raw, err := s.client.Post(ctx, "/menu-items", item)
	if err != nil {
		return nil, err
	}

	var created Item
	if err := unmarshal(raw, &created); err != nil {
		return nil, err
	}

	s.log.WithField("item_id", created.ID).WithField("name", created.Name).Info("menu item created")
	s.announce(&created)
	return &created, nil
}

// Update replaces a menu item.
func (s *Service) Update(ctx context.Context, item Item) (*Item, error) {
	if item.ID == "" {
		return nil, fmt.Errorf("menu item id is required")
	}
	if err := validate.Struct(item); err != nil {
		return nil, fmt.Errorf("invalid menu item: %w", err)
	}

	raw, err := s.client.Put(ctx, "/menu-items/"+item.ID, item)
	if err != nil {
		return nil, err
	}

	var updated Item
	if err := unmarshal(raw, &updated); err != nil {
		return nil, err
	}

	s.announce(&updated)
	return &updated, nil
}

// Delete removes a menu item.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.client.Delete(ctx, "/menu-items/"+id); err != nil {
		return err
	}
	s.log.WithField("item_id", id).Info("menu item deleted")
	s.announce(nil)
	return nil
}

// UploadImage posts an image as a multipart body and returns the URL the
// storage backend assigned to it.
func (s *Service) UploadImage(ctx context.Context, filename string, file io.Reader) (string, error) {
	raw, err := s.client.Upload(ctx, "/upload", "image", filename, file)
	if err != nil {
		return "", err
	}

	res := gjson.ParseBytes(raw)
	for _, field := range []string{"imageUrl", "url", "image_url"} {
		if v := res.Get(field); v.Exists() {
			return v.String(), nil
		}
	}
	return "", fmt.Errorf("upload response carries no image URL")
}

func unmarshal(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode menu response: %w", err)
	}
	return nil
}

func (s *Service) announce(item *Item) {
	if s.bus == nil {
		return
	}
	update := syncbus.EntityUpdate{Kind: "menu items"}
	if item != nil {
		update.Payload = item
	}
	s.bus.Publish(syncbus.TopicEntityUpdated, update)
}
