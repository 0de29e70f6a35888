package cdpdom

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-rod/rod/lib/proto"
)

// LocalStorage is a verified.Backend over the page's localStorage, read and
// written through the DOMStorage domain. Entries are scoped to the origin
// of the page's current location, like the page's own scripts see them.
type LocalStorage struct {
	page *Page
}

// NewLocalStorage binds a backend to the page.
func NewLocalStorage(p *Page) *LocalStorage {
	return &LocalStorage{page: p}
}

func (s *LocalStorage) storageID(ctx context.Context) (*proto.DOMStorageStorageID, error) {
	loc, err := s.page.Location(ctx)
	if err != nil {
		return nil, err
	}
	origin, err := originOf(loc)
	if err != nil {
		return nil, err
	}
	return &proto.DOMStorageStorageID{SecurityOrigin: origin, IsLocalStorage: true}, nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := s.storageID(ctx)
	if err != nil {
		return "", false, err
	}
	res, err := proto.DOMStorageGetDOMStorageItems{StorageID: id}.Call(s.page.page.Context(ctx))
	if err != nil {
		return "", false, fmt.Errorf("cdpdom: read localStorage: %w", err)
	}
	for _, item := range res.Entries {
		if len(item) == 2 && item[0] == key {
			return item[1], true, nil
		}
	}
	return "", false, nil
}

func (s *LocalStorage) Set(ctx context.Context, key, value string) error {
	id, err := s.storageID(ctx)
	if err != nil {
		return err
	}
	err = proto.DOMStorageSetDOMStorageItem{StorageID: id, Key: key, Value: value}.Call(s.page.page.Context(ctx))
	if err != nil {
		return fmt.Errorf("cdpdom: write localStorage: %w", err)
	}
	return nil
}

// originOf returns scheme://host[:port] of an http(s) URL.
func originOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("cdpdom: origin of %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("cdpdom: no storage origin for %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
