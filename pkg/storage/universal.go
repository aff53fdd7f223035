package storage

import (
	"context"
	"errors"
	"net/http"
)

// Universal fans writes out to every store and reads from the first store
// holding the key, mirroring a cookie plus local-storage pair.
type Universal struct {
	stores []Storage
}

func NewUniversal(stores ...Storage) *Universal {
	return &Universal{stores: stores}
}

func (u *Universal) Get(ctx context.Context, key string) (string, bool, error) {
	for _, s := range u.stores {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			return "", false, err
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, nil
}

func (u *Universal) Set(ctx context.Context, key string, value string) error {
	var errs []error
	for _, s := range u.stores {
		if err := s.Set(ctx, key, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (u *Universal) Del(ctx context.Context, key string) error {
	var errs []error
	for _, s := range u.stores {
		if err := s.Del(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UniversalProvider combines the per-request stores of several providers.
func UniversalProvider(providers ...Provider) Provider {
	return ProviderFunc(func(w http.ResponseWriter, r *http.Request) (Storage, error) {
		stores := make([]Storage, 0, len(providers))
		for _, p := range providers {
			s, err := p.ForRequest(w, r)
			if err != nil {
				return nil, err
			}
			stores = append(stores, s)
		}
		return NewUniversal(stores...), nil
	})
}
