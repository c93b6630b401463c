//go:build !windows

package registry

import "codeberg.org/mutker/sysoptctl/internal/errors"

// SystemStore has no backing registry outside Windows; every open fails.
type SystemStore struct{}

func NewSystemStore() Store {
	return SystemStore{}
}

func (SystemStore) OpenKey(root Root, path string, _ bool) (Key, error) {
	return nil, errors.New().New(errors.ErrNotSupported).WithData(KeyPath(root, path))
}

func (SystemStore) CreateKey(root Root, path string) (Key, error) {
	return nil, errors.New().New(errors.ErrNotSupported).WithData(KeyPath(root, path))
}
