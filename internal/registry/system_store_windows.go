//go:build windows

package registry

import (
	"codeberg.org/mutker/sysoptctl/internal/errors"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

// SystemStore reads and writes the Windows registry.
type SystemStore struct{}

func NewSystemStore() Store {
	return SystemStore{}
}

func (SystemStore) OpenKey(root Root, path string, writable bool) (Key, error) {
	hive, err := hiveKey(root)
	if err != nil {
		return nil, err
	}

	access := uint32(registry.QUERY_VALUE | registry.ENUMERATE_SUB_KEYS)
	if writable {
		access |= registry.SET_VALUE
	}

	k, err := registry.OpenKey(hive, path, access)
	if err != nil {
		return nil, translate(err, KeyPath(root, path))
	}

	return systemKey{k: k}, nil
}

func (SystemStore) CreateKey(root Root, path string) (Key, error) {
	hive, err := hiveKey(root)
	if err != nil {
		return nil, err
	}

	k, _, err := registry.CreateKey(hive, path, registry.QUERY_VALUE|registry.ENUMERATE_SUB_KEYS|registry.SET_VALUE)
	if err != nil {
		return nil, translate(err, KeyPath(root, path))
	}

	return systemKey{k: k}, nil
}

func hiveKey(root Root) (registry.Key, error) {
	switch root {
	case ClassesRoot:
		return registry.CLASSES_ROOT, nil
	case CurrentUser:
		return registry.CURRENT_USER, nil
	case LocalMachine:
		return registry.LOCAL_MACHINE, nil
	default:
		return 0, errors.New().New(ErrInvalidPath).WithData(root.String())
	}
}

func translate(err error, what string) error {
	errFactory := errors.New()

	switch {
	case errors.Is(err, registry.ErrNotExist):
		return errFactory.Wrap(ErrKeyNotFound, err).WithData(what)
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return errFactory.Wrap(ErrAccessDenied, err).WithData(what)
	default:
		return errFactory.Wrap(ErrStoreFailed, err).WithData(what)
	}
}

type systemKey struct {
	k registry.Key
}

func (s systemKey) SubKeyNames() ([]string, error) {
	names, err := s.k.ReadSubKeyNames(-1)
	if err != nil {
		return nil, translate(err, "subkeys")
	}
	return names, nil
}

func (s systemKey) ValueNames() ([]string, error) {
	names, err := s.k.ReadValueNames(-1)
	if err != nil {
		return nil, translate(err, "values")
	}
	return names, nil
}

func (s systemKey) StringValue(name string) (string, error) {
	v, _, err := s.k.GetStringValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", errors.New().Wrap(ErrValueNotFound, err).WithData(name)
		}
		return "", translate(err, name)
	}
	return v, nil
}

func (s systemKey) SetStringValue(name, value string) error {
	if err := s.k.SetStringValue(name, value); err != nil {
		return translate(err, name)
	}
	return nil
}

func (s systemKey) DeleteValue(name string) error {
	if err := s.k.DeleteValue(name); err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return errors.New().Wrap(ErrValueNotFound, err).WithData(name)
		}
		return translate(err, name)
	}
	return nil
}

func (s systemKey) Close() error {
	return s.k.Close()
}
