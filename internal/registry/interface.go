package registry

import "strings"

// Root identifies a predefined registry hive.
type Root int

const (
	ClassesRoot Root = iota
	CurrentUser
	LocalMachine
)

var rootNames = map[Root]string{
	ClassesRoot:  "HKEY_CLASSES_ROOT",
	CurrentUser:  "HKEY_CURRENT_USER",
	LocalMachine: "HKEY_LOCAL_MACHINE",
}

func (r Root) String() string {
	if name, ok := rootNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// Key is an open registry key.
type Key interface {
	SubKeyNames() ([]string, error)
	ValueNames() ([]string, error)
	// StringValue returns a string value; the empty name addresses the
	// key's default value.
	StringValue(name string) (string, error)
	SetStringValue(name, value string) error
	DeleteValue(name string) error
	Close() error
}

// Store opens registry keys. Missing keys are reported with ErrKeyNotFound
// and missing values with ErrValueNotFound.
type Store interface {
	OpenKey(root Root, path string, writable bool) (Key, error)
	CreateKey(root Root, path string) (Key, error)
}

// KeyPath renders root and path as "HKEY_...\path".
func KeyPath(root Root, path string) string {
	if path == "" {
		return root.String()
	}
	return root.String() + `\` + path
}

// SplitKeyPath parses a path produced by KeyPath. Short hive names such as
// HKCU are accepted.
func SplitKeyPath(full string) (Root, string, bool) {
	hive, rest, _ := strings.Cut(full, `\`)

	switch strings.ToUpper(hive) {
	case "HKEY_CLASSES_ROOT", "HKCR":
		return ClassesRoot, rest, true
	case "HKEY_CURRENT_USER", "HKCU":
		return CurrentUser, rest, true
	case "HKEY_LOCAL_MACHINE", "HKLM":
		return LocalMachine, rest, true
	default:
		return 0, "", false
	}
}
