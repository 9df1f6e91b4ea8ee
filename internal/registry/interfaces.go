package registry

import "github.com/freeipa-workshop/ipafox/pkg/types"

// Store defines the operations over the Firefox profile registry
type Store interface {
	Path() string
	Entries() ([]types.Profile, error)
	Lookup(name string) (*types.Profile, error)
	Exists(name string) (bool, error)
	NextSuffix() (int, error)
	Append(profile types.Profile) (int, error)
	Remove(name string) (bool, error)
}
