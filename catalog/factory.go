package catalog

import "fmt"

// NewStore creates a catalog store from configuration
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreMemory, "":
		return NewMemoryStore(), nil

	case StoreBolt:
		if config.Path == "" {
			return nil, fmt.Errorf("bolt store requires a path")
		}
		return NewBoltStore(config.Path)

	case StoreBadger:
		if config.Path == "" {
			return nil, fmt.Errorf("badger store requires a path")
		}
		return NewBadgerStore(config.Path)

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}
