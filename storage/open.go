package storage

import "fmt"

// Open selects a backend by name. The memory backend ignores path.
func Open(backend, path string) (Database, error) {
	switch backend {
	case "", "memory":
		return NewMemDB(), nil
	case "leveldb":
		db, err := NewLevelDB(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "bolt", "bbolt":
		db, err := NewBoltDB(path, nil)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
