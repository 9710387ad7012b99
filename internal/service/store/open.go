package store

import "fmt"

// Open returns the backend selected by driver ("file" or "badger").
func Open(driver, dataDir string) (Store, error) {
	switch driver {
	case "file":
		return NewFileStore(dataDir)
	case "badger":
		return NewBadgerStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
