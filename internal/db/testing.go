package db

import (
	"testing"
)

// NewTestStoreDB creates an in-memory, migrated store for testing.
// The database is automatically closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    store := db.NewTestStoreDB(t)
//	    // use store...
//	}
func NewTestStoreDB(t testing.TB) *StoreDB {
	t.Helper()

	store, err := OpenStoreInMemory()
	if err != nil {
		t.Fatalf("create test store db: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
