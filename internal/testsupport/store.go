package testsupport

import (
	"testing"

	"setgen/internal/config"
	"setgen/internal/hashstore"
)

// MustOpenStore opens the hash store for cfg and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *hashstore.Store {
	t.Helper()

	store, err := hashstore.Open(cfg.StateDBPath())
	if err != nil {
		t.Fatalf("hashstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
