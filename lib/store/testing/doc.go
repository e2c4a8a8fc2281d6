// Package testing provides a shared test suite for store.Backend variants,
// the store level counterpart of lib/db/testing.
//
// Example usage:
//
//	storetesting.RunBackendTests(t, "Sharded/pebble", func(t *testing.T) store.Backend {
//		backend, err := sharded.Open(cfg, factory)
//		require.NoError(t, err)
//		return backend
//	})
package testing
