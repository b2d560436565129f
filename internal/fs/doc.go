// Package fs provides the filesystem abstraction behind blobstore.LocalStore,
// for testability and fault injection.
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test wrapper that fails writes, syncs, closes or renames
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("dump", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
package fs
