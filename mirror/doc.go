// Package mirror converges a destination root to the desired set of bare
// mirrors.
//
// A run takes an immutable [Snapshot] of the directories under the
// destination root, builds a [Plan] from it and the desired mapping of mirror
// id to source url, and applies it. Every desired repository is cloned
// (`<root>/<id>.git`) or updated with a pruned fetch of all branches before
// any directory which is no longer desired is removed. Failures are isolated
// per mirror and collected in the [Report].
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	snapshot, err := mirror.TakeSnapshot(root)
//	if err != nil {
//		panic(err)
//	}
//	engine := mirror.NewEngine(client, mirror.Options{Exclude: []string{"archive-*"}}, logger)
//	report := engine.Reconcile(ctx, root, desired, snapshot)
//	fmt.Println(report.Cloned, report.Updated, report.Deleted, report.Failed())
package mirror
