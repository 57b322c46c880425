// Package flock orchestrates the lifecycle of a group of instruments with
// declared dependencies.
//
// Members are registered with Add, naming the members they depend on; the
// dependency graph is levelled so that every member initialises strictly
// after everything it depends on and finalises strictly before. Levels can
// run sequentially or concurrently with a bounded worker pool.
//
// The failure policy follows the hooks: with an OnFailed hook a failed
// initialisation is contained, so members that do not depend on the failed
// one, directly or transitively, still come up while dependants are skipped
// and marked failed. Without one the first failure stops every member not
// yet started. Report exposes the per-member outcome either way.
//
// InitializeMany and FinalizeMany run a flat list of instruments as a
// single unordered level without any flock bookkeeping.
//
// A Session scopes part of the flock: it remembers which members it brought
// up and finalises exactly those, in reverse dependency order, when closed.
package flock
