// Package depgraph converts a partial-order dependency map into an ordered
// list of independent levels (topological leveling).
//
// Level 0 holds every member with no dependency; each subsequent level holds
// members whose dependencies are fully contained in the union of all prior
// levels. The leveling is one-shot and used only for device startup and
// shutdown ordering, not a general workflow scheduler.
package depgraph
