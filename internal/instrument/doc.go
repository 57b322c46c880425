// Package instrument implements the middleware that turns raw device
// getters, setters and methods into validated, observable, cache-aware
// feats and actions.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────┐
//	│                            Class                                 │
//	│   explicit registries built once at definition time              │
//	│                                                                  │
//	│   ┌──────────┐      ┌───────────────┐      ┌────────────┐        │
//	│   │   Feat   │      │   DictFeat    │      │   Action   │        │
//	│   │ (feat.go)│      │ (dictfeat.go) │      │ (action.go)│        │
//	│   └──────────┘      └───────────────┘      └────────────┘        │
//	│        │ get/set pipelines rebuilt from modifiers (modifier.Store)│
//	└────────┼─────────────────────────────────────────────────────────┘
//	         ▼
//	┌──────────────────┐
//	│     Device       │  per-instance lock, cache, statistics,
//	│  (device.go)     │  change listeners, optional simulator
//	└──────────────────┘
//
// A Class is declared once per driver type and holds the feat/dict-feat/
// action registries. Creating a subclass copies the parent registries, so
// additions on the child never leak back into the parent. Devices are
// instances of a Class; every get, set and call on one device is serialised
// behind that device's exclusive lock.
//
// Every feat operation runs a fixed middleware sequence: lock, read-once
// check, unnecessary-set suppression, value pipeline, simulator-or-device
// call, cache update, logging, statistics and change notification. The
// order is a contract, not a configurable pipeline.
//
// # Usage
//
//	cls := instrument.NewClass("FunGen")
//	freq, _ := instrument.NewFeat("frequency", instrument.FeatConfig{
//	    Units:  "Hz",
//	    Limits: convert.Range{Low: 1, High: 1e8},
//	    Get:    func(d *instrument.Device) (any, error) { ... },
//	    Set:    func(d *instrument.Device, v any) error { ... },
//	})
//	cls.AddFeat(freq)
//
//	dev := cls.New("fungen-1")
//	v, err := dev.Get("frequency")
package instrument
