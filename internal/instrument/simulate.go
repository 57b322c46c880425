package instrument

// Simulator is a stand-in for the physical device, intercepting feat gets
// and sets and action calls before the real getter/setter/method is reached.
//
// Each map is keyed by feat or action name; presence of an entry is the
// "defines the corresponding operation" check. A simulated handler runs
// after locking, so logging, caching and statistics still wrap it normally.
// Dict-feat handlers receive the resolved internal key; scalar feats pass a
// nil key.
type Simulator struct {
	Getters map[string]func(d *Device, key any) (any, error)
	Setters map[string]func(d *Device, key, value any) error
	Calls   map[string]func(d *Device, args ...any) (any, error)
}
