package goslabs

import "encoding/gob"

// registerCommonGobTypes registers the concrete value types commonly
// placed in Config/DimConfig/VarConfig Attrs maps and DimConfig.Origin/
// Unit/Points fields, all of which pass through gob via an interface{}
// value.
func registerCommonGobTypes() {
	for _, v := range []any{
		0, int64(0), uint64(0), float64(0), "", false,
		[]int{}, []int64{}, []float64{}, []string{}, []any{},
		map[string]map[int]map[string]TileRecord{},
	} {
		gob.Register(v)
	}
}

// beginToken is the begin-token pickle of spec.md §6:
// "<base>.__slabbegin__" — the small record that advertises the work
// directory (and eventual archive path) to peers.
type beginToken struct {
	WorkPath string
	SlabPath string
	Mode     string
}
