package goslabs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"k8s.io/klog/v2"

	"github.com/grnydawn/goslabs/codec"
)

const finishMarker = "FINISHED"

// CohortIncompleteError carries the actual/expected peer counts for a
// failed begin or close barrier (spec.md §7 CohortIncomplete).
type CohortIncompleteError struct {
	Actual, Expected int
}

func (e *CohortIncompleteError) Error() string {
	return fmt.Sprintf("goslabs: cohort incomplete: have %d of %d processes", e.Actual, e.Expected)
}

func (e *CohortIncompleteError) Unwrap() error { return ErrCohortIncomplete }

// DimOption configures a DimConfig at declaration time.
type DimOption func(*DimConfig)

// WithOrigin sets a dimension's coordinate origin.
func WithOrigin(value any, unitLabel string) DimOption {
	return func(d *DimConfig) { d.Origin = Origin{Value: value, UnitLabel: unitLabel} }
}

// WithUnit sets a dimension's physical unit.
func WithUnit(scale any, label string) DimOption {
	return func(d *DimConfig) { d.Unit = Unit{Scale: scale, Label: label} }
}

// WithPoints sets explicit coordinate points for a dimension. len(points)
// must equal Length if Length is already concrete.
func WithPoints(points []any) DimOption {
	return func(d *DimConfig) { d.Points = points }
}

// WithDesc sets a dimension's human-readable description.
func WithDesc(desc string) DimOption {
	return func(d *DimConfig) { d.Desc = desc }
}

// WithDimAttr attaches one arbitrary attribute to a dimension.
func WithDimAttr(key string, value any) DimOption {
	return func(d *DimConfig) {
		if d.Attrs == nil {
			d.Attrs = make(map[string]any)
		}
		d.Attrs[key] = value
	}
}

// VarOption configures a VarConfig at declaration (master) or local
// override (peer) time.
type VarOption func(*VarConfig)

// WithAutoStack toggles automatic stack-level advancement on each write.
func WithAutoStack(auto bool) VarOption {
	return func(v *VarConfig) { v.StackAuto = auto }
}

// WithVarAttr attaches one arbitrary attribute to a variable.
func WithVarAttr(key string, value any) VarOption {
	return func(v *VarConfig) {
		if v.Attrs == nil {
			v.Attrs = make(map[string]any)
		}
		v.Attrs[key] = value
	}
}

// MasterWriter drives the write-side Coordinator state machine of
// spec.md §4.D: INIT → OPENED → STARTED → FINALIZED.
type MasterWriter struct {
	slabPath  string
	workPath  string
	beginPath string
	id        string
	procPath  string

	cfg      *Config
	numProcs int
	opts     coordinatorConfig
	codecs   *codec.Registry
	writers  map[string]*VariableWriter

	phase string
}

// MasterOpen creates the work area and begin-token and returns a
// MasterWriter in the OPENED state. numProcs is the size of the cohort
// (including the master itself) that begin() will wait for.
func MasterOpen(path string, numProcs int, opts ...Option) (*MasterWriter, error) {
	if numProcs < 1 {
		return nil, fmt.Errorf("goslabs: MasterOpen: num_procs must be >= 1, got %d", numProcs)
	}
	cc := defaultCoordinatorConfig()
	for _, o := range opts {
		o(&cc)
	}
	if cc.workdir == "" {
		cc.workdir = path + ".__work__"
	}
	if err := os.RemoveAll(cc.workdir); err != nil {
		return nil, fmt.Errorf("goslabs: MasterOpen: clearing workdir: %w", err)
	}
	if err := os.MkdirAll(cc.workdir, 0o755); err != nil {
		return nil, fmt.Errorf("goslabs: MasterOpen: creating workdir: %w", err)
	}

	id := newProcessID()
	procPath := filepath.Join(cc.workdir, id)
	// The master's own subdirectory MUST exist before CONFIG is
	// published (spec.md §4.D) so peers never observe CONFIG before
	// the master is countable.
	if err := os.MkdirAll(procPath, 0o755); err != nil {
		return nil, fmt.Errorf("goslabs: MasterOpen: creating process dir: %w", err)
	}

	beginPath := path + ".__slabbegin__"
	tok := beginToken{WorkPath: cc.workdir, SlabPath: path, Mode: "w"}
	if err := writeGobAtomic(beginPath, tok); err != nil {
		return nil, fmt.Errorf("goslabs: MasterOpen: writing begin token: %w", err)
	}

	cfg := NewConfig()
	cfg.Control = &ControlFields{
		NumProcs:  numProcs,
		BeginPath: beginPath,
		WorkPath:  cc.workdir,
		SlabPath:  path,
	}

	klog.V(1).Infof("goslabs: master opened %q (OPENED)", cc.workdir)
	return &MasterWriter{
		slabPath:  path,
		workPath:  cc.workdir,
		beginPath: beginPath,
		id:        id,
		procPath:  procPath,
		cfg:       cfg,
		numProcs:  numProcs,
		opts:      cc,
		codecs:    codec.Default(),
		writers:   make(map[string]*VariableWriter),
		phase:     "opened",
	}, nil
}

// DefineDim declares a dimension. Valid in OPENED or STARTED phase.
func (m *MasterWriter) DefineDim(name string, length *uint64, opts ...DimOption) (*DimConfig, error) {
	if m.phase == "finalized" {
		return nil, fmt.Errorf("goslabs: DefineDim after close: %w", ErrClosed)
	}
	d := &DimConfig{Name: name, Length: length}
	for _, o := range opts {
		o(d)
	}
	if d.Points != nil && d.Length != nil && *d.Length != Unlimited && uint64(len(d.Points)) != *d.Length {
		return nil, fmt.Errorf("goslabs: dim %s: %d points != length %d", name, len(d.Points), *d.Length)
	}
	m.cfg.Dims[name] = d
	return d, nil
}

// DefineStack declares the stack dimension of a variable. It is
// mechanically identical to DefineDim; the distinction spec.md draws is
// purely the role this dimension plays as array_shape[0] of whichever
// variable references it.
func (m *MasterWriter) DefineStack(name string, length *uint64, opts ...DimOption) (*DimConfig, error) {
	return m.DefineDim(name, length, opts...)
}

// GetWriter declares (if not already declared) variable name with the
// given tile shape and array dimension names (arrayDims[0] is the stack
// dimension, arrayDims[1:] the inner dims, len(arrayDims)-1 must equal
// len(tileShape)) and returns a VariableWriter the master process can
// write tiles through immediately, without waiting for Begin.
func (m *MasterWriter) GetWriter(name string, tileShape Shape, arrayDims []string, opts ...VarOption) (*VariableWriter, error) {
	if m.phase == "finalized" {
		return nil, fmt.Errorf("goslabs: GetWriter after close: %w", ErrClosed)
	}
	if w, ok := m.writers[name]; ok {
		return w, nil
	}
	if len(arrayDims) != len(tileShape)+1 {
		return nil, fmt.Errorf("goslabs: %s: array_shape has %d dims, want len(tile_shape)+1=%d", name, len(arrayDims), len(tileShape)+1)
	}
	vc, ok := m.cfg.Vars[name]
	if !ok {
		vc = &VarConfig{
			Name:      name,
			TileShape: tileShape,
			ArrayDims: arrayDims,
			Writes:    make(map[int]map[string]TileRecord),
		}
		for _, o := range opts {
			o(vc)
		}
		m.cfg.Vars[name] = vc
	}
	w := newVariableWriter(m.procPath, vc, m.codecs)
	m.writers[name] = w
	return w, nil
}

// Begin publishes CONFIG and blocks until numProcs process subdirectories
// exist, or OPEN_TIMEOUT elapses (spec.md §4.D).
func (m *MasterWriter) Begin() error {
	if m.phase != "opened" {
		return fmt.Errorf("goslabs: Begin called in phase %q, want opened", m.phase)
	}
	if err := writeGobAtomic(filepath.Join(m.workPath, "__config__"), m.cfg); err != nil {
		return fmt.Errorf("goslabs: Begin: publishing config: %w", err)
	}

	deadline := m.opts.now().Add(m.opts.openTimeout)
	for {
		n, err := countProcessDirs(m.opts.listDir, m.workPath)
		if err != nil {
			return fmt.Errorf("goslabs: Begin: listing workdir: %w", err)
		}
		if n >= m.numProcs {
			break
		}
		if m.opts.now().After(deadline) {
			klog.Warningf("goslabs: begin timed out with %d/%d processes in %q", n, m.numProcs, m.workPath)
			return fmt.Errorf("goslabs: Begin: %w", &CohortIncompleteError{Actual: n, Expected: m.numProcs})
		}
		m.opts.sleep(m.opts.pollInterval)
	}
	m.phase = "started"
	klog.V(1).Infof("goslabs: cohort complete (%d processes), STARTED", m.numProcs)
	return nil
}

// Close signals this process's FINISH, waits for the rest of the cohort
// to finish, merges and packs the archive, and removes the work tree
// (spec.md §4.D, §4.E, §4.F).
func (m *MasterWriter) Close() error {
	if m.phase != "started" {
		return fmt.Errorf("goslabs: Close called in phase %q, want started", m.phase)
	}
	if err := writeProcVarConfigs(m.procPath, m.writers); err != nil {
		return fmt.Errorf("goslabs: Close: writing varcfgs: %w", err)
	}
	if err := writeFinishMarker(m.procPath); err != nil {
		return fmt.Errorf("goslabs: Close: writing finish marker: %w", err)
	}

	deadline := m.opts.now().Add(m.opts.closeTimeout)
	for {
		n, err := countProcessDirs(m.opts.listDir, m.workPath)
		if err != nil {
			return fmt.Errorf("goslabs: Close: listing workdir: %w", err)
		}
		if n >= m.numProcs {
			break
		}
		if m.opts.now().After(deadline) {
			klog.Warningf("goslabs: close timed out with %d/%d processes in %q", n, m.numProcs, m.workPath)
			return fmt.Errorf("goslabs: Close: %w", &CohortIncompleteError{Actual: n, Expected: m.numProcs})
		}
		m.opts.sleep(m.opts.pollInterval)
	}

	procIDs, err := listProcessDirs(m.opts.listDir, m.workPath)
	if err != nil {
		return fmt.Errorf("goslabs: Close: listing workdir: %w", err)
	}

	for _, pid := range procIDs {
		for {
			ok, err := finishMarkerExists(m.workPath, pid)
			if err != nil {
				return fmt.Errorf("goslabs: Close: checking finish marker: %w", err)
			}
			if ok {
				break
			}
			if m.opts.now().After(deadline) {
				klog.Warningf("goslabs: process %s never finished in %q", pid, m.workPath)
				return fmt.Errorf("goslabs: Close: process %s: %w", pid, ErrFinishTimeout)
			}
			m.opts.sleep(m.opts.pollInterval)
		}
	}

	if err := mergeWorkdir(m.workPath, procIDs, m.cfg); err != nil {
		return fmt.Errorf("goslabs: Close: merge: %w", err)
	}
	if err := packArchive(m.workPath, m.slabPath, m.cfg); err != nil {
		return fmt.Errorf("goslabs: Close: pack: %w", err)
	}
	if err := os.Remove(m.beginPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("goslabs: Close: removing begin token: %w", err)
	}

	m.phase = "finalized"
	klog.V(1).Infof("goslabs: FINALIZED %q", m.slabPath)
	return nil
}

// ParallelWriter is a cohort peer's handle, driving the peer side of the
// Coordinator state machine: INIT → TOKEN_SEEN → JOINED → DONE.
type ParallelWriter struct {
	workPath string
	id       string
	procPath string

	cfg     *Config
	opts    coordinatorConfig
	codecs  *codec.Registry
	writers map[string]*VariableWriter
	closed  bool
}

// ParallelOpen blocks until the begin-token and CONFIG are both
// observable, then creates this process's subtree and returns a
// ParallelWriter in the JOINED state.
func ParallelOpen(path string, opts ...Option) (*ParallelWriter, error) {
	cc := defaultCoordinatorConfig()
	for _, o := range opts {
		o(&cc)
	}
	beginPath := path + ".__slabbegin__"
	deadline := cc.now().Add(cc.openTimeout)

	var tok beginToken
	for {
		ok, err := readGobIfExists(beginPath, &tok)
		if err != nil {
			return nil, fmt.Errorf("goslabs: ParallelOpen: reading begin token: %w", err)
		}
		if ok {
			break
		}
		if cc.now().After(deadline) {
			return nil, fmt.Errorf("goslabs: ParallelOpen: %w", ErrNoBeginToken)
		}
		cc.sleep(cc.pollInterval)
	}

	var cfg Config
	configPath := filepath.Join(tok.WorkPath, "__config__")
	for {
		ok, err := readGobIfExists(configPath, &cfg)
		if err != nil {
			return nil, fmt.Errorf("goslabs: ParallelOpen: reading config: %w", err)
		}
		if ok {
			break
		}
		if cc.now().After(deadline) {
			return nil, fmt.Errorf("goslabs: ParallelOpen: %w", ErrNoConfig)
		}
		cc.sleep(cc.pollInterval)
	}

	id := newProcessID()
	procPath := filepath.Join(tok.WorkPath, id)
	if err := os.MkdirAll(procPath, 0o755); err != nil {
		return nil, fmt.Errorf("goslabs: ParallelOpen: creating process dir: %w", err)
	}

	klog.V(1).Infof("goslabs: peer %s joined %q", id, tok.WorkPath)
	return &ParallelWriter{
		workPath: tok.WorkPath,
		id:       id,
		procPath: procPath,
		cfg:      &cfg,
		opts:     cc,
		codecs:   codec.Default(),
		writers:  make(map[string]*VariableWriter),
	}, nil
}

// GetWriter returns a VariableWriter for the already-declared variable
// name. opts may locally override e.g. autostack for this process.
func (p *ParallelWriter) GetWriter(name string, opts ...VarOption) (*VariableWriter, error) {
	if w, ok := p.writers[name]; ok {
		return w, nil
	}
	shared, ok := p.cfg.Vars[name]
	if !ok {
		return nil, fmt.Errorf("goslabs: %s: %w", name, ErrUnknownVariable)
	}
	local := &VarConfig{
		Name:      shared.Name,
		TileShape: shared.TileShape,
		ArrayDims: shared.ArrayDims,
		StackAuto: shared.StackAuto,
		Attrs:     shared.Attrs,
		Writes:    make(map[int]map[string]TileRecord),
	}
	for _, o := range opts {
		o(local)
	}
	w := newVariableWriter(p.procPath, local, p.codecs)
	p.writers[name] = w
	return w, nil
}

// GetDim returns the declared DimConfig for name.
func (p *ParallelWriter) GetDim(name string) (*DimConfig, error) {
	d, ok := p.cfg.Dims[name]
	if !ok {
		return nil, fmt.Errorf("goslabs: %s: %w", name, ErrUnknownVariable)
	}
	return d, nil
}

// Close writes this process's VARCFG logs and FINISH marker. Unlike the
// master it does not merge, pack, or poll for siblings.
func (p *ParallelWriter) Close() error {
	if p.closed {
		return fmt.Errorf("goslabs: Close: %w", ErrClosed)
	}
	if err := writeProcVarConfigs(p.procPath, p.writers); err != nil {
		return fmt.Errorf("goslabs: Close: writing varcfgs: %w", err)
	}
	if err := writeFinishMarker(p.procPath); err != nil {
		return fmt.Errorf("goslabs: Close: writing finish marker: %w", err)
	}
	p.closed = true
	klog.V(1).Infof("goslabs: peer %s done", p.id)
	return nil
}

func writeProcVarConfigs(procPath string, writers map[string]*VariableWriter) error {
	names := make([]string, 0, len(writers))
	for name := range writers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w := writers[name]
		dst := filepath.Join(procPath, name, "__varcfg__")
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := writeGobAtomic(dst, w.cfg); err != nil {
			return err
		}
	}
	return nil
}

func writeFinishMarker(procPath string) error {
	return writeFileAtomic(filepath.Join(procPath, "__finished__"), []byte(finishMarker))
}

func finishMarkerExists(workPath, pid string) (bool, error) {
	_, err := os.Stat(filepath.Join(workPath, pid, "__finished__"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func listProcessDirs(listDir func(string) ([]os.DirEntry, error), workPath string) ([]string, error) {
	entries, err := listDir(workPath)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && isProcessID(e.Name()) {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func countProcessDirs(listDir func(string) ([]os.DirEntry, error), workPath string) (int, error) {
	ids, err := listProcessDirs(listDir, workPath)
	return len(ids), err
}
