package goslabs

import "errors"

// Sentinel errors, one per error kind in spec.md §7. Callers use
// errors.Is/errors.As against these; every site that raises one wraps it
// with fmt.Errorf("...: %w", ...) to carry the dynamic detail (counts,
// paths) spec.md calls for.
var (
	// ErrCohortIncomplete is raised by the Coordinator when begin or
	// close times out waiting for the expected number of peers.
	ErrCohortIncomplete = errors.New("goslabs: cohort incomplete")
	// ErrNoBeginToken is raised by a peer's open when the begin-token
	// never appears within OPEN_TIMEOUT.
	ErrNoBeginToken = errors.New("goslabs: begin token not found")
	// ErrNoConfig is raised by a peer's open when CONFIG never appears
	// within OPEN_TIMEOUT.
	ErrNoConfig = errors.New("goslabs: config not found")
	// ErrFinishTimeout is raised by the master's close when a peer
	// never writes its FINISH marker.
	ErrFinishTimeout = errors.New("goslabs: peer finish marker timed out")
	// ErrTileCollision is raised by the Merger when two processes
	// produced the same tile path.
	ErrTileCollision = errors.New("goslabs: tile collision")
	// ErrStackLengthMismatch is raised by the Merger when columns
	// disagree on the number of stacked tiles.
	ErrStackLengthMismatch = errors.New("goslabs: stack length mismatch")
	// ErrDimCheckFailed is raised by the Merger when a declared dim
	// length does not match the observed extent.
	ErrDimCheckFailed = errors.New("goslabs: dimension check failed")
	// ErrStartIndexError is raised by the Merger on non-monotonic or
	// malformed offsets in a dim column.
	ErrStartIndexError = errors.New("goslabs: non-monotonic dim offsets")
	// ErrShapeMismatch is raised by the VariableWriter when a tile's
	// shape differs from the declared tile shape.
	ErrShapeMismatch = errors.New("goslabs: tile shape mismatch")
	// ErrDuplicateTile is raised by the Tile Store when a tile file
	// already exists at the target path.
	ErrDuplicateTile = errors.New("goslabs: duplicate tile")
	// ErrUnknownMode is the error kind for an open mode other than "r"
	// or "w". Open, MasterOpen and ParallelOpen take no mode argument,
	// and no function in this package returns it.
	ErrUnknownMode = errors.New("goslabs: unknown mode")
	// ErrInvalidSlice is raised by the Slicer when an index's rank or
	// bounds are not supported.
	ErrInvalidSlice = errors.New("goslabs: invalid slice")
	// ErrNegativeStep is raised by the Slicer when a negative step is
	// requested on an inner axis.
	ErrNegativeStep = errors.New("goslabs: negative step on inner axis")
	// ErrCodecMismatchInColumn is raised by the Slicer when tiles
	// stacked under one column carry different codec tags.
	ErrCodecMismatchInColumn = errors.New("goslabs: mixed codec tags in stack column")
	// ErrUnsupportedType is raised by the Codec dispatch when no
	// registered codec accepts a value.
	ErrUnsupportedType = errors.New("goslabs: unsupported value type")
	// ErrUnknownVariable is raised by the reader when a name is not
	// declared in Config.Vars.
	ErrUnknownVariable = errors.New("goslabs: unknown variable")
	// ErrClosed is raised by writer/reader methods called after Close.
	ErrClosed = errors.New("goslabs: handle already closed")
)
