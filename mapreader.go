package squashfs

// MapReader is a stateful cursor over a Mapper : it tracks an absolute
// position, advances through the source, and guarantees a requested number
// of bytes are addressable via Data(). It holds onto at most one live
// MapView at a time; crossing its boundary transparently triggers a new
// Map call.
type MapReader struct {
	mapper Mapper
	pos    int64
	limit  int64 // upper bound on addressable offsets, or -1 for none

	view     *MapView
	viewBase int64
}

// newMapReader creates a MapReader starting at start, refusing to address
// bytes at or beyond upperLimit. A negative upperLimit means unbounded.
func newMapReader(mapper Mapper, start, upperLimit int64) *MapReader {
	return &MapReader{mapper: mapper, pos: start, limit: upperLimit}
}

// Address returns the reader's current absolute offset into the source.
func (r *MapReader) Address() int64 { return r.pos }

// Advance moves the cursor forward by skip bytes (skip may be zero), then
// guarantees that want bytes starting at the new position are addressable
// via Data(). It fails if doing so would cross the reader's upper limit.
func (r *MapReader) Advance(skip, want int64) error {
	r.pos += skip
	if want <= 0 {
		return nil
	}
	if r.limit >= 0 && r.pos+want > r.limit {
		return errOutOfBounds
	}
	if r.view != nil && r.pos >= r.viewBase && r.pos+want <= r.viewBase+int64(len(r.view.data)) {
		return nil
	}
	view, err := r.mapper.Map(r.pos, want)
	if err != nil {
		return err
	}
	r.view = view
	r.viewBase = r.pos
	return nil
}

// Data returns the bytes made addressable by the most recent Advance,
// starting at the reader's current position.
func (r *MapReader) Data() []byte {
	if r.view == nil {
		return nil
	}
	return r.view.data[r.pos-r.viewBase:]
}
