// Package counter keeps the "ever issued" tallies for citations and arrests.
//
// HOW THE TALLY WORKS:
// A tally counts how many records were ever created, so a single delete does
// not decrement it. It can still fall behind the real collection: an old data
// file may predate the counter, or a crash may land between writing the records
// and writing the counter. To cover that, every read and every create takes the
// live collection size as a floor:
//
//	OnCreate(size) → n = max(n+1, size)
//	Get(size)      → n = max(n, size)
//	Reset()        → n = 0      (bulk delete only)
//
// The tally is therefore never lower than the number of records that exist.
package counter

// Tally is a monotonic counter with a live-size floor.
// The zero value is ready to use. Tally is not safe for concurrent use; the
// store that owns it already serializes access.
type Tally struct {
	n int64
}

// New returns a Tally starting at n. Negative starting values are clamped to 0.
func New(n int64) Tally {
	if n < 0 {
		n = 0
	}
	return Tally{n: n}
}

// OnCreate records one creation. size is the collection size AFTER the
// new record was added.
func (t *Tally) OnCreate(size int) int64 {
	t.n = max(t.n+1, int64(size))
	return t.n
}

// Get returns the tally, raising it first if the collection has more records
// than it accounts for.
func (t *Tally) Get(size int) int64 {
	t.n = max(t.n, int64(size))
	return t.n
}

// Reset zeroes the tally. Only a delete-all may call it.
func (t *Tally) Reset() {
	t.n = 0
}

// Value returns the raw stored value without applying the floor.
// Persistence code uses it; everyone else should call Get.
func (t Tally) Value() int64 {
	return t.n
}
