// breadcrumbs.go holds breadcrumbs in a bounded ring buffer.

package raven

const (
	// DefaultMaxBreadcrumbs is the default breadcrumb capacity of a scope.
	DefaultMaxBreadcrumbs = 30

	// MaxBreadcrumbsLimit caps the configurable capacity.
	MaxBreadcrumbsLimit = 100
)

// breadcrumbBuffer is a bounded ring buffer. Callers synchronize access.
type breadcrumbBuffer struct {
	records  []Breadcrumb
	maxSize  int
	writeIdx int
}

func newBreadcrumbBuffer(maxSize int) *breadcrumbBuffer {
	return &breadcrumbBuffer{maxSize: maxSize}
}

// Add appends a breadcrumb, evicting the oldest if the buffer is full.
func (b *breadcrumbBuffer) Add(crumb Breadcrumb) {
	if b.maxSize <= 0 {
		return
	}
	if len(b.records) < b.maxSize {
		b.records = append(b.records, crumb)
		return
	}
	b.records[b.writeIdx] = crumb
	b.writeIdx = (b.writeIdx + 1) % b.maxSize
}

// Len returns the number of buffered breadcrumbs.
func (b *breadcrumbBuffer) Len() int {
	return len(b.records)
}

// GetAll returns a copy of the breadcrumbs, oldest first.
func (b *breadcrumbBuffer) GetAll() []Breadcrumb {
	if len(b.records) == 0 {
		return nil
	}
	result := make([]Breadcrumb, len(b.records))
	if len(b.records) < b.maxSize {
		copy(result, b.records)
		return result
	}
	// writeIdx points at the oldest record once the buffer has wrapped.
	copy(result, b.records[b.writeIdx:])
	copy(result[len(b.records)-b.writeIdx:], b.records[:b.writeIdx])
	return result
}

// Drain returns all breadcrumbs, oldest first, and empties the buffer.
func (b *breadcrumbBuffer) Drain() []Breadcrumb {
	out := b.GetAll()
	b.records = nil
	b.writeIdx = 0
	return out
}
