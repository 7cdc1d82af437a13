// Package cost records the simulated I/O of a single tree operation.
//
// Every node read or written counts as one page access. A Tracker keeps the
// ordered list of nodes visited and charges each distinct node once.
package cost

import "distritree/pkg/common"

// Tracker is not safe for concurrent use; each operation owns its own.
type Tracker struct {
	path    []common.NodeID
	touched map[common.NodeID]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{touched: make(map[common.NodeID]struct{})}
}

// Visit records a read of id and appends it to the path.
func (t *Tracker) Visit(id common.NodeID) {
	t.path = append(t.path, id)
	t.touched[id] = struct{}{}
}

// Create charges a freshly allocated node without adding it to the path.
func (t *Tracker) Create(id common.NodeID) {
	t.touched[id] = struct{}{}
}

// Path returns the visited ids in order.
func (t *Tracker) Path() []common.NodeID {
	out := make([]common.NodeID, len(t.path))
	copy(out, t.path)
	return out
}

// IOCost is the number of distinct nodes touched.
func (t *Tracker) IOCost() int {
	return len(t.touched)
}

// Report freezes the tracker into a value.
func (t *Tracker) Report() Report {
	return Report{IOCost: t.IOCost(), Path: t.Path()}
}

// Report is the cost record attached to every operation result.
type Report struct {
	IOCost int             `json:"io_cost"`
	Path   []common.NodeID `json:"path_taken"`
}
