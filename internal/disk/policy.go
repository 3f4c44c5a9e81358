package disk

import (
	"fmt"

	"github.com/me/kernsim/pkg/model"
)

// Picker chooses the next request to serve given the head position.
// It returns false only when the queue is empty. It does not modify the queue.
type Picker func(q *Queue, head int) (Handle, bool)

// PickerFor returns the picker implementing p.
func PickerFor(p model.Policy) (Picker, error) {
	switch p {
	case model.PolicyFCFS:
		return pickFCFS, nil
	case model.PolicySSTF:
		return pickSSTF, nil
	case model.PolicyCSCAN:
		return pickCSCAN, nil
	default:
		return nil, fmt.Errorf("unknown disk policy %q", p)
	}
}

// pickFCFS serves in arrival order.
func pickFCFS(q *Queue, _ int) (Handle, bool) {
	h, _, ok := q.Front()
	return h, ok
}

// pickSSTF serves the closest block; the earliest request wins a tie.
// Far requests can starve while near ones keep arriving.
func pickSSTF(q *Queue, head int) (Handle, bool) {
	var best Handle
	bestDist := -1
	q.Each(func(h Handle, r *Request) bool {
		if d := distance(r.Block, head); bestDist < 0 || d < bestDist {
			best, bestDist = h, d
		}
		return true
	})
	return best, bestDist >= 0
}

// pickCSCAN sweeps upward from the head and wraps to the lowest block.
func pickCSCAN(q *Queue, head int) (Handle, bool) {
	var ahead, lowest Handle
	aheadDist, lowestBlock := -1, -1
	q.Each(func(h Handle, r *Request) bool {
		if r.Block >= head {
			if d := r.Block - head; aheadDist < 0 || d < aheadDist {
				ahead, aheadDist = h, d
			}
		}
		if lowestBlock < 0 || r.Block < lowestBlock {
			lowest, lowestBlock = h, r.Block
		}
		return true
	})
	if aheadDist >= 0 {
		return ahead, true
	}
	return lowest, lowestBlock >= 0
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
