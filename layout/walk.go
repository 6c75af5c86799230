package layout

import (
	"errors"
	"fmt"

	"github.com/chazu/tessera/model"
)

var (
	// ErrDoubleVisit is returned when two records decide the same slot.
	ErrDoubleVisit = errors.New("slot described twice")

	// ErrOutOfRange is returned when a record addresses a slot past the end
	// of the storage.
	ErrOutOfRange = errors.New("slot out of range")
)

// VisitFunc receives each slot once with its root decision.
type VisitFunc func(slot int, root bool)

// Walk applies records left to right against slots, the way the tracer does,
// and reports every slot exactly once. Slots no record decides are reported
// as non-roots after the records are exhausted.
func Walk(records []Record, slots []uint64, visit VisitFunc) error {
	w := walker{slots: slots, decided: make([]bool, len(slots)), visit: visit}
	for r := 0; r < len(records); r++ {
		skip, err := w.apply(records[r])
		if err != nil {
			return fmt.Errorf("record %d (%s): %w", r, records[r], err)
		}
		r += skip
	}
	w.finish()
	return nil
}

// WalkFrame is Walk for a frame at instruction offset pc. Records whose
// validity window does not contain pc are ignored.
func WalkFrame(records []FrameRecord, slots []uint64, pc int, visit VisitFunc) error {
	w := walker{slots: slots, decided: make([]bool, len(slots)), visit: visit}
	for r := 0; r < len(records); r++ {
		if !records[r].Live(pc) {
			continue
		}
		skip, err := w.apply(records[r].Record)
		if err != nil {
			return fmt.Errorf("frame record %d (%s): %w", r, records[r].Record, err)
		}
		r += skip
	}
	w.finish()
	return nil
}

type walker struct {
	slots   []uint64
	decided []bool
	visit   VisitFunc
}

// apply decides the slots of one record and returns how many following
// records to skip.
func (w *walker) apply(r Record) (int, error) {
	switch r.Kind {
	case Simple:
		return 0, w.decide(r.Index, true)
	case Conditional:
		if err := w.decide(r.Condition, false); err != nil {
			return 0, err
		}
		return 0, w.decide(r.Index, w.slots[r.Condition] != 0)
	case Box:
		if err := w.decide(r.Index, false); err != nil {
			return 0, err
		}
		isObject := w.slots[r.Index] == uint64(model.TagObject)
		if err := w.decide(r.Index+1, isObject); err != nil {
			return 0, err
		}
		for i := 2; i < model.BoxSlots; i++ {
			if err := w.decide(r.Index+i, false); err != nil {
				return 0, err
			}
		}
		return 0, nil
	case ConditionalSkip:
		if err := w.decide(r.Condition, false); err != nil {
			return 0, err
		}
		if w.slots[r.Condition] == 0 {
			return r.Index, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unknown record kind %d", r.Kind)
}

func (w *walker) decide(slot int, root bool) error {
	if slot < 0 || slot >= len(w.slots) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, slot, len(w.slots))
	}
	if w.decided[slot] {
		return fmt.Errorf("%w: %d", ErrDoubleVisit, slot)
	}
	w.decided[slot] = true
	w.visit(slot, root)
	return nil
}

func (w *walker) finish() {
	for i, done := range w.decided {
		if !done {
			w.visit(i, false)
		}
	}
}

// ---------------------------------------------------------------------------
// Verification
// ---------------------------------------------------------------------------

// maxVerifiedConditions bounds the exhaustive enumeration in Verify.
const maxVerifiedConditions = 12

// Verify walks records against storage of the given size under every
// assignment of condition slots and box tags, and fails if any walk reports
// an error or does not visit every slot exactly once. Layouts with more
// conditions than can be enumerated are checked with all conditions false
// and all true.
func Verify(records []Record, size int) error {
	var conds []int
	seen := make(map[int]bool)
	for _, r := range records {
		c := r.Condition
		if r.Kind == Box {
			c = r.Index
		} else if r.Kind == Simple {
			continue
		}
		if c >= 0 && c < size && !seen[c] {
			seen[c] = true
			conds = append(conds, c)
		}
	}

	assignments := []uint64{0, 1<<uint(len(conds)) - 1}
	if len(conds) <= maxVerifiedConditions {
		assignments = assignments[:0]
		for bits := uint64(0); bits < 1<<uint(len(conds)); bits++ {
			assignments = append(assignments, bits)
		}
	}

	slots := make([]uint64, size)
	for _, bits := range assignments {
		for i := range slots {
			slots[i] = 0
		}
		for i, c := range conds {
			if bits&(1<<uint(i)) != 0 {
				slots[c] = uint64(model.TagObject)
			}
		}
		visits := make([]int, size)
		err := Walk(records, slots, func(slot int, _ bool) { visits[slot]++ })
		if err != nil {
			return err
		}
		for slot, n := range visits {
			if n != 1 {
				return fmt.Errorf("slot %d visited %d times with conditions %b", slot, n, bits)
			}
		}
	}
	return nil
}
