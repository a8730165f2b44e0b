package collector

// ChangeOp says whether a value entered or left the desired set.
type ChangeOp int

const (
	// Add means the value is new and needs a record created.
	Add ChangeOp = iota
	// Remove means the value is gone and its record must be deleted.
	Remove
)

// Change is one element of a diff between two sorted value sets.
type Change struct {
	Op    ChangeOp
	Value string
}

// DiffSorted compares two lexicographically sorted value lists with a linear
// merge join and returns the changes that turn old into new, in cursor order.
// Values present in both lists produce no change. Both inputs must already be
// sorted; the result is deterministic given sorted inputs.
func DiffSorted(old, new []string) []Change {
	var changes []Change
	i, j := 0, 0
	for i < len(old) || j < len(new) {
		switch {
		case i >= len(old):
			changes = append(changes, Change{Op: Add, Value: new[j]})
			j++
		case j >= len(new):
			changes = append(changes, Change{Op: Remove, Value: old[i]})
			i++
		case old[i] < new[j]:
			// Old value with no counterpart on the right: removed.
			changes = append(changes, Change{Op: Remove, Value: old[i]})
			i++
		case old[i] > new[j]:
			// New value with no counterpart on the left: added.
			changes = append(changes, Change{Op: Add, Value: new[j]})
			j++
		default:
			i++
			j++
		}
	}
	return changes
}
