package inference

import "gaswatch/internal/types"

// LabelTable maps the classifier's raw class identifiers to severity labels.
// It is the only mapping in the service; every consumer goes through LabelFor.
var LabelTable = map[int]types.Label{
	0: types.LabelAman,
	1: types.LabelBahaya,
	2: types.LabelWaspada,
}

// LabelFor returns the label for a class identifier. Unknown identifiers
// map to aman with ok set to false so callers can log the anomaly.
func LabelFor(classID int) (label types.Label, ok bool) {
	label, ok = LabelTable[classID]
	if !ok {
		return types.LabelAman, false
	}
	return label, true
}
