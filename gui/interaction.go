package gui

// An action performed on the app under test, observed between two snapshots.
type Interaction struct {
	ID        int
	PrevState StateID
	ResState  StateID
	// The widget the action targeted. Nil for window level actions such as pressing back.
	Target *Widget
	// Name of the action type, parsed by the action package.
	Action string
	// Raw payload: swipe direction, inserted text, intent data.
	Data string
	// Values of the input fields when the action was taken.
	UserInputs map[string]string
}
