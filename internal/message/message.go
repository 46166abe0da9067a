// Package message holds the transport-neutral shapes exchanged between the
// reminder core and chat transports.
package message

// Button is one tappable option. Data is the callback payload; for menu
// keyboards the button text itself is sent back as a message.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of buttons attached to an outbound message.
// Menu keyboards stay below the input field; the others are attached
// to the message itself.
type Keyboard struct {
	Rows [][]Button
	Menu bool
}

// NewKeyboard builds an inline keyboard from rows.
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// NewMenu builds a menu keyboard from rows.
func NewMenu(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows, Menu: true}
}

// Row is a convenience for building keyboard rows.
func Row(buttons ...Button) []Button {
	return buttons
}

// Buttons flattens the keyboard in reading order.
func (k *Keyboard) Buttons() []Button {
	if k == nil {
		return nil
	}
	var out []Button
	for _, row := range k.Rows {
		out = append(out, row...)
	}
	return out
}

// Callback is a button tap reported by a transport.
type Callback struct {
	ID         string // transport callback id, used to acknowledge the tap
	UserID     string
	Data       string
	MessageRef string // transport id of the message carrying the keyboard
}
