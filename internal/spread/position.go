package spread

import (
	"fmt"
	"math"
)

type Kind int

const (
	None Kind = iota
	Open
	Close
)

func (k Kind) String() string {
	switch k {
	case Open:
		return "open"
	case Close:
		return "close"
	default:
		return "none"
	}
}

// Position is the current arbitrage state. Low and High are only meaningful
// while Open is set.
type Position struct {
	Open bool
	Low  string
	High string
}

// Transition is the signal produced by one observation. For Close, Low and
// High name the pair recorded at open while SpreadPercent is the spread just
// observed on the current best pair.
type Transition struct {
	Kind          Kind
	Low           string
	High          string
	SpreadPercent float64
}

func (t Transition) String() string {
	if t.Kind == None {
		return "none"
	}
	return fmt.Sprintf("%s %s->%s %.4f%%", t.Kind, t.Low, t.High, t.SpreadPercent)
}

// Machine opens when the absolute best spread reaches the open threshold and
// closes once it is back at or under the close threshold.
type Machine struct {
	thresholdOpen  float64
	thresholdClose float64
	pos            Position
}

func NewMachine(thresholdOpen, thresholdClose float64) *Machine {
	return &Machine{thresholdOpen: thresholdOpen, thresholdClose: thresholdClose}
}

func (m *Machine) Position() Position {
	return m.pos
}

// Reset forgets any open position.
func (m *Machine) Reset() {
	m.pos = Position{}
}

// Observe applies one evaluated round. It is not safe for concurrent use; the
// polling loop owns the machine.
func (m *Machine) Observe(r Result) Transition {
	abs := math.Abs(r.SpreadPercent)
	if !m.pos.Open {
		if abs >= m.thresholdOpen {
			m.pos = Position{Open: true, Low: r.Low, High: r.High}
			return Transition{Kind: Open, Low: r.Low, High: r.High, SpreadPercent: r.SpreadPercent}
		}
		return Transition{Kind: None}
	}

	if abs <= m.thresholdClose {
		t := Transition{Kind: Close, Low: m.pos.Low, High: m.pos.High, SpreadPercent: r.SpreadPercent}
		m.pos = Position{}
		return t
	}
	return Transition{Kind: None}
}
