package robotapi

import (
	"encoding/json"
	"fmt"
)

// Position is a robot location. On the wire it is a [lat, lng] pair.
type Position struct {
	Lat float64
	Lng float64
}

// MarshalJSON encodes p as [lat, lng].
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON decodes a [lat, lng] pair.
func (p *Position) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("position: expected [lat, lng], got %d values", len(pair))
	}
	p.Lat, p.Lng = pair[0], pair[1]
	return nil
}

// PositionSet is the ordered list of robot positions. Order is the only
// identity a robot has.
type PositionSet []Position

// Clone returns an independent copy. A nil set clones to an empty one.
func (s PositionSet) Clone() PositionSet {
	out := make(PositionSet, len(s))
	copy(out, s)
	return out
}

// RobotsResponse is the body returned by list, move and reset.
type RobotsResponse struct {
	Robots PositionSet `json:"robots"`
}

// MoveRequest is the body of POST /move.
type MoveRequest struct {
	Meters float64 `json:"meters"`
}

// ResetRequest is the body of POST /reset.
type ResetRequest struct {
	Count int `json:"count"`
}

// StartAutoRequest is the body of POST /start-auto.
type StartAutoRequest struct {
	Meters     float64 `json:"meters"`
	IntervalMs float64 `json:"intervalMs"`
}
