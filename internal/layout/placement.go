package layout

import (
	"math"

	"github.com/alfredjeanlab/garden/internal/model"
)

// Item is the layout input for one node.
type Item struct {
	ID       string
	Category string
	Recency  float64
}

// Placement is the position of one node relative to the layout origin.
// Angle is in degrees; Distance is measured from the anchor.
type Placement struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Angle    float64 `json:"angle"`
	Distance float64 `json:"distance"`
	Placed   bool    `json:"placed"`
}

// Point returns the placement's coordinate.
func (p Placement) Point() model.Point {
	return model.Point{X: p.X, Y: p.Y}
}

// Place computes the initial placement of items around anchor. The result
// is a pure function of its inputs: the same items in the same order always
// produce the same placements.
func Place(cfg Config, anchor model.Point, items []Item) []Placement {
	out := make([]Placement, len(items))
	if len(items) == 0 {
		return out
	}

	angles := make([]float64, len(items))
	switch cfg.Grouping {
	case GroupEven:
		step := 360.0 / float64(len(items))
		for i := range items {
			angles[i] = FamilyAngle + step*float64(i)
		}
	default:
		// Members of a group keep their snapshot order within the fan.
		groups := make(map[string][]int)
		for i, it := range items {
			k := groupKey(it.Category)
			groups[k] = append(groups[k], i)
		}
		for _, members := range groups {
			m := len(members)
			spacing := cfg.FanSpread / float64(m)
			for k, idx := range members {
				offset := (float64(k) - float64(m-1)/2) * spacing
				angles[idx] = BaseAngle(items[idx].Category) + offset
			}
		}
	}

	for i, it := range items {
		d := cfg.RestLength(it.Recency)
		out[i] = at(anchor, it.ID, angles[i], d)
	}
	return out
}

func at(anchor model.Point, id string, angle, distance float64) Placement {
	rad := angle * math.Pi / 180
	return Placement{
		ID:       id,
		X:        anchor.X + distance*math.Cos(rad),
		Y:        anchor.Y + distance*math.Sin(rad),
		Angle:    normalizeAngle(angle),
		Distance: distance,
		Placed:   true,
	}
}

// normalizeAngle maps a into (-180, 180].
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 360)
	if a <= -180 {
		a += 360
	} else if a > 180 {
		a -= 360
	}
	return a
}
