package model

// Point is a 2D coordinate in layout space or screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AnchorID is the fixed identity of the node representing the user.
const AnchorID = "anchor"

// Anchor is the single pinned node at the centre of the map.
type Anchor struct {
	ID       string `json:"id"`
	Position Point  `json:"position"`
}

// Node is the visual and logical unit representing one tracked contact.
type Node struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category,omitempty"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
	Health    Health  `json:"health"`
	Size      float64 `json:"size"`

	// Position is written only by the layout solver. Placed is false until
	// the first placement pass has produced a coordinate for this node.
	Position Point   `json:"position"`
	Placed   bool    `json:"placed"`
	Rotation float64 `json:"rotation"`
}

// Edge connects a node to the anchor. There is no other topology.
type Edge struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Thickness  float64 `json:"thickness"`
	Opacity    float64 `json:"opacity"`
	RestLength float64 `json:"rest_length"`
}

// SceneResponse is the structural view of the map returned to clients.
type SceneResponse struct {
	Generation uint64  `json:"generation"`
	Anchor     Anchor  `json:"anchor"`
	Nodes      []*Node `json:"nodes"`
	Edges      []*Edge `json:"edges"`
	Stats      *Stats  `json:"stats"`
}
