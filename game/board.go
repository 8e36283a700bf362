package game

import (
	"fmt"
	"math"
)

// Board dimensions are expressed in viewport units: the board is 100 units
// wide and six hex widths span it.
const (
	BoardWidth    = 100.0
	HexesAcross   = 6.0
	MarginOfError = 0.01
)

var (
	HexWidth   = BoardWidth / HexesAcross
	SideLength = HexWidth * math.Tan(math.Pi/6)
	HexHeight  = 2 * SideLength
)

// Layout lists hex ids row by row, top to bottom.
var Layout = [][]string{
	{"H01", "H02", "H03"},
	{"H04", "H05", "H06", "H07"},
	{"H08", "H09", "H10", "H11", "H12"},
	{"H13", "H14", "H15", "H16"},
	{"H17", "H18", "H19"},
}

// Tokens maps hex id to its number token. The desert has none.
var Tokens = map[string]int{
	"H01": 10, "H02": 2, "H03": 9,
	"H04": 12, "H05": 6, "H06": 4, "H07": 10,
	"H08": 9, "H09": 11, "H11": 3, "H12": 8,
	"H13": 8, "H14": 3, "H15": 4, "H16": 5,
	"H17": 5, "H18": 6, "H19": 11,
}

// Pips is the number of dots printed on each token.
var Pips = map[int]int{
	2: 1, 3: 2, 4: 3, 5: 4, 6: 5,
	8: 5, 9: 4, 10: 3, 11: 2, 12: 1,
}

// Point is a board coordinate; y grows downwards.
type Point struct {
	X float64
	Y float64
}

// Near reports whether two points coincide within MarginOfError on both axes.
func (p Point) Near(o Point) bool {
	return math.Abs(p.X-o.X) < MarginOfError && math.Abs(p.Y-o.Y) < MarginOfError
}

func (p Point) Dist(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Hex is positioned by the left edge (X) and top vertex (Y).
type Hex struct {
	ID string
	X  float64
	Y  float64
}

// Corners returns the six vertices clockwise from the top.
func (h Hex) Corners() [6]Point {
	return [6]Point{
		{h.X + 0.5*HexWidth, h.Y},
		{h.X + HexWidth, h.Y + 0.25*HexHeight},
		{h.X + HexWidth, h.Y + 0.75*HexHeight},
		{h.X + 0.5*HexWidth, h.Y + HexHeight},
		{h.X, h.Y + 0.75*HexHeight},
		{h.X, h.Y + 0.25*HexHeight},
	}
}

type Vertex struct {
	Label string
	Point
	// Hexes are the ids of the hexes touching this vertex, in board order.
	Hexes []string
}

type Edge struct {
	A Point
	B Point
}

// Touches reports whether either endpoint is p.
func (e Edge) Touches(p Point) bool {
	return e.A.Near(p) || e.B.Near(p)
}

// CoordinateMap maps vertex labels to coordinates.
type CoordinateMap map[string]Point

// Board is the static geometry. It is immutable after NewBoard.
type Board struct {
	Hexes    []Hex
	Vertices []Vertex
	Edges    []Edge

	byLabel map[string]int
	coords  CoordinateMap
}

// NewBoard generates the standard 19-hex board. Vertices are labelled V01,
// V02, ... in discovery order (hex by hex, corner by corner).
func NewBoard() *Board {
	b := &Board{byLabel: make(map[string]int)}

	rowStep := HexHeight - HexHeight/4
	boardHeight := HexHeight + rowStep*float64(len(Layout)-1)
	top := (100 - boardHeight) / 2
	for r, row := range Layout {
		left := (BoardWidth - float64(len(row))*HexWidth) / 2
		for i, id := range row {
			b.Hexes = append(b.Hexes, Hex{ID: id, X: left + float64(i)*HexWidth, Y: top + float64(r)*rowStep})
		}
	}

	for _, h := range b.Hexes {
		for _, c := range h.Corners() {
			if b.findVertex(c) >= 0 {
				continue
			}
			label := fmt.Sprintf("V%02d", len(b.Vertices)+1)
			b.byLabel[label] = len(b.Vertices)
			b.Vertices = append(b.Vertices, Vertex{Label: label, Point: c})
		}
	}
	for i := range b.Vertices {
		for _, h := range b.Hexes {
			for _, c := range h.Corners() {
				if c.Near(b.Vertices[i].Point) {
					b.Vertices[i].Hexes = append(b.Vertices[i].Hexes, h.ID)
					break
				}
			}
		}
	}

	for _, h := range b.Hexes {
		corners := h.Corners()
		for i := range corners {
			e := Edge{A: corners[i], B: corners[(i+1)%len(corners)]}
			if !b.hasEdge(e) {
				b.Edges = append(b.Edges, e)
			}
		}
	}

	b.coords = make(CoordinateMap, len(b.Vertices))
	for _, v := range b.Vertices {
		b.coords[v.Label] = v.Point
	}
	return b
}

func (b *Board) findVertex(p Point) int {
	for i, v := range b.Vertices {
		if v.Point.Near(p) {
			return i
		}
	}
	return -1
}

func (b *Board) hasEdge(e Edge) bool {
	for _, o := range b.Edges {
		if (o.A.Near(e.A) && o.B.Near(e.B)) || (o.A.Near(e.B) && o.B.Near(e.A)) {
			return true
		}
	}
	return false
}

// Vertex looks a vertex up by label.
func (b *Board) Vertex(label string) (Vertex, bool) {
	i, ok := b.byLabel[label]
	if !ok {
		return Vertex{}, false
	}
	return b.Vertices[i], true
}

// VertexAt returns the label of the vertex at p, if any.
func (b *Board) VertexAt(p Point) (string, bool) {
	if i := b.findVertex(p); i >= 0 {
		return b.Vertices[i].Label, true
	}
	return "", false
}

// Coordinates returns the label to coordinate map. Callers must not modify it.
func (b *Board) Coordinates() CoordinateMap {
	return b.coords
}
