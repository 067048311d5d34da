package host

import (
	"fmt"
	"strings"

	"github.com/chazu/rbot/protocol"
)

// World is the game a bot plays: it supplies parameters and
// circumstances and applies the bot's commands.
type World interface {
	Parameters() protocol.GameParameters
	Circumstances() protocol.Circumstances
	Apply(cmd protocol.Command) protocol.MoveResult
	Done() bool
}

// offsets of the eight neighbours, clockwise from north.
var neighbours = [8][2]int{
	protocol.North:     {0, -1},
	protocol.Northeast: {1, -1},
	protocol.East:      {1, 0},
	protocol.Southeast: {1, 1},
	protocol.South:     {0, 1},
	protocol.Southwest: {-1, 1},
	protocol.West:      {-1, 0},
	protocol.Northwest: {-1, -1},
}

// Arena is a rectangular room bounded by walls: the engine's built-in
// world.
type Arena struct {
	Width, Height int
	X, Y          int
	HitPoints     uint16
	Params        protocol.GameParameters

	tiles    []protocol.TileType
	resigned bool
}

// NewArena builds a walled room with the bot in the middle.
func NewArena(width, height int) *Arena {
	if width < 3 {
		width = 3
	}
	if height < 3 {
		height = 3
	}
	a := &Arena{
		Width:     width,
		Height:    height,
		X:         width / 2,
		Y:         height / 2,
		HitPoints: 100,
		Params: protocol.GameParameters{
			Version:          1,
			EngineVersion:    [3]uint16{0, 1, 0},
			DiagonalMovement: true,
			PlayerStride:     1,
			PlayerOpenReach:  1,
		},
		tiles: make([]protocol.TileType, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := protocol.TileFloor
			if x == 0 || y == 0 || x == width-1 || y == height-1 {
				t = protocol.TileWall
			}
			a.tiles[y*width+x] = t
		}
	}
	return a
}

// Tile returns the tile at (x, y); outside the room is void.
func (a *Arena) Tile(x, y int) protocol.TileType {
	if x < 0 || y < 0 || x >= a.Width || y >= a.Height {
		return protocol.TileVoid
	}
	return a.tiles[y*a.Width+x]
}

// SetTile changes the tile at (x, y).
func (a *Arena) SetTile(x, y int, t protocol.TileType) {
	if x >= 0 && y >= 0 && x < a.Width && y < a.Height {
		a.tiles[y*a.Width+x] = t
	}
}

func (a *Arena) Parameters() protocol.GameParameters { return a.Params }

// Circumstances reports the eight tiles around the bot.
func (a *Arena) Circumstances() protocol.Circumstances {
	c := protocol.Circumstances{HitPoints: a.HitPoints, Surroundings: make([]protocol.TileType, len(neighbours))}
	for d, off := range neighbours {
		c.Surroundings[d] = a.Tile(a.X+off[0], a.Y+off[1])
	}
	return c
}

// Apply performs cmd.
func (a *Arena) Apply(cmd protocol.Command) protocol.MoveResult {
	switch cmd.Type {
	case protocol.MessageWait:
		return protocol.MoveSucceeded
	case protocol.MessageResign:
		a.resigned = true
		return protocol.MoveSucceeded
	case protocol.MessageMoveTo:
		return a.move(cmd.Direction, int(cmd.Distance))
	case protocol.MessageOpen:
		return a.door(cmd.Direction, protocol.TileClosedDoor, protocol.TileOpenDoor)
	case protocol.MessageClose:
		return a.door(cmd.Direction, protocol.TileOpenDoor, protocol.TileClosedDoor)
	}
	return protocol.MoveInvalid
}

func (a *Arena) move(d protocol.Direction, distance int) protocol.MoveResult {
	if !d.Valid() || distance < 1 || distance > int(a.Params.PlayerStride) {
		return protocol.MoveInvalid
	}
	off := neighbours[d]
	if off[0] != 0 && off[1] != 0 && !a.Params.DiagonalMovement {
		return protocol.MoveInvalid
	}
	x, y := a.X, a.Y
	for i := 0; i < distance; i++ {
		switch a.Tile(x+off[0], y+off[1]) {
		case protocol.TileFloor, protocol.TileOpenDoor:
			x, y = x+off[0], y+off[1]
		default:
			return protocol.MoveFailed
		}
	}
	a.X, a.Y = x, y
	return protocol.MoveSucceeded
}

func (a *Arena) door(d protocol.Direction, from, to protocol.TileType) protocol.MoveResult {
	if !d.Valid() {
		return protocol.MoveInvalid
	}
	off := neighbours[d]
	for r := 1; r <= int(a.Params.PlayerOpenReach); r++ {
		x, y := a.X+off[0]*r, a.Y+off[1]*r
		if a.Tile(x, y) == from {
			a.SetTile(x, y, to)
			return protocol.MoveSucceeded
		}
	}
	return protocol.MoveFailed
}

// Done reports whether the bot resigned.
func (a *Arena) Done() bool { return a.resigned }

// String draws the room with the bot as '@'.
func (a *Arena) String() string {
	glyphs := map[protocol.TileType]byte{
		protocol.TileVoid:       ' ',
		protocol.TileFloor:      '.',
		protocol.TileOpenDoor:   '/',
		protocol.TileClosedDoor: '+',
		protocol.TileWall:       '#',
	}
	var sb strings.Builder
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			if x == a.X && y == a.Y {
				sb.WriteByte('@')
				continue
			}
			sb.WriteByte(glyphs[a.Tile(x, y)])
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "hp=%d pos=(%d,%d)\n", a.HitPoints, a.X, a.Y)
	return sb.String()
}
