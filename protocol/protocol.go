// Package protocol defines the game messages exchanged through a bot's
// shared memory. All multi-byte fields are little endian.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a message does not fit the buffer.
var ErrShortBuffer = errors.New("protocol: buffer too short")

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// MessageType tags a command written by the bot.
type MessageType uint8

const (
	MessageError                MessageType = 1
	MessageInitialParameters    MessageType = 2
	MessagePresentCircumstances MessageType = 3
	MessageWait                 MessageType = 4
	MessageResign               MessageType = 5
	MessageMoveTo               MessageType = 6
	MessageOpen                 MessageType = 7
	MessageClose                MessageType = 8
)

var messageTypeNames = map[MessageType]string{
	MessageError:                "Error",
	MessageInitialParameters:    "InitialParameters",
	MessagePresentCircumstances: "PresentCircumstances",
	MessageWait:                 "Wait",
	MessageResign:               "Resign",
	MessageMoveTo:               "MoveTo",
	MessageOpen:                 "Open",
	MessageClose:                "Close",
}

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// MoveResult reports the outcome of the previous move.
type MoveResult uint8

const (
	MoveSucceeded MoveResult = 0
	MoveFailed    MoveResult = 1
	MoveInvalid   MoveResult = 2
	MoveError     MoveResult = 3
)

func (r MoveResult) String() string {
	switch r {
	case MoveSucceeded:
		return "Succeeded"
	case MoveFailed:
		return "Failed"
	case MoveInvalid:
		return "Invalid"
	case MoveError:
		return "Error"
	}
	return fmt.Sprintf("MoveResult(%d)", uint8(r))
}

// TileType is one cell of the bot's surroundings.
type TileType uint8

const (
	TileVoid       TileType = 0
	TileFloor      TileType = 1
	TileOpenDoor   TileType = 2
	TileClosedDoor TileType = 3
	TileWall       TileType = 4
)

func (t TileType) String() string {
	switch t {
	case TileVoid:
		return "Void"
	case TileFloor:
		return "Floor"
	case TileOpenDoor:
		return "OpenDoor"
	case TileClosedDoor:
		return "ClosedDoor"
	case TileWall:
		return "Wall"
	}
	return fmt.Sprintf("TileType(%d)", uint8(t))
}

// LogLevel is the first argument of the guest's logFunction.
type LogLevel int

const (
	LogError LogLevel = 0
	LogWarn  LogLevel = 1
	LogInfo  LogLevel = 2
)

func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	}
	return fmt.Sprintf("LogLevel(%d)", int(l))
}

// Direction is one of the eight compass directions, clockwise from north.
type Direction uint8

const (
	North Direction = iota
	Northeast
	East
	Southeast
	South
	Southwest
	West
	Northwest
)

var directionNames = [...]string{"North", "Northeast", "East", "Southeast", "South", "Southwest", "West", "Northwest"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// Valid reports whether d is one of the eight directions.
func (d Direction) Valid() bool { return int(d) < len(directionNames) }

// ---------------------------------------------------------------------------
// Header: bytes 0..31, written by the bot's setup
// ---------------------------------------------------------------------------

// HeaderSize is the width of the header at the start of shared memory.
const HeaderSize = 32

// NameSize is the width of the NUL-padded bot name.
const NameSize = 26

// Header identifies the bot.
type Header struct {
	Name    [NameSize]byte
	Version [3]uint16
}

// DecodeHeader reads the header from the start of b.
func DecodeHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, fmt.Errorf("header: %w", ErrShortBuffer)
	}
	copy(h.Name[:], b[:NameSize])
	for i := range h.Version {
		h.Version[i] = binary.LittleEndian.Uint16(b[NameSize+2*i:])
	}
	return h, nil
}

// Encode writes the header to the start of b.
func (h Header) Encode(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("header: %w", ErrShortBuffer)
	}
	copy(b[:NameSize], h.Name[:])
	for i, v := range h.Version {
		binary.LittleEndian.PutUint16(b[NameSize+2*i:], v)
	}
	return nil
}

// BotName returns the name without its NUL padding.
func (h Header) BotName() string {
	n := bytes.IndexByte(h.Name[:], 0)
	if n < 0 {
		n = NameSize
	}
	return string(h.Name[:n])
}

// VersionString formats the version as major.minor.patch.
func (h Header) VersionString() string {
	return fmt.Sprintf("%d.%d.%d", h.Version[0], h.Version[1], h.Version[2])
}

// ---------------------------------------------------------------------------
// GameParameters: "S S S S C C C"
// ---------------------------------------------------------------------------

// GameParametersSize is the encoded width of GameParameters.
const GameParametersSize = 11

// GameParameters is sent once, before the first tick.
type GameParameters struct {
	Version          uint16
	EngineVersion    [3]uint16
	DiagonalMovement bool
	PlayerStride     uint8
	PlayerOpenReach  uint8
}

// Encode writes p at the start of b.
func (p GameParameters) Encode(b []byte) error {
	if len(b) < GameParametersSize {
		return fmt.Errorf("game parameters: %w", ErrShortBuffer)
	}
	binary.LittleEndian.PutUint16(b[0:], p.Version)
	for i, v := range p.EngineVersion {
		binary.LittleEndian.PutUint16(b[2+2*i:], v)
	}
	b[8] = 0
	if p.DiagonalMovement {
		b[8] = 1
	}
	b[9] = p.PlayerStride
	b[10] = p.PlayerOpenReach
	return nil
}

// DecodeGameParameters reads parameters from the start of b.
func DecodeGameParameters(b []byte) (GameParameters, error) {
	var p GameParameters
	if len(b) < GameParametersSize {
		return p, fmt.Errorf("game parameters: %w", ErrShortBuffer)
	}
	p.Version = binary.LittleEndian.Uint16(b[0:])
	for i := range p.EngineVersion {
		p.EngineVersion[i] = binary.LittleEndian.Uint16(b[2+2*i:])
	}
	p.DiagonalMovement = b[8] != 0
	p.PlayerStride = b[9]
	p.PlayerOpenReach = b[10]
	return p, nil
}

// ---------------------------------------------------------------------------
// Circumstances: "I C S S" followed by one byte per tile
// ---------------------------------------------------------------------------

// CircumstancesHeaderSize is the width of the fixed part of Circumstances.
const CircumstancesHeaderSize = 9

// Circumstances is sent every tick.
type Circumstances struct {
	LastTickDuration uint32
	LastMoveResult   MoveResult
	HitPoints        uint16
	Surroundings     []TileType
}

// Size returns the encoded width.
func (c Circumstances) Size() int { return CircumstancesHeaderSize + len(c.Surroundings) }

// Encode writes c at the start of b.
func (c Circumstances) Encode(b []byte) error {
	if len(b) < c.Size() {
		return fmt.Errorf("circumstances: %w", ErrShortBuffer)
	}
	if len(c.Surroundings) > 0xFFFF {
		return fmt.Errorf("circumstances: %d tiles do not fit a 16-bit count", len(c.Surroundings))
	}
	binary.LittleEndian.PutUint32(b[0:], c.LastTickDuration)
	b[4] = byte(c.LastMoveResult)
	binary.LittleEndian.PutUint16(b[5:], c.HitPoints)
	binary.LittleEndian.PutUint16(b[7:], uint16(len(c.Surroundings)))
	for i, t := range c.Surroundings {
		b[CircumstancesHeaderSize+i] = byte(t)
	}
	return nil
}

// DecodeCircumstances reads circumstances from the start of b.
func DecodeCircumstances(b []byte) (Circumstances, error) {
	var c Circumstances
	if len(b) < CircumstancesHeaderSize {
		return c, fmt.Errorf("circumstances: %w", ErrShortBuffer)
	}
	c.LastTickDuration = binary.LittleEndian.Uint32(b[0:])
	c.LastMoveResult = MoveResult(b[4])
	c.HitPoints = binary.LittleEndian.Uint16(b[5:])
	n := int(binary.LittleEndian.Uint16(b[7:]))
	if len(b) < CircumstancesHeaderSize+n {
		return c, fmt.Errorf("circumstances with %d tiles: %w", n, ErrShortBuffer)
	}
	c.Surroundings = make([]TileType, n)
	for i := range c.Surroundings {
		c.Surroundings[i] = TileType(b[CircumstancesHeaderSize+i])
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Command: written by the bot at offset 0
// ---------------------------------------------------------------------------

// Command is the bot's answer to a tick.
type Command struct {
	Type      MessageType
	Direction Direction
	Distance  uint8
}

// Size returns the encoded width for the command's type.
func (c Command) Size() int {
	switch c.Type {
	case MessageMoveTo:
		return 3
	case MessageOpen, MessageClose:
		return 2
	}
	return 1
}

// Encode writes c at the start of b.
func (c Command) Encode(b []byte) error {
	if len(b) < c.Size() {
		return fmt.Errorf("command: %w", ErrShortBuffer)
	}
	b[0] = byte(c.Type)
	if c.Size() > 1 {
		b[1] = byte(c.Direction)
	}
	if c.Size() > 2 {
		b[2] = c.Distance
	}
	return nil
}

// DecodeCommand reads a command from the start of b.
func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if len(b) < 1 {
		return c, fmt.Errorf("command: %w", ErrShortBuffer)
	}
	c.Type = MessageType(b[0])
	if _, ok := messageTypeNames[c.Type]; !ok {
		return c, fmt.Errorf("command: unknown message type %d", b[0])
	}
	if len(b) < c.Size() {
		return c, fmt.Errorf("command %s: %w", c.Type, ErrShortBuffer)
	}
	if c.Size() > 1 {
		c.Direction = Direction(b[1])
		if !c.Direction.Valid() {
			return c, fmt.Errorf("command %s: invalid direction %d", c.Type, b[1])
		}
	}
	if c.Size() > 2 {
		c.Distance = b[2]
	}
	return c, nil
}

func (c Command) String() string {
	switch c.Size() {
	case 3:
		return fmt.Sprintf("%s %s x%d", c.Type, c.Direction, c.Distance)
	case 2:
		return fmt.Sprintf("%s %s", c.Type, c.Direction)
	}
	return c.Type.String()
}
