package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeader(t *testing.T) {
	b := make([]byte, HeaderSize)
	copy(b, "mruby/edge wasmbot")
	b[28] = 1

	h, err := DecodeHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if h.BotName() != "mruby/edge wasmbot" {
		t.Errorf("name = %q", h.BotName())
	}
	if h.VersionString() != "0.1.0" {
		t.Errorf("version = %s", h.VersionString())
	}

	out := make([]byte, HeaderSize)
	if err := h.Encode(out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, b) {
		t.Errorf("encoded = %v, want %v", out, b)
	}

	if _, err := DecodeHeader(b[:20]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short decode err = %v", err)
	}
}

func TestGameParametersLayout(t *testing.T) {
	p := GameParameters{
		Version:          1,
		EngineVersion:    [3]uint16{0, 4, 2},
		DiagonalMovement: true,
		PlayerStride:     1,
		PlayerOpenReach:  2,
	}
	b := make([]byte, GameParametersSize)
	if err := p.Encode(b); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 0, 0, 0, 4, 0, 2, 0, 1, 1, 2}
	if !bytes.Equal(b, want) {
		t.Errorf("encoded = %v, want %v", b, want)
	}
	got, err := DecodeGameParameters(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Errorf("decoded = %+v", got)
	}
	if err := p.Encode(b[:5]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("short encode err = %v", err)
	}
}

func TestCircumstancesLayout(t *testing.T) {
	c := Circumstances{
		LastTickDuration: 0x01020304,
		LastMoveResult:   MoveFailed,
		HitPoints:        300,
		Surroundings:     []TileType{TileFloor, TileWall, TileClosedDoor},
	}
	b := make([]byte, c.Size())
	if err := c.Encode(b); err != nil {
		t.Fatal(err)
	}
	want := []byte{4, 3, 2, 1, 1, 0x2C, 0x01, 3, 0, 1, 4, 3}
	if !bytes.Equal(b, want) {
		t.Errorf("encoded = %v, want %v", b, want)
	}

	got, err := DecodeCircumstances(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastTickDuration != c.LastTickDuration || got.LastMoveResult != c.LastMoveResult ||
		got.HitPoints != c.HitPoints || len(got.Surroundings) != 3 || got.Surroundings[1] != TileWall {
		t.Errorf("decoded = %+v", got)
	}

	if _, err := DecodeCircumstances(b[:10]); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("truncated tiles err = %v", err)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		data []byte
		want Command
		str  string
	}{
		{[]byte{6, 0, 1}, Command{Type: MessageMoveTo, Direction: North, Distance: 1}, "MoveTo North x1"},
		{[]byte{7, 2}, Command{Type: MessageOpen, Direction: East}, "Open East"},
		{[]byte{4}, Command{Type: MessageWait}, "Wait"},
		{[]byte{5, 9, 9}, Command{Type: MessageResign}, "Resign"},
	}
	for _, tt := range tests {
		got, err := DecodeCommand(tt.data)
		if err != nil {
			t.Errorf("DecodeCommand(%v): %v", tt.data, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DecodeCommand(%v) = %+v, want %+v", tt.data, got, tt.want)
		}
		if got.String() != tt.str {
			t.Errorf("String() = %q, want %q", got.String(), tt.str)
		}
		b := make([]byte, got.Size())
		if err := got.Encode(b); err != nil || !bytes.Equal(b, tt.data[:got.Size()]) {
			t.Errorf("Encode = %v, %v", b, err)
		}
	}

	for _, bad := range [][]byte{{}, {0}, {42}, {6, 0}, {6, 8, 1}} {
		if _, err := DecodeCommand(bad); err == nil {
			t.Errorf("DecodeCommand(%v) succeeded", bad)
		}
	}
}

func TestEnumNames(t *testing.T) {
	if MessageMoveTo.String() != "MoveTo" || MessageType(99).String() != "MessageType(99)" {
		t.Error("MessageType names")
	}
	if Northwest.String() != "Northwest" || Direction(8).Valid() {
		t.Error("Direction names")
	}
	if TileClosedDoor.String() != "ClosedDoor" || MoveInvalid.String() != "Invalid" || LogWarn.String() != "warn" {
		t.Error("enum names")
	}
}
