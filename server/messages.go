package server

// Procedure paths of BotService.
const (
	ServiceName = "rbot.v1.BotService"

	CreateSessionProcedure     = "/" + ServiceName + "/CreateSession"
	SetupProcedure             = "/" + ServiceName + "/Setup"
	ReceiveGameParamsProcedure = "/" + ServiceName + "/ReceiveGameParams"
	TickProcedure              = "/" + ServiceName + "/Tick"
	ReadMemoryProcedure        = "/" + ServiceName + "/ReadMemory"
	CloseSessionProcedure      = "/" + ServiceName + "/CloseSession"
)

// CreateSessionRequest loads a program into a new bot. Image, when set,
// is an .rbi image; otherwise Program names a built-in sample.
type CreateSessionRequest struct {
	Name    string `cbor:"1,keyasint,omitempty"`
	Program string `cbor:"2,keyasint,omitempty"`
	Image   []byte `cbor:"3,keyasint,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `cbor:"1,keyasint"`
	Program   string `cbor:"2,keyasint"`
}

// SetupRequest calls the bot's clientInitialize and then setup(size).
type SetupRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Size      int    `cbor:"2,keyasint"`
}

type SetupResponse struct {
	BotName    string    `cbor:"1,keyasint"`
	Version    [3]uint16 `cbor:"2,keyasint"`
	MemorySize int       `cbor:"3,keyasint"`
	Steps      int64     `cbor:"4,keyasint"`
}

// ReceiveGameParamsRequest writes Data (encoded GameParameters) at
// Offset and calls receiveGameParams(offset).
type ReceiveGameParamsRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Offset    int    `cbor:"2,keyasint"`
	Data      []byte `cbor:"3,keyasint"`
}

type ReceiveGameParamsResponse struct {
	Accepted bool  `cbor:"1,keyasint"`
	Steps    int64 `cbor:"2,keyasint"`
}

// TickRequest writes Data (encoded Circumstances) at Offset and calls
// tick(offset).
type TickRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Offset    int    `cbor:"2,keyasint"`
	Data      []byte `cbor:"3,keyasint"`
}

// TickResponse carries the command the bot wrote at offset 0.
type TickResponse struct {
	Tick    int64  `cbor:"1,keyasint"`
	Command []byte `cbor:"2,keyasint"`
	Steps   int64  `cbor:"3,keyasint"`
}

type ReadMemoryRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Offset    int    `cbor:"2,keyasint"`
	Length    int    `cbor:"3,keyasint"`
}

type ReadMemoryResponse struct {
	Data []byte `cbor:"1,keyasint"`
}

type CloseSessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type CloseSessionResponse struct {
	Ticks int64 `cbor:"1,keyasint"`
}
