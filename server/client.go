package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// BotClient is what the Connect and gRPC clients have in common.
type BotClient interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error)
	Setup(ctx context.Context, req *SetupRequest) (*SetupResponse, error)
	ReceiveGameParams(ctx context.Context, req *ReceiveGameParamsRequest) (*ReceiveGameParamsResponse, error)
	Tick(ctx context.Context, req *TickRequest) (*TickResponse, error)
	ReadMemory(ctx context.Context, req *ReadMemoryRequest) (*ReadMemoryResponse, error)
	CloseSession(ctx context.Context, req *CloseSessionRequest) (*CloseSessionResponse, error)
}

var (
	_ BotClient = (*Client)(nil)
	_ BotClient = (*GRPCClient)(nil)
)

// Client talks to a Server with the Connect protocol.
type Client struct {
	createSession     *connect.Client[CreateSessionRequest, CreateSessionResponse]
	setup             *connect.Client[SetupRequest, SetupResponse]
	receiveGameParams *connect.Client[ReceiveGameParamsRequest, ReceiveGameParamsResponse]
	tick              *connect.Client[TickRequest, TickResponse]
	readMemory        *connect.Client[ReadMemoryRequest, ReadMemoryResponse]
	closeSession      *connect.Client[CloseSessionRequest, CloseSessionResponse]
}

// NewClient creates a Connect client for the server at baseURL
// (e.g. "http://127.0.0.1:7470").
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		createSession:     connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		setup:             connect.NewClient[SetupRequest, SetupResponse](httpClient, baseURL+SetupProcedure, opts...),
		receiveGameParams: connect.NewClient[ReceiveGameParamsRequest, ReceiveGameParamsResponse](httpClient, baseURL+ReceiveGameParamsProcedure, opts...),
		tick:              connect.NewClient[TickRequest, TickResponse](httpClient, baseURL+TickProcedure, opts...),
		readMemory:        connect.NewClient[ReadMemoryRequest, ReadMemoryResponse](httpClient, baseURL+ReadMemoryProcedure, opts...),
		closeSession:      connect.NewClient[CloseSessionRequest, CloseSessionResponse](httpClient, baseURL+CloseSessionProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	res, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return unary(ctx, c.createSession, req)
}

func (c *Client) Setup(ctx context.Context, req *SetupRequest) (*SetupResponse, error) {
	return unary(ctx, c.setup, req)
}

func (c *Client) ReceiveGameParams(ctx context.Context, req *ReceiveGameParamsRequest) (*ReceiveGameParamsResponse, error) {
	return unary(ctx, c.receiveGameParams, req)
}

func (c *Client) Tick(ctx context.Context, req *TickRequest) (*TickResponse, error) {
	return unary(ctx, c.tick, req)
}

func (c *Client) ReadMemory(ctx context.Context, req *ReadMemoryRequest) (*ReadMemoryResponse, error) {
	return unary(ctx, c.readMemory, req)
}

func (c *Client) CloseSession(ctx context.Context, req *CloseSessionRequest) (*CloseSessionResponse, error) {
	return unary(ctx, c.closeSession, req)
}

// GRPCClient talks to a Server over plaintext gRPC with the CBOR codec.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to target ("host:port").
func DialGRPC(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &GRPCClient{conn: conn}, nil
}

// Close closes the connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

func invoke[Res any](ctx context.Context, conn *grpc.ClientConn, method string, req any) (*Res, error) {
	res := new(Res)
	if err := conn.Invoke(ctx, method, req, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *GRPCClient) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	return invoke[CreateSessionResponse](ctx, c.conn, CreateSessionProcedure, req)
}

func (c *GRPCClient) Setup(ctx context.Context, req *SetupRequest) (*SetupResponse, error) {
	return invoke[SetupResponse](ctx, c.conn, SetupProcedure, req)
}

func (c *GRPCClient) ReceiveGameParams(ctx context.Context, req *ReceiveGameParamsRequest) (*ReceiveGameParamsResponse, error) {
	return invoke[ReceiveGameParamsResponse](ctx, c.conn, ReceiveGameParamsProcedure, req)
}

func (c *GRPCClient) Tick(ctx context.Context, req *TickRequest) (*TickResponse, error) {
	return invoke[TickResponse](ctx, c.conn, TickProcedure, req)
}

func (c *GRPCClient) ReadMemory(ctx context.Context, req *ReadMemoryRequest) (*ReadMemoryResponse, error) {
	return invoke[ReadMemoryResponse](ctx, c.conn, ReadMemoryProcedure, req)
}

func (c *GRPCClient) CloseSession(ctx context.Context, req *CloseSessionRequest) (*CloseSessionResponse, error) {
	return invoke[CloseSessionResponse](ctx, c.conn, CloseSessionProcedure, req)
}
