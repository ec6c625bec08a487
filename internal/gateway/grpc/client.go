package grpc

import (
	"context"
	"errors"
	"io"

	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ankittk/missioncontrol/internal/gateway"
	"github.com/ankittk/missioncontrol/internal/retry"
)

// Client is a gateway.Gateway that calls a gRPC gateway server. Every call
// goes through Retry.
type Client struct {
	Conn  grpcgo.ClientConnInterface
	Retry *retry.Executor

	closer io.Closer
}

var _ gateway.Gateway = (*Client)(nil)

// Dial connects to addr (e.g. "localhost:50051"). Without options the
// connection is insecure.
func Dial(addr string, exec *retry.Executor, opts ...grpcgo.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpcgo.DialOption{grpcgo.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpcgo.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{Conn: conn, Retry: exec, closer: conn}, nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) invoke(ctx context.Context, sentinel error, method string, req, out any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	err = c.Retry.Run(ctx, func(ctx context.Context) error {
		resp := new(structpb.Struct)
		if err := c.Conn.Invoke(ctx, fullMethod(method), in, resp); err != nil {
			return err
		}
		if out == nil {
			return nil
		}
		return fromStruct(resp, out)
	})
	return fromStatus(sentinel, err)
}

func (c *Client) Health(ctx context.Context) error {
	return c.invoke(ctx, gateway.ErrNotConnected, methodHealth, struct{}{}, nil)
}

func (c *Client) ListSessions(ctx context.Context, kinds []string, limit int) ([]gateway.SessionInfo, error) {
	var out struct {
		Sessions []gateway.SessionInfo `json:"sessions"`
	}
	if err := c.invoke(ctx, gateway.ErrInvalidResponse, methodListSessions, listRequest{Kinds: kinds, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) Spawn(ctx context.Context, req gateway.SpawnRequest) (gateway.SpawnResponse, error) {
	var out gateway.SpawnResponse
	if err := c.invoke(ctx, gateway.ErrSpawnFailed, methodSpawn, req, &out); err != nil {
		return gateway.SpawnResponse{}, err
	}
	return out, nil
}

func (c *Client) SendMessage(ctx context.Context, sessionKey, message string) (gateway.MessageResponse, error) {
	var out gateway.MessageResponse
	req := sessionRequest{SessionKey: sessionKey, Message: message}
	if err := c.invoke(ctx, gateway.ErrMessageFailed, methodSendMessage, req, &out); err != nil {
		return gateway.MessageResponse{}, err
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, sessionKey string, limit int) ([]gateway.HistoryMessage, error) {
	var out struct {
		Messages []gateway.HistoryMessage `json:"messages"`
	}
	req := sessionRequest{SessionKey: sessionKey, Limit: limit}
	if err := c.invoke(ctx, gateway.ErrInvalidResponse, methodHistory, req, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Stop(ctx context.Context, sessionKey string) error {
	return c.invoke(ctx, gateway.ErrStopFailed, methodStop, sessionRequest{SessionKey: sessionKey}, nil)
}

// Subscribe opens the event stream (retried until the server accepts it)
// and delivers events to fn until the stream ends or ctx is done.
func (c *Client) Subscribe(ctx context.Context, sessionKey string, fn func(gateway.SessionEvent)) error {
	in, err := toStruct(sessionRequest{SessionKey: sessionKey})
	if err != nil {
		return err
	}
	stream, err := retry.Call(ctx, c.Retry, func(ctx context.Context) (grpcgo.ClientStream, error) {
		s, err := c.Conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod(streamSubscribe))
		if err != nil {
			return nil, err
		}
		if err := s.SendMsg(in); err != nil {
			return nil, err
		}
		if err := s.CloseSend(); err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return fromStatus(gateway.ErrSubscribeFailed, err)
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fromStatus(gateway.ErrSubscribeFailed, err)
		}
		var ev gateway.SessionEvent
		if err := fromStruct(msg, &ev); err != nil {
			return err
		}
		fn(ev)
	}
}
