package grpc

import (
	"context"
	"fmt"

	grpcgo "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ankittk/missioncontrol/internal/gateway"
)

// Server exposes a gateway.Gateway over gRPC.
type Server struct {
	Gateway gateway.Gateway
}

// Register adds the gateway service backed by gw to srv.
func Register(srv *grpcgo.Server, gw gateway.Gateway) {
	srv.RegisterService(&ServiceDesc, &Server{Gateway: gw})
}

type sessionRequest struct {
	SessionKey string `json:"session_key"`
	Message    string `json:"message,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

type listRequest struct {
	Kinds []string `json:"kinds,omitempty"`
	Limit int      `json:"limit,omitempty"`
}

func (s *Server) unary(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	if s.Gateway == nil {
		return nil, status.Error(codes.Internal, "gateway not set")
	}
	out, err := s.dispatch(ctx, method, in)
	if err != nil {
		return nil, toStatus(err)
	}
	st, err := toStruct(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

func (s *Server) dispatch(ctx context.Context, method string, in *structpb.Struct) (any, error) {
	switch method {
	case methodHealth:
		if err := s.Gateway.Health(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	case methodListSessions:
		var req listRequest
		if err := fromStruct(in, &req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		sessions, err := s.Gateway.ListSessions(ctx, req.Kinds, req.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"sessions": sessions}, nil
	case methodSpawn:
		var req gateway.SpawnRequest
		if err := fromStruct(in, &req); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		if req.Task == "" {
			return nil, status.Error(codes.InvalidArgument, "task required")
		}
		return s.Gateway.Spawn(ctx, req)
	}

	var req sessionRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.SessionKey == "" {
		return nil, status.Error(codes.InvalidArgument, "session_key required")
	}
	switch method {
	case methodSendMessage:
		return s.Gateway.SendMessage(ctx, req.SessionKey, req.Message)
	case methodHistory:
		msgs, err := s.Gateway.History(ctx, req.SessionKey, req.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"messages": msgs}, nil
	case methodStop:
		if err := s.Gateway.Stop(ctx, req.SessionKey); err != nil {
			return nil, err
		}
		return map[string]bool{"ok": true}, nil
	}
	return nil, status.Error(codes.Unimplemented, fmt.Sprintf("method %s not implemented", method))
}

func (s *Server) subscribe(in *structpb.Struct, stream grpcgo.ServerStream) error {
	if s.Gateway == nil {
		return status.Error(codes.Internal, "gateway not set")
	}
	var req sessionRequest
	if err := fromStruct(in, &req); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	var sendErr error
	err := s.Gateway.Subscribe(stream.Context(), req.SessionKey, func(ev gateway.SessionEvent) {
		if sendErr != nil {
			return
		}
		st, err := toStruct(ev)
		if err != nil {
			sendErr = status.Error(codes.Internal, err.Error())
			return
		}
		sendErr = stream.SendMsg(st)
	})
	if err != nil {
		return toStatus(err)
	}
	return sendErr
}
