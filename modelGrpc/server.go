package modelGrpc

import (
	"context"
	"time"

	"dstg/gui"
	"dstg/state"
	"dstg/stateManager"

	"github.com/golang/protobuf/ptypes/empty"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Grants exclusive access to the state manager of a session.
type Viewer interface {
	View(f func(m *stateManager.Manager) error) error
}

type Server struct {
	model Viewer
	log   *zap.Logger
}

func NewServer(model Viewer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{model: model, log: log}
}

// Register the query service on the registrar.
func (s *Server) Register(reg grpc.ServiceRegistrar) {
	reg.RegisterService(&ServiceDesc, s)
}

// Create a gRPC server that logs every query and serves the query service.
func (s *Server) GRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.UnaryInterceptor(UnaryLoggingInterceptor(s.log)))
	srv := grpc.NewServer(opts...)
	s.Register(srv)
	return srv
}

func (s *Server) StateOf(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	var out *structpb.Struct
	err := s.model.View(func(m *stateManager.Manager) error {
		as := m.State(req.GetValue())
		if as == nil {
			as = m.StateOf(gui.StateID(req.GetValue()))
		}
		if as == nil {
			return status.Errorf(codes.NotFound, "no abstract state or snapshot with id %q", req.GetValue())
		}
		var err error
		out, err = structpb.NewStruct(stateFields(as))
		return err
	})
	return out, toStatus(err)
}

func (s *Server) ListStates(ctx context.Context, _ *empty.Empty) (*structpb.ListValue, error) {
	var out *structpb.ListValue
	err := s.model.View(func(m *stateManager.Manager) error {
		states := []interface{}{}
		for _, as := range m.States(true) {
			states = append(states, stateFields(as))
		}
		var err error
		out, err = structpb.NewList(states)
		return err
	})
	return out, toStatus(err)
}

func (s *Server) Transitions(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	var out *structpb.ListValue
	err := s.model.View(func(m *stateManager.Manager) error {
		as := m.State(req.GetValue())
		if as == nil {
			return status.Errorf(codes.NotFound, "no abstract state with id %q", req.GetValue())
		}
		transitions := []interface{}{}
		for _, t := range as.Transitions() {
			transitions = append(transitions, transitionFields(t))
		}
		var err error
		out, err = structpb.NewList(transitions)
		return err
	})
	return out, toStatus(err)
}

func stateFields(as *state.AbstractState) map[string]interface{} {
	members := []interface{}{}
	for _, id := range as.GUIStates() {
		members = append(members, string(id))
	}
	avms := []interface{}{}
	for _, id := range as.AVMIDs() {
		avms = append(avms, string(id))
	}
	return map[string]interface{}{
		"id":                as.ID(),
		"window":            as.Window.ID,
		"activity":          as.Activity,
		"rotation":          as.Rotation.String(),
		"internet":          as.Internet.String(),
		"virtual":           as.IsVirtual(),
		"homeScreen":        as.IsHomeScreen,
		"loadedFromHistory": as.LoadedFromHistory,
		"guiStates":         members,
		"avms":              avms,
		"transitions":       len(as.Transitions()),
	}
}

func transitionFields(t *state.AbstractTransition) map[string]interface{} {
	interactions := []interface{}{}
	for _, in := range t.Interactions() {
		interactions = append(interactions, in.ID)
	}
	fields := map[string]interface{}{
		"source":       t.Source.ID(),
		"dest":         t.Dest.ID(),
		"destWindow":   t.Dest.Window.ID,
		"action":       t.Action.String(),
		"implicit":     t.IsImplicit,
		"interactions": interactions,
		"statements":   len(t.Statements()),
		"methods":      len(t.Methods()),
	}
	if t.Data != "" {
		fields["data"] = t.Data
	}
	if t.Guard != "" {
		fields["guard"] = t.Guard
	}
	if t.PrevWindow != nil {
		fields["prevWindow"] = t.PrevWindow.ID
	}
	return fields
}

// Errors that are not already a status become Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// Create a UnaryServerInterceptor that logs the method, status code and duration of every call.
func UnaryLoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Stringer("code", code),
			zap.Duration("duration", time.Since(start)),
		}
		if code == codes.OK || code == codes.NotFound {
			log.Debug("handled query", fields...)
		} else {
			log.Warn("query failed", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
