package remote

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"tensormart.io/market/artifact"
)

// Server exposes a local artifact.Store over the ArtifactStore service.
type Server struct {
	UnimplementedArtifactStoreServer
	Store artifact.Store
}

func (s *Server) Put(_ context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := s.Store.Put(in.GetValue())
	if err != nil {
		return nil, mapLocal(err)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, artifact.ErrInvalidCID.Error())
	}
	b, err := s.Store.Get(id)
	if err != nil {
		return nil, mapLocal(err)
	}
	// Verify before serving; a corrupt backend must not propagate bytes.
	if err := artifact.Verify(id, b); err != nil {
		return nil, status.Error(codes.DataLoss, artifact.ErrMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing store")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, artifact.ErrInvalidCID.Error())
	}
	return wrapperspb.Bool(s.Store.Has(id)), nil
}

func mapLocal(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, artifact.ErrNotFound):
		return status.Error(codes.NotFound, artifact.ErrNotFound.Error())
	case errors.Is(err, artifact.ErrInvalidCID):
		return status.Error(codes.InvalidArgument, artifact.ErrInvalidCID.Error())
	case errors.Is(err, artifact.ErrMismatch), errors.Is(err, artifact.ErrImmutable):
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return artifact.ErrNotFound
	case codes.InvalidArgument:
		return artifact.ErrInvalidCID
	case codes.DataLoss:
		return artifact.ErrMismatch
	default:
		return err
	}
}
