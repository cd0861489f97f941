package grpcstore

import (
	"context"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/credledger/cidutil"
	"xdao.co/credledger/logging"
	"xdao.co/credledger/storage"
)

// Server serves a storage.Store over the artifact service.
type Server struct {
	UnimplementedArtifactStoreServer
	Store storage.Store
	Log   logging.Logger
}

func (s *Server) log() logging.Logger {
	if s.Log == nil {
		return logging.Nop()
	}
	return s.Log
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "no store configured")
	}
	b := in.GetValue()
	want, err := cidutil.Sum(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.Store.Put(ctx, b)
	if err != nil {
		s.log().WithField("cid", want.String()).Warnf("put failed: %v", err)
		return nil, toStatus(err)
	}
	if !id.Equals(want) {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	s.log().WithFields(map[string]interface{}{"cid": id.String(), "size": len(b)}).Debug("artifact stored")
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "no store configured")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	b, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s.Store == nil {
		return nil, status.Error(codes.FailedPrecondition, "no store configured")
	}
	id, err := cid.Decode(in.GetValue())
	if err != nil || !id.Defined() {
		return nil, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	ok, err := s.Store.Has(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}
