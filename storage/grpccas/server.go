package grpccas

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/nfa/cidutil"
	"xdao.co/nfa/storage"
)

// Server exposes a storage.CAS over gRPC. It re-checks content addressing
// on both paths so a corrupt backend cannot serve wrong bytes.
type Server struct {
	UnimplementedCASServer
	CAS    storage.CAS
	Logger zerolog.Logger
}

func (s *Server) Put(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	b := in.GetValue()
	expected, err := cidutil.RawSHA256(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	id, err := s.CAS.Put(ctx, b)
	if err != nil {
		s.Logger.Warn().Err(err).Int("bytes", len(b)).Msg("put failed")
		return nil, mapErr(err)
	}
	if id != expected {
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	s.Logger.Debug().Str("cid", id.String()).Int("bytes", len(b)).Msg("put")
	return wrapperspb.String(id.String()), nil
}

func (s *Server) Get(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.CAS.Get(ctx, id)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.Logger.Warn().Err(err).Str("cid", id.String()).Msg("get failed")
		}
		return nil, mapErr(err)
	}
	got, err := cidutil.RawSHA256(b)
	if err != nil {
		return nil, status.Error(codes.Internal, "cid computation failed")
	}
	if got != id {
		s.Logger.Error().Str("cid", id.String()).Str("got", got.String()).Msg("backend returned bytes for a different cid")
		return nil, status.Error(codes.DataLoss, storage.ErrCIDMismatch.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if s == nil || s.CAS == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing CAS")
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	ok, err := s.CAS.Has(ctx, id)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bool(ok), nil
}

func decodeCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}
