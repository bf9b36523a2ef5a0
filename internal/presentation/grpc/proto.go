package grpc

// proto.go holds the service descriptor for fraudscoring.v1.FraudScoringService.
// Messages travel with the JSON codec registered in json_codec.go, so no
// generated protobuf types are involved.

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const serviceName = "fraudscoring.v1.FraudScoringService"

// Full method names, as seen by interceptors.
const (
	MethodScore            = "/" + serviceName + "/Score"
	MethodTrain            = "/" + serviceName + "/Train"
	MethodListTrainingRuns = "/" + serviceName + "/ListTrainingRuns"
)

// FraudScoringServiceServer is the server API for FraudScoringService.
type FraudScoringServiceServer interface {
	Score(context.Context, *ScoreRequest) (*ScoreResponse, error)
	Train(context.Context, *TrainRequest) (*TrainResponse, error)
	ListTrainingRuns(context.Context, *ListTrainingRunsRequest) (*ListTrainingRunsResponse, error)
	mustEmbedUnimplementedFraudScoringServiceServer()
}

// UnimplementedFraudScoringServiceServer provides forward-compatible default implementations.
type UnimplementedFraudScoringServiceServer struct{}

func (UnimplementedFraudScoringServiceServer) Score(context.Context, *ScoreRequest) (*ScoreResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Score not implemented")
}
func (UnimplementedFraudScoringServiceServer) Train(context.Context, *TrainRequest) (*TrainResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Train not implemented")
}
func (UnimplementedFraudScoringServiceServer) ListTrainingRuns(context.Context, *ListTrainingRunsRequest) (*ListTrainingRunsResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListTrainingRuns not implemented")
}
func (UnimplementedFraudScoringServiceServer) mustEmbedUnimplementedFraudScoringServiceServer() {}

// RegisterFraudScoringServiceServer registers srv with the gRPC server.
func RegisterFraudScoringServiceServer(s grpclib.ServiceRegistrar, srv FraudScoringServiceServer) {
	s.RegisterService(&fraudScoringServiceDesc, srv)
}

var fraudScoringServiceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FraudScoringServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "Score", Handler: scoreHandler},
		{MethodName: "Train", Handler: trainHandler},
		{MethodName: "ListTrainingRuns", Handler: listTrainingRunsHandler},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "fraudscoring/v1/fraudscoring.proto",
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(ScoreRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FraudScoringServiceServer).Score(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodScore}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FraudScoringServiceServer).Score(ctx, req.(*ScoreRequest))
	})
}

func trainHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(TrainRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FraudScoringServiceServer).Train(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodTrain}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FraudScoringServiceServer).Train(ctx, req.(*TrainRequest))
	})
}

func listTrainingRunsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
	req := new(ListTrainingRunsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FraudScoringServiceServer).ListTrainingRuns(ctx, req)
	}
	info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: MethodListTrainingRuns}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return srv.(FraudScoringServiceServer).ListTrainingRuns(ctx, req.(*ListTrainingRunsRequest))
	})
}
