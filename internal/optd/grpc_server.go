package optd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

const (
	optimizerServiceName = "vesselopt.optimizer.v1.OptimizerService"

	methodSubmitJob          = "/" + optimizerServiceName + "/SubmitJob"
	methodGetJob             = "/" + optimizerServiceName + "/GetJob"
	methodListJobs           = "/" + optimizerServiceName + "/ListJobs"
	methodCancelJob          = "/" + optimizerServiceName + "/CancelJob"
	methodGetResults         = "/" + optimizerServiceName + "/GetResults"
	methodAnalyzeReliability = "/" + optimizerServiceName + "/AnalyzeReliability"
	methodStreamProgress     = "/" + optimizerServiceName + "/StreamProgress"
)

// optimizerServiceServer is the server API of the optimizer service. Every
// message is a google.protobuf.Struct holding the JSON form of the matching
// models type.
type optimizerServiceServer interface {
	SubmitJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetResults(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AnalyzeReliability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamProgress(*structpb.Struct, grpc.ServerStream) error
}

var optimizerServiceDesc = grpc.ServiceDesc{
	ServiceName: optimizerServiceName,
	HandlerType: (*optimizerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJob", Handler: unaryHandler(methodSubmitJob, optimizerServiceServer.SubmitJob)},
		{MethodName: "GetJob", Handler: unaryHandler(methodGetJob, optimizerServiceServer.GetJob)},
		{MethodName: "ListJobs", Handler: unaryHandler(methodListJobs, optimizerServiceServer.ListJobs)},
		{MethodName: "CancelJob", Handler: unaryHandler(methodCancelJob, optimizerServiceServer.CancelJob)},
		{MethodName: "GetResults", Handler: unaryHandler(methodGetResults, optimizerServiceServer.GetResults)},
		{MethodName: "AnalyzeReliability", Handler: unaryHandler(methodAnalyzeReliability, optimizerServiceServer.AnalyzeReliability)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamProgress", Handler: streamProgressHandler, ServerStreams: true},
	},
	Metadata: "vesselopt/optimizer/v1/optimizer.proto",
}

type unaryMethod func(optimizerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(optimizerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(optimizerServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamProgressHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(optimizerServiceServer).StreamProgress(in, stream)
}

// OptimizerGRPCServer serves the controller over gRPC
type OptimizerGRPCServer struct {
	Controller *Controller
}

// RegisterOptimizerServer exposes controller on s
func RegisterOptimizerServer(s grpc.ServiceRegistrar, controller *Controller) *OptimizerGRPCServer {
	srv := &OptimizerGRPCServer{Controller: controller}
	s.RegisterService(&optimizerServiceDesc, srv)
	return srv
}

// submitRequest carries either a structured spec or the YAML text of one
type submitRequest struct {
	Spec     *config.JobSpec `json:"spec,omitempty"`
	SpecYAML string          `json:"spec_yaml,omitempty"`
}

type jobRequest struct {
	JobID string `json:"job_id"`
}

type listRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type listResponse struct {
	Jobs  []models.Job `json:"jobs"`
	Total int          `json:"total"`
}

type reliabilityRequest struct {
	JobID   string                  `json:"job_id"`
	Request *config.ReliabilitySpec `json:"request"`
}

type jobResponse struct {
	JobID string     `json:"job_id"`
	Job   models.Job `json:"job"`
}

func (s *OptimizerGRPCServer) SubmitJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req submitRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	spec := req.Spec
	if req.SpecYAML != "" {
		parsed, err := config.ParseJobSpecYAMLString(req.SpecYAML)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		spec = parsed
	}
	if spec == nil {
		return nil, status.Error(codes.InvalidArgument, "spec or spec_yaml is required")
	}

	job, err := s.Controller.Submit(ctx, spec)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("job submitted (gRPC)", "job_id", job.ID)
	return toStruct(jobResponse{JobID: job.ID, Job: job})
}

func (s *OptimizerGRPCServer) GetJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireJobID(in)
	if err != nil {
		return nil, err
	}
	job, err := s.Controller.Get(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(jobResponse{JobID: job.ID, Job: job})
}

func (s *OptimizerGRPCServer) ListJobs(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req listRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f := ListFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" {
		st, ok := models.ParseJobStatus(req.Status)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "unknown status: %s", req.Status)
		}
		f.Status = st
	}
	jobs, total, err := s.Controller.List(ctx, f)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(listResponse{Jobs: jobs, Total: total})
}

func (s *OptimizerGRPCServer) CancelJob(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireJobID(in)
	if err != nil {
		return nil, err
	}
	job, err := s.Controller.Cancel(id)
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("job cancel requested (gRPC)", "job_id", id, "status", job.Status)
	return toStruct(jobResponse{JobID: job.ID, Job: job})
}

func (s *OptimizerGRPCServer) GetResults(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireJobID(in)
	if err != nil {
		return nil, err
	}
	res, err := s.Controller.Results(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

func (s *OptimizerGRPCServer) AnalyzeReliability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req reliabilityRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.JobID == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}
	res, err := s.Controller.AnalyzeReliability(ctx, req.JobID, req.Request)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(res)
}

// StreamProgress sends every snapshot of a job until the terminal one
func (s *OptimizerGRPCServer) StreamProgress(in *structpb.Struct, stream grpc.ServerStream) error {
	id, err := requireJobID(in)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	sub, err := s.Controller.Subscribe(ctx, id)
	if err != nil {
		return grpcError(err)
	}
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			msg, err := toStruct(snap)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func requireJobID(in *structpb.Struct) (string, error) {
	id := in.GetFields()["job_id"].GetStringValue()
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "job_id is required")
	}
	return id, nil
}

// grpcError maps controller errors to status codes
func grpcError(err error) error {
	if errors.Is(err, ErrShuttingDown) {
		return status.Error(codes.Unavailable, err.Error())
	}
	switch ErrorCode(err) {
	case models.ErrorCodeInvalidJob:
		return status.Error(codes.InvalidArgument, err.Error())
	case models.ErrorCodeNotFound:
		return status.Error(codes.NotFound, err.Error())
	case models.ErrorCodeNotCompleted, models.ErrorCodeSamplingFailed:
		return status.Error(codes.FailedPrecondition, err.Error())
	case models.ErrorCodeSurrogateUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts v to a Struct through its JSON form
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// fromStruct decodes the JSON form of in into v
func fromStruct(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
