package surrogate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/vessel-optimizer/internal/design"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/logger"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/utils"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	surrogateServiceName    = "vesselopt.surrogate.v1.SurrogateService"
	surrogateEvaluateMethod = "/" + surrogateServiceName + "/Evaluate"
)

// RemoteOptions configures a RemoteModel
type RemoteOptions struct {
	// RemoteName is the model name on the serving side; defaults to the local name
	RemoteName string
	Timeout    time.Duration
	MaxRetries int
	Backoff    utils.BackoffStrategy
	Breaker    *Breaker
}

// RemoteModel evaluates a model served by another process over gRPC
type RemoteModel struct {
	name string
	conn grpc.ClientConnInterface
	opts RemoteOptions

	closer func() error
}

// DialRemote connects to target and returns a model named name
func DialRemote(name, target string, opts RemoteOptions) (*RemoteModel, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create surrogate client for %s: %w", target, err)
	}
	m := NewRemoteModel(name, conn, opts)
	m.closer = conn.Close
	return m, nil
}

// NewRemoteModel wraps an existing connection
func NewRemoteModel(name string, conn grpc.ClientConnInterface, opts RemoteOptions) *RemoteModel {
	if opts.RemoteName == "" {
		opts.RemoteName = name
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff == nil {
		opts.Backoff = utils.NewExponentialBackoff(50*time.Millisecond, time.Second, 2, true)
	}
	return &RemoteModel{name: name, conn: conn, opts: opts}
}

func (m *RemoteModel) Name() string {
	return m.name
}

// Close releases the underlying connection when the model owns it
func (m *RemoteModel) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}

// Evaluate calls the remote model. Transport failures that survive retries,
// and calls rejected by an open circuit, wrap ErrModelUnavailable.
func (m *RemoteModel) Evaluate(ctx context.Context, params design.Params) (Estimate, error) {
	if b := m.opts.Breaker; b != nil && !b.AllowRequest(m.name, time.Now()) {
		return Estimate{}, fmt.Errorf("%w: %s: circuit open", ErrModelUnavailable, m.name)
	}

	req := encodeRequest(m.opts.RemoteName, params)

	var lastErr error
	for attempt := 0; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying remote surrogate", "model", m.name, "attempt", attempt)
			if err := utils.Wait(ctx, m.opts.Backoff, attempt-1); err != nil {
				return Estimate{}, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, m.name, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
		resp := new(structpb.Struct)
		err := m.conn.Invoke(callCtx, surrogateEvaluateMethod, req, resp)
		cancel()
		if err == nil {
			m.recordSuccess()
			return decodeEstimate(resp)
		}
		lastErr = err
		if !retryable(err) {
			// The service answered; the failure is about this request.
			m.recordSuccess()
			return Estimate{}, fmt.Errorf("surrogate %s: %w", m.name, err)
		}
	}

	if b := m.opts.Breaker; b != nil {
		b.RecordFailure(m.name, time.Now())
	}
	return Estimate{}, fmt.Errorf("%w: %s: %v", ErrModelUnavailable, m.name, lastErr)
}

func (m *RemoteModel) recordSuccess() {
	if b := m.opts.Breaker; b != nil {
		b.RecordSuccess(m.name, time.Now())
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Canceled:
		return true
	}
	return false
}

func encodeRequest(model string, params design.Params) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(params))
	for name, v := range params {
		fields[name] = structpb.NewNumberValue(v)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"model":  structpb.NewStringValue(model),
		"params": structpb.NewStructValue(&structpb.Struct{Fields: fields}),
	}}
}

func decodeEstimate(resp *structpb.Struct) (Estimate, error) {
	value, ok := resp.GetFields()["value"]
	if !ok {
		return Estimate{}, errors.New("surrogate response has no value")
	}
	est := Point(value.GetNumberValue())
	if lower, ok := resp.GetFields()["lower"]; ok {
		est.Lower = lower.GetNumberValue()
	}
	if upper, ok := resp.GetFields()["upper"]; ok {
		est.Upper = upper.GetNumberValue()
	}
	return est, nil
}

// surrogateServiceServer is the server API of the surrogate service
type surrogateServiceServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var surrogateServiceDesc = grpc.ServiceDesc{
	ServiceName: surrogateServiceName,
	HandlerType: (*surrogateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: surrogateEvaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "vesselopt/surrogate/v1/surrogate.proto",
}

func surrogateEvaluateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(surrogateServiceServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: surrogateEvaluateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(surrogateServiceServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegistryServer serves the models of a registry to RemoteModel clients
type RegistryServer struct {
	reg *Registry
}

// RegisterRegistryServer exposes reg on s
func RegisterRegistryServer(s grpc.ServiceRegistrar, reg *Registry) *RegistryServer {
	srv := &RegistryServer{reg: reg}
	s.RegisterService(&surrogateServiceDesc, srv)
	return srv
}

func (s *RegistryServer) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := req.GetFields()["model"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "model is required")
	}
	m, ok := s.reg.Get(name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown surrogate model: %s", name)
	}

	params := make(design.Params)
	for k, v := range req.GetFields()["params"].GetStructValue().GetFields() {
		params[k] = v.GetNumberValue()
	}

	est, err := m.Evaluate(ctx, params)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"value": structpb.NewNumberValue(est.Value),
		"lower": structpb.NewNumberValue(est.Lower),
		"upper": structpb.NewNumberValue(est.Upper),
	}}, nil
}
