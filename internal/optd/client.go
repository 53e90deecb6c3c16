package optd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/config"
	"github.com/GoSim-25-26J-441/vessel-optimizer/pkg/models"
)

// Client talks to an optimizer daemon over gRPC. NotFound responses wrap
// ErrJobNotFound and InvalidArgument responses wrap ErrInvalidJob.
type Client struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

// Dial creates a client for the daemon at target
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create optimizer client for %s: %w", target, err)
	}
	return &Client{conn: conn, closer: conn.Close}, nil
}

// NewClient wraps an existing connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close releases the connection when the client owns it
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return clientError(err)
	}
	return fromStruct(out, resp)
}

// SubmitJob submits spec and returns the pending job
func (c *Client) SubmitJob(ctx context.Context, spec *config.JobSpec) (models.Job, error) {
	var resp jobResponse
	if err := c.call(ctx, methodSubmitJob, submitRequest{Spec: spec}, &resp); err != nil {
		return models.Job{}, err
	}
	return resp.Job, nil
}

// SubmitJobYAML submits the YAML text of a job spec, validated by the daemon
func (c *Client) SubmitJobYAML(ctx context.Context, yamlText string) (models.Job, error) {
	var resp jobResponse
	if err := c.call(ctx, methodSubmitJob, submitRequest{SpecYAML: yamlText}, &resp); err != nil {
		return models.Job{}, err
	}
	return resp.Job, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (models.Job, error) {
	var resp jobResponse
	if err := c.call(ctx, methodGetJob, jobRequest{JobID: id}, &resp); err != nil {
		return models.Job{}, err
	}
	return resp.Job, nil
}

// ListJobs returns a page of jobs and the number matching status
func (c *Client) ListJobs(ctx context.Context, status models.JobStatus, limit, offset int) ([]models.Job, int, error) {
	var resp listResponse
	req := listRequest{Status: string(status), Limit: limit, Offset: offset}
	if err := c.call(ctx, methodListJobs, req, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Jobs, resp.Total, nil
}

func (c *Client) CancelJob(ctx context.Context, id string) (models.Job, error) {
	var resp jobResponse
	if err := c.call(ctx, methodCancelJob, jobRequest{JobID: id}, &resp); err != nil {
		return models.Job{}, err
	}
	return resp.Job, nil
}

func (c *Client) GetResults(ctx context.Context, id string) (*models.JobResults, error) {
	var resp models.JobResults
	if err := c.call(ctx, methodGetResults, jobRequest{JobID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AnalyzeReliability(ctx context.Context, id string, spec *config.ReliabilitySpec) (models.ReliabilityResult, error) {
	var resp models.ReliabilityResult
	if err := c.call(ctx, methodAnalyzeReliability, reliabilityRequest{JobID: id, Request: spec}, &resp); err != nil {
		return models.ReliabilityResult{}, err
	}
	return resp, nil
}

// StreamProgress calls fn with every snapshot of job id until the terminal
// one has been delivered, fn returns an error, or ctx is done
func (c *Client) StreamProgress(ctx context.Context, id string, fn func(models.ProgressSnapshot) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, &optimizerServiceDesc.Streams[0], methodStreamProgress)
	if err != nil {
		return clientError(err)
	}
	in, err := toStruct(jobRequest{JobID: id})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return clientError(err)
	}
	if err := stream.CloseSend(); err != nil {
		return clientError(err)
	}

	for {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return clientError(err)
		}
		var snap models.ProgressSnapshot
		if err := fromStruct(out, &snap); err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// clientError restores the controller sentinels a status code stands for
func clientError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrJobNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidJob, st.Message())
	}
	return err
}
