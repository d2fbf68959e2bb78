package ingestHandler

import (
	"context"

	"google.golang.org/grpc"

	"artifact-review/pkg/rpc"
)

const ServiceName = "artifactreview.IngestionService"

func unaryHandler[Req any](method string, call func(IngestionServer, context.Context, *Req) (any, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IngestionServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(IngestionServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the operator service. Messages travel with the
// JSON codec from pkg/rpc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestionServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Process", func(s IngestionServer, ctx context.Context, in *ProcessRequest) (any, error) {
			return s.Process(ctx, in)
		}),
		unaryHandler("Fail", func(s IngestionServer, ctx context.Context, in *FailRequest) (any, error) {
			return s.Fail(ctx, in)
		}),
		unaryHandler("Status", func(s IngestionServer, ctx context.Context, in *StatusRequest) (any, error) {
			return s.Status(ctx, in)
		}),
	},
	Metadata: "artifactreview/ingestion",
}

func Register(s grpc.ServiceRegistrar, srv IngestionServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls the operator service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{rpc.CallOption()}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Process(ctx context.Context, in *ProcessRequest, opts ...grpc.CallOption) (*ProcessResponse, error) {
	return invoke[ProcessResponse](ctx, c.cc, "Process", in, opts)
}

func (c *Client) Fail(ctx context.Context, in *FailRequest, opts ...grpc.CallOption) (*FailResponse, error) {
	return invoke[FailResponse](ctx, c.cc, "Fail", in, opts)
}

func (c *Client) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c.cc, "Status", in, opts)
}
