package engine

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// InferenceService is the gRPC service name of a remote engine.
const InferenceService = "tts.v1.Inference"

// codecName is the content subtype engine calls are sent with. Messages are
// plain JSON, so engines need no generated stubs.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// RPC method names, keyed by operation.
var methods = map[string]string{
	opInfo:     "Info",
	opSplit:    "Split",
	opFeatures: "Features",
	opInfer:    "Infer",
}

func fullMethod(op string) string {
	return "/" + InferenceService + "/" + methods[op]
}

// RegisterInferenceServer exposes model as InferenceService on s.
func RegisterInferenceServer(s grpc.ServiceRegistrar, model Model) {
	desc := grpc.ServiceDesc{
		ServiceName: InferenceService,
		HandlerType: (*Model)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "tts/v1/inference",
	}
	for _, op := range []string{opInfo, opSplit, opFeatures, opInfer} {
		desc.Methods = append(desc.Methods, methodDesc(op))
	}
	s.RegisterService(&desc, model)
}

func methodDesc(op string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: methods[op],
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(request)
			if err := dec(req); err != nil {
				return nil, err
			}
			req.Op = op

			call := func(ctx context.Context, in any) (any, error) {
				resp, err := handle(ctx, srv.(Model), *in.(*request))
				if err != nil {
					return nil, toStatus(err)
				}
				return &resp, nil
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(op)}
			return interceptor(ctx, req, info, call)
		},
	}
}

func toStatus(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}
