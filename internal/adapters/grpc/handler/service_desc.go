package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AutomationServiceName    = "engagement.automation.v1.AutomationService"
	EmployeeEventServiceName = "engagement.automation.v1.EmployeeEventService"
	EmployeeServiceName      = "engagement.automation.v1.EmployeeService"
	TimelineServiceName      = "engagement.automation.v1.TimelineService"

	serviceMetadata = "engagement/automation/v1/service.proto"
)

// Service は gRPC サーバーに登録できるハンドラーです。
type Service interface {
	ServiceDesc() *grpc.ServiceDesc
}

// unaryFunc はリクエスト・レスポンスともに Struct を扱う単項 RPC です。
type unaryFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// FullMethod は "/<service>/<method>" 形式のメソッド名を返します。
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}

func unaryMethod(service, method string, call unaryFunc) grpc.MethodDesc {
	fullMethod := FullMethod(service, method)

	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			next := func(ctx context.Context, req any) (any, error) {
				return call(ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}, next)
		},
	}
}

func serviceDesc(name string, methods ...grpc.MethodDesc) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: name,
		HandlerType: (*any)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
		Metadata:    serviceMetadata,
	}
}
