package alarm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "alarm.v1.AlarmSubsystem"

// Full method names.
const (
	MethodArm           = "/" + ServiceName + "/Arm"
	MethodDisarm        = "/" + ServiceName + "/Disarm"
	MethodPanic         = "/" + ServiceName + "/Panic"
	MethodVerify        = "/" + ServiceName + "/Verify"
	MethodCancel        = "/" + ServiceName + "/Cancel"
	MethodListIncidents = "/" + ServiceName + "/ListIncidents"
	MethodReportDevice  = "/" + ServiceName + "/ReportDevice"
)

// AlarmSubsystemServer is the server API of alarm.v1.AlarmSubsystem.
type AlarmSubsystemServer interface {
	Arm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Disarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Panic(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListIncidents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReportDevice(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv AlarmSubsystemServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func handler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(
			srv any,
			ctx context.Context,
			dec func(any) error,
			interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			req := new(structpb.Struct)
			if err := dec(req); err != nil {
				return nil, err
			}

			server, _ := srv.(AlarmSubsystemServer)
			if interceptor == nil {
				return call(server, ctx, req)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}

			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				in, _ := req.(*structpb.Struct)

				return call(server, ctx, in)
			})
		},
	}
}

// ServiceDesc describes alarm.v1.AlarmSubsystem.
//
//nolint:gochecknoglobals // gRPC service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmSubsystemServer)(nil),
	Methods: []grpc.MethodDesc{
		handler("Arm", AlarmSubsystemServer.Arm),
		handler("Disarm", AlarmSubsystemServer.Disarm),
		handler("Panic", AlarmSubsystemServer.Panic),
		handler("Verify", AlarmSubsystemServer.Verify),
		handler("Cancel", AlarmSubsystemServer.Cancel),
		handler("ListIncidents", AlarmSubsystemServer.ListIncidents),
		handler("ReportDevice", AlarmSubsystemServer.ReportDevice),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alarm/v1/alarm_subsystem.proto",
}

// RegisterAlarmSubsystemServer registers srv with s.
func RegisterAlarmSubsystemServer(s grpc.ServiceRegistrar, srv AlarmSubsystemServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls alarm.v1.AlarmSubsystem.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient creates a client over conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Invoke calls the unary method with the full name method.
func (c *Client) Invoke(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}
