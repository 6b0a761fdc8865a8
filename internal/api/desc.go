package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "quickchat.v1.ChatService"

const (
	MethodSignUp          = "SignUp"
	MethodSignIn          = "SignIn"
	MethodSignOut         = "SignOut"
	MethodWhoAmI          = "WhoAmI"
	MethodListMessages    = "ListMessages"
	MethodSendMessage     = "SendMessage"
	MethodMarkRead        = "MarkRead"
	MethodDeleteMessage   = "DeleteMessage"
	MethodSearchMessages  = "SearchMessages"
	MethodReplaceContacts = "ReplaceContacts"
	MethodMatchContacts   = "MatchContacts"
	MethodListProfiles    = "ListProfiles"
	MethodGetProfile      = "GetProfile"
	MethodUpdateProfile   = "UpdateProfile"
	MethodWatchMessages   = "WatchMessages"
)

// FullMethod returns the gRPC path of a ChatService method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// publicMethods can be called without a bearer token.
var publicMethods = map[string]bool{
	FullMethod(MethodSignUp): true,
	FullMethod(MethodSignIn): true,
}

type chatServer interface {
	isChatServer()
}

func (*ChatService) isChatServer() {}

// unary adapts a typed handler to grpc.MethodDesc and maps its error to a status.
func unary[Req, Resp any](name string, call func(*ChatService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(srv.(*ChatService), ctx, req.(*Req))
				if err != nil {
					return nil, toStatus(err)
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}, handler)
		},
	}
}

var watchStream = grpc.StreamDesc{
	StreamName:    MethodWatchMessages,
	ServerStreams: true,
	Handler: func(srv any, stream grpc.ServerStream) error {
		in := new(WatchRequest)
		if err := stream.RecvMsg(in); err != nil {
			return err
		}
		return srv.(*ChatService).WatchMessages(in, stream)
	},
}

// ServiceDesc describes ChatService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*chatServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSignUp, (*ChatService).SignUp),
		unary(MethodSignIn, (*ChatService).SignIn),
		unary(MethodSignOut, (*ChatService).SignOut),
		unary(MethodWhoAmI, (*ChatService).WhoAmI),
		unary(MethodListMessages, (*ChatService).ListMessages),
		unary(MethodSendMessage, (*ChatService).SendMessage),
		unary(MethodMarkRead, (*ChatService).MarkRead),
		unary(MethodDeleteMessage, (*ChatService).DeleteMessage),
		unary(MethodSearchMessages, (*ChatService).SearchMessages),
		unary(MethodReplaceContacts, (*ChatService).ReplaceContacts),
		unary(MethodMatchContacts, (*ChatService).MatchContacts),
		unary(MethodListProfiles, (*ChatService).ListProfiles),
		unary(MethodGetProfile, (*ChatService).GetProfile),
		unary(MethodUpdateProfile, (*ChatService).UpdateProfile),
	},
	Streams:  []grpc.StreamDesc{watchStream},
	Metadata: "quickchat/v1/chat.json",
}

// Register attaches svc to srv.
func Register(srv *grpc.Server, svc *ChatService) {
	srv.RegisterService(&ServiceDesc, svc)
}
