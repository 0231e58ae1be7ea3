package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alfredjeanlab/tracker/internal/bulk"
	"github.com/alfredjeanlab/tracker/internal/model"
	"github.com/alfredjeanlab/tracker/internal/query"
)

// ServiceName is the full name of the gRPC issues service.
const ServiceName = "tracker.v1.IssuesService"

// MetadataUser is the gRPC metadata key carrying the caller login.
const MetadataUser = "x-tracker-user"

// IssuesServiceServer is the gRPC issues service. Requests and responses
// are Structs shaped like the JSON bodies of the HTTP API.
type IssuesServiceServer interface {
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BulkChange(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransitions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DoTransition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SecurityReport(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchTags(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SearchAuthors(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reindex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Health(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpcMethod func(IssuesServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call rpcMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IssuesServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(IssuesServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// IssuesServiceDesc describes the issues service for grpc.Server.RegisterService.
var IssuesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IssuesServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Search", IssuesServiceServer.Search),
		unaryMethod("BulkChange", IssuesServiceServer.BulkChange),
		unaryMethod("ListTransitions", IssuesServiceServer.ListTransitions),
		unaryMethod("DoTransition", IssuesServiceServer.DoTransition),
		unaryMethod("SecurityReport", IssuesServiceServer.SecurityReport),
		unaryMethod("SearchTags", IssuesServiceServer.SearchTags),
		unaryMethod("SearchAuthors", IssuesServiceServer.SearchAuthors),
		unaryMethod("Reindex", IssuesServiceServer.Reindex),
		unaryMethod("Health", IssuesServiceServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tracker/v1/issues.proto",
}

// NewGRPCServer creates a gRPC server with standard interceptors,
// registers the issues service and reflection, and returns the server ready
// to serve.
func NewGRPCServer(ts *TrackerServer, authToken string) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor,
			LoggingInterceptor,
			AuthInterceptor(authToken),
		),
	)

	srv.RegisterService(&IssuesServiceDesc, &grpcService{ts: ts})
	reflection.Register(srv)

	return srv
}

// grpcService adapts TrackerServer to IssuesServiceServer.
type grpcService struct {
	ts *TrackerServer
}

var _ IssuesServiceServer = (*grpcService)(nil)

// caller resolves the caller named in the incoming metadata.
func (g *grpcService) caller(ctx context.Context) (*model.Caller, error) {
	var login string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(MetadataUser); len(v) > 0 {
			login = v[0]
		}
	}
	return g.ts.resolveCaller(ctx, login)
}

// serve decodes in into req, resolves the caller, runs fn and encodes the
// result.
func serve[Req, Resp any](ctx context.Context, g *grpcService, in *structpb.Struct, fn func(context.Context, *Req, *model.Caller) (Resp, error)) (*structpb.Struct, error) {
	req := new(Req)
	if err := fromStruct(in, req); err != nil {
		return nil, grpcError(err)
	}
	caller, err := g.caller(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	resp, err := fn(ctx, req, caller)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := toStruct(resp)
	return out, grpcError(err)
}

func (g *grpcService) Search(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, g.ts.search.Search)
}

func (g *grpcService) BulkChange(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, func(ctx context.Context, q *bulk.Query, caller *model.Caller) (*bulk.Result, error) {
		return g.ts.bulk.Execute(ctx, *q, caller)
	})
}

type issueRequest struct {
	Issue string `json:"issue"`
}

func (g *grpcService) ListTransitions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, func(ctx context.Context, req *issueRequest, caller *model.Caller) (*TransitionsResult, error) {
		if req.Issue == "" {
			return nil, model.Invalid("issue", "missing parameter: 'issue'")
		}
		return g.ts.listTransitions(ctx, req.Issue, caller)
	})
}

func (g *grpcService) DoTransition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, g.ts.doTransition)
}

func (g *grpcService) SecurityReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, func(ctx context.Context, req *query.ReportRequest, caller *model.Caller) (*SecurityReportResult, error) {
		cats, err := g.ts.search.SecurityReport(ctx, req, caller)
		if err != nil {
			return nil, err
		}
		return &SecurityReportResult{Standard: req.Standard, Categories: cats}, nil
	})
}

func (g *grpcService) SearchTags(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, func(ctx context.Context, req *query.ValuesRequest, caller *model.Caller) (*ValuesResult, error) {
		vals, err := g.ts.search.Tags(ctx, req, caller)
		if err != nil {
			return nil, err
		}
		return &ValuesResult{Values: nonNil(vals)}, nil
	})
}

func (g *grpcService) SearchAuthors(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, func(ctx context.Context, req *query.ValuesRequest, caller *model.Caller) (*ValuesResult, error) {
		vals, err := g.ts.search.Authors(ctx, req, caller)
		if err != nil {
			return nil, err
		}
		return &ValuesResult{Values: nonNil(vals)}, nil
	})
}

func (g *grpcService) Reindex(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return serve(ctx, g, in, g.ts.Reindex)
}

// Health needs neither a caller nor the store.
func (g *grpcService) Health(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"status": "ok"})
}
