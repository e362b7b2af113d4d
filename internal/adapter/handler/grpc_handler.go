package handler

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const orderServiceName = "storefront.v1.OrderService"

type CreateOrderRequest struct {
	ShippingAddress string               `json:"shippingAddress"`
	PaymentMethod   domain.PaymentMethod `json:"paymentMethod"`
	Items           []domain.LineItem    `json:"items"`
}

type OrderIDRequest struct {
	OrderID int64 `json:"orderId"`
}

type OrderResponse struct {
	Order *domain.Order `json:"order"`
}

type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error)
	CancelOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error)
	GetOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error)
}

func unaryHandler[Req any](method string, call func(OrderServiceServer, context.Context, *Req) (*OrderResponse, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + orderServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler:    unaryHandler("CreateOrder", OrderServiceServer.CreateOrder),
		},
		{
			MethodName: "CancelOrder",
			Handler:    unaryHandler("CancelOrder", OrderServiceServer.CancelOrder),
		},
		{
			MethodName: "GetOrder",
			Handler:    unaryHandler("GetOrder", OrderServiceServer.GetOrder),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/order.proto",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// OrderServiceClient calls the order service with the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+orderServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return c.invoke(ctx, "CreateOrder", in, opts...)
}

func (c *OrderServiceClient) CancelOrder(ctx context.Context, in *OrderIDRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return c.invoke(ctx, "CancelOrder", in, opts...)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *OrderIDRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return c.invoke(ctx, "GetOrder", in, opts...)
}

type GRPCHandler struct {
	orders OrderUseCase
	logger *zap.Logger
}

func NewGRPCHandler(orders OrderUseCase, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orders: orders, logger: logger}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	id, err := grpcIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.CreateOrder(ctx, domain.CreateOrderInput{
		UserID:          id.UserID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Items:           req.Items,
	})
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &OrderResponse{Order: order}, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error) {
	id, err := grpcIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.CancelOrder(ctx, id.UserID, req.OrderID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &OrderResponse{Order: order}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *OrderIDRequest) (*OrderResponse, error) {
	id, err := grpcIdentity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.GetOrder(ctx, id.UserID, req.OrderID)
	if err != nil {
		return nil, h.toStatus(ctx, err)
	}
	return &OrderResponse{Order: order}, nil
}

// ErrorKindTrailer carries the domain error kind next to the status code.
const ErrorKindTrailer = "x-error-kind"

func grpcCode(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindAlreadyExists:
		return codes.AlreadyExists
	case domain.KindInsufficientStock, domain.KindInvalidState:
		return codes.FailedPrecondition
	case domain.KindAuth:
		return codes.Unauthenticated
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindRateLimit:
		return codes.ResourceExhausted
	case domain.KindTransientStore:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func (h *GRPCHandler) toStatus(ctx context.Context, err error) error {
	var de *domain.Error
	if !errors.As(err, &de) {
		h.logger.Error("unhandled grpc error", zap.Error(err))
		return status.Error(codes.Internal, "internal server error")
	}
	_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorKindTrailer, string(de.Kind)))
	code := grpcCode(de.Kind)
	if code == codes.Internal || code == codes.Unavailable {
		h.logger.Error("grpc request failed", zap.String("kind", string(de.Kind)), zap.Error(err))
	}
	return status.Error(code, de.Message)
}

type identityCtxKey struct{}

func grpcIdentity(ctx context.Context) (*domain.Identity, error) {
	id, ok := ctx.Value(identityCtxKey{}).(*domain.Identity)
	if !ok || id == nil {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return id, nil
}

// AuthUnaryInterceptor verifies the bearer token in the "authorization"
// metadata and puts the caller's identity on the context.
func AuthUnaryInterceptor(tokens port.TokenIssuer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		token, ok := strings.CutPrefix(values[0], "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		id, err := tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(context.WithValue(ctx, identityCtxKey{}, id), req)
	}
}

// LoggingUnaryInterceptor logs each call with its status code.
func LoggingUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{zap.String("method", info.FullMethod), zap.String("code", code.String())}
		if code == codes.Internal || code == codes.Unavailable || code == codes.Unknown {
			logger.Error("grpc request", fields...)
		} else {
			logger.Info("grpc request", fields...)
		}
		return resp, err
	}
}
