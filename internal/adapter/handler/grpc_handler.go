package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/core/service"
)

const orderServiceName = "shop.v1.OrderService"

type ListOrdersRequest struct{}

type ListOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

type GetOrderRequest struct {
	ID string `json:"id" validate:"required"`
}

type CreateOrderRequest struct {
	CustomerID string             `json:"customerId" validate:"required"`
	Items      []domain.OrderLine `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	ID     string             `json:"id" validate:"required"`
	Status domain.OrderStatus `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
}

type OrderResponse struct {
	Order domain.Order `json:"order"`
}

// OrderServiceServer is the server side of shop.v1.OrderService.
type OrderServiceServer interface {
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*OrderResponse, error)
}

type GRPCHandler struct {
	orderService *service.OrderService
	logger       *zap.Logger
	validate     *validator.Validate
}

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, logger: logger, validate: newValidator()}
}

func (h *GRPCHandler) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	return &ListOrdersResponse{Orders: h.orderService.List(ctx)}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}
	o, err := h.orderService.GetByID(ctx, req.ID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &OrderResponse{Order: o}, nil
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}
	o, err := h.orderService.Create(ctx, req.CustomerID, req.Items)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &OrderResponse{Order: o}, nil
}

func (h *GRPCHandler) UpdateOrderStatus(ctx context.Context, req *UpdateOrderStatusRequest) (*OrderResponse, error) {
	if err := h.validate.Struct(req); err != nil {
		return nil, invalidArgument(err)
	}
	o, err := h.orderService.UpdateStatus(ctx, req.ID, req.Status)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &OrderResponse{Order: o}, nil
}

func invalidArgument(err error) error {
	details := fieldErrors(err)
	msg := "Validation failed"
	if len(details) > 0 {
		msg += ": " + details[0].Field + " " + details[0].Message
	}
	return status.Error(codes.InvalidArgument, msg)
}

func codeFor(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	case domain.KindValidation:
		return codes.InvalidArgument
	case domain.KindConflict, domain.KindInvalidTransition:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

func (h *GRPCHandler) toStatus(err error) error {
	code := codeFor(domain.KindOf(err))
	if code == codes.Internal {
		h.logger.Error("order rpc failed", zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListOrders", Handler: listOrdersHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
		{MethodName: "CreateOrder", Handler: createOrderHandler},
		{MethodName: "UpdateOrderStatus", Handler: updateOrderStatusHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func listOrdersHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).ListOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + orderServiceName + "/ListOrders"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).ListOrders(ctx, req.(*ListOrdersRequest))
	})
}

func getOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + orderServiceName + "/GetOrder"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).GetOrder(ctx, req.(*GetOrderRequest))
	})
}

func createOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).CreateOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + orderServiceName + "/CreateOrder"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).CreateOrder(ctx, req.(*CreateOrderRequest))
	})
}

func updateOrderStatusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpdateOrderStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).UpdateOrderStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + orderServiceName + "/UpdateOrderStatus"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).UpdateOrderStatus(ctx, req.(*UpdateOrderStatusRequest))
	})
}

// OrderServiceClient calls shop.v1.OrderService with the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+orderServiceName+"/"+method, in, out, opts...)
}

func (c *OrderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	if err := c.invoke(ctx, "ListOrders", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "GetOrder", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CreateOrder(ctx context.Context, in *CreateOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "CreateOrder", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "UpdateOrderStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
