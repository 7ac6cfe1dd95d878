package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/dapr-shop/internal/adapter/storage"
	"github.com/rl1809/dapr-shop/internal/core/domain"
	"github.com/rl1809/dapr-shop/internal/core/service"
)

const bufSize = 1024 * 1024

// Mock EventPublisher that drops everything
type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, topic string, payload any) error { return nil }

func newGRPCClient(t *testing.T, opts service.OrderOptions) (*OrderServiceClient, *grpc.ClientConn) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryAdapter()
	inventory := service.NewInventoryService(store, nopPublisher{}, logger, 0)
	orders := service.NewOrderService(store, inventory, nopPublisher{}, logger, opts)

	listener := bufconn.Listen(bufSize)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(logger)))
	RegisterOrderServiceServer(srv, NewGRPCHandler(orders, logger))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		_ = srv.Serve(listener)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return NewOrderServiceClient(conn), conn
}

func TestGRPC_CreateAndGetOrder(t *testing.T) {
	client, _ := newGRPCClient(t, service.OrderOptions{})
	ctx := context.Background()

	created, err := client.CreateOrder(ctx, &CreateOrderRequest{
		CustomerID: "customer-1",
		Items:      []domain.OrderLine{{ProductID: "product-003", Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "159.98", created.Order.Total.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, created.Order.Status)

	got, err := client.GetOrder(ctx, &GetOrderRequest{ID: created.Order.ID})
	require.NoError(t, err)
	assert.Equal(t, created.Order.ID, got.Order.ID)

	list, err := client.ListOrders(ctx, &ListOrdersRequest{})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 3)

	updated, err := client.UpdateOrderStatus(ctx, &UpdateOrderStatusRequest{ID: created.Order.ID, Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, updated.Order.Status)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	client, _ := newGRPCClient(t, service.OrderOptions{StrictTransitions: true})
	ctx := context.Background()

	_, err := client.GetOrder(ctx, &GetOrderRequest{ID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.CreateOrder(ctx, &CreateOrderRequest{
		CustomerID: "customer-1",
		Items:      []domain.OrderLine{{ProductID: "product-004", Quantity: 100}},
	})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.CreateOrder(ctx, &CreateOrderRequest{CustomerID: "customer-1"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.UpdateOrderStatus(ctx, &UpdateOrderStatusRequest{ID: "order-002", Status: domain.OrderStatusPending})
	assert.Equal(t, codes.Aborted, status.Code(err))
}

func TestGRPC_Health(t *testing.T) {
	_, conn := newGRPCClient(t, service.OrderOptions{})

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestCodeFor(t *testing.T) {
	assert.Equal(t, codes.Aborted, codeFor(domain.KindConflict))
	assert.Equal(t, codes.Internal, codeFor(domain.KindInternal))
	assert.Equal(t, codes.InvalidArgument, codeFor(domain.KindValidation))
}

func TestUnaryLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	intercept := UnaryLogger(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/shop.v1.OrderService/GetOrder"}

	_, err := intercept(context.Background(), &GetOrderRequest{ID: "x"}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "Order not found")
	})
	require.Error(t, err)

	entries := logs.FilterMessage("rpc").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/shop.v1.OrderService/GetOrder", fields["method"])
	assert.Equal(t, "NotFound", fields["code"])
}
