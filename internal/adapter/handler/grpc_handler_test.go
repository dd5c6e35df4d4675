package handler

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/record-store/internal/core/domain"
)

func newTestGRPC(t *testing.T) (*OrderServiceClient, *grpc.ClientConn, *fakeOrderService, *fakeCatalogService) {
	t.Helper()

	orders := &fakeOrderService{}
	catalog := newFakeCatalogService()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewGRPCHandler(orders, catalog, zap.NewNop()).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewOrderServiceClient(conn), conn, orders, catalog
}

func TestGRPC_PlaceOrder(t *testing.T) {
	client, _, orders, _ := newTestGRPC(t)

	resp, err := client.PlaceOrder(context.Background(), &PlaceOrderRequest{CatalogEntryID: "e1", Quantity: 3})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Order)
	assert.Equal(t, "e1", resp.Order.CatalogEntryID)
	assert.Equal(t, 3, resp.Order.Quantity)
	assert.Len(t, orders.placed, 1)
}

func TestGRPC_PlaceOrder_ErrorCodes(t *testing.T) {
	tests := []struct {
		name     string
		req      *PlaceOrderRequest
		err      error
		wantCode codes.Code
	}{
		{name: "invalid quantity", req: &PlaceOrderRequest{CatalogEntryID: "e1", Quantity: 0}, wantCode: codes.InvalidArgument},
		{name: "missing entry id", req: &PlaceOrderRequest{Quantity: 1}, wantCode: codes.InvalidArgument},
		{name: "not found", req: &PlaceOrderRequest{CatalogEntryID: "e1", Quantity: 1}, err: fmt.Errorf("%w: catalog entry e1", domain.ErrNotFound), wantCode: codes.NotFound},
		{name: "conflict", req: &PlaceOrderRequest{CatalogEntryID: "e1", Quantity: 1}, err: fmt.Errorf("%w: insufficient stock", domain.ErrConflict), wantCode: codes.FailedPrecondition},
		{name: "internal", req: &PlaceOrderRequest{CatalogEntryID: "e1", Quantity: 1}, err: fmt.Errorf("%w: failed", domain.ErrInternal), wantCode: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, orders, _ := newTestGRPC(t)
			orders.placeErr = tt.err

			_, err := client.PlaceOrder(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, status.Code(err))
			if tt.wantCode == codes.Internal {
				assert.Equal(t, "internal error", status.Convert(err).Message())
			}
		})
	}
}

func TestGRPC_SearchCatalog(t *testing.T) {
	client, _, _, catalog := newTestGRPC(t)
	catalog.entries["e1"] = domain.CatalogEntry{ID: "e1", Artist: "The Beatles", Album: "Abbey Road", Format: domain.FormatVinyl}

	resp, err := client.SearchCatalog(context.Background(), &SearchCatalogRequest{Artist: "beatles", Format: "VINYL"})
	require.NoError(t, err)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "Abbey Road", resp.Entries[0].Album)
	assert.Equal(t, domain.Pagination{Page: 1, Size: 10, Total: 1, PageCount: 1}, resp.Pagination)
	assert.Equal(t, "beatles", catalog.filter.Artist)

	_, err = client.SearchCatalog(context.Background(), &SearchCatalogRequest{Size: 5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.SearchCatalog(context.Background(), &SearchCatalogRequest{Category: "POLKA"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_SearchCatalog_NormalisesFilter(t *testing.T) {
	client, _, _, catalog := newTestGRPC(t)

	_, err := client.SearchCatalog(context.Background(), &SearchCatalogRequest{
		Query:    " abbey ",
		Artist:   " beatles",
		Format:   " vinyl ",
		Category: "rock",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.CatalogFilter{
		Page:     1,
		Size:     10,
		Query:    "abbey",
		Artist:   "beatles",
		Format:   domain.FormatVinyl,
		Category: domain.CategoryRock,
	}, catalog.filter)
}

func TestGRPC_Health(t *testing.T) {
	_, conn, _, _ := newTestGRPC(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: OrderServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
