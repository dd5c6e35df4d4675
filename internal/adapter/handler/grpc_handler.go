package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rl1809/record-store/internal/core/domain"
)

const (
	// CodecName is the content-subtype clients select with
	// grpc.CallContentSubtype.
	CodecName = "json"

	OrderServiceName = "recordstore.v1.OrderService"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

type PlaceOrderRequest struct {
	CatalogEntryID string `json:"catalog_entry_id"`
	Quantity       int32  `json:"quantity"`
}

type PlaceOrderResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order,omitempty"`
}

type SearchCatalogRequest struct {
	Page     int32  `json:"page"`
	Size     int32  `json:"size"`
	Query    string `json:"q"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Format   string `json:"format"`
	Category string `json:"category"`
}

type SearchCatalogResponse struct {
	Entries    []domain.CatalogEntry `json:"entries"`
	Pagination domain.Pagination     `json:"pagination"`
}

type OrderServiceServer interface {
	PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error)
	SearchCatalog(ctx context.Context, req *SearchCatalogRequest) (*SearchCatalogResponse, error)
}

type GRPCHandler struct {
	orders  OrderService
	catalog CatalogService
	logger  *zap.Logger
}

func NewGRPCHandler(orders OrderService, catalog CatalogService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orders: orders, catalog: catalog, logger: logger}
}

// Register attaches the order service and the standard health service to s.
func (h *GRPCHandler) Register(s *grpc.Server) *health.Server {
	s.RegisterService(&orderServiceDesc, h)

	hs := health.NewServer()
	hs.SetServingStatus(OrderServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	if req.CatalogEntryID == "" {
		return nil, status.Error(codes.InvalidArgument, "catalog_entry_id is required")
	}
	if err := validateOrderQuantity(int(req.Quantity)); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := h.orders.PlaceOrder(ctx, req.CatalogEntryID, int(req.Quantity))
	if err != nil {
		return nil, h.grpcError("PlaceOrder", err)
	}
	return &PlaceOrderResponse{Success: true, Message: "order placed", Order: order}, nil
}

func (h *GRPCHandler) SearchCatalog(ctx context.Context, req *SearchCatalogRequest) (*SearchCatalogResponse, error) {
	filter := searchFilter(int(req.Page), int(req.Size), req.Query, req.Artist, req.Album, req.Format, req.Category)
	if filter.Page == 0 {
		filter.Page = domain.DefaultPage
	}
	if filter.Size == 0 {
		filter.Size = domain.DefaultPageSize
	}
	if filter.Page < 1 || filter.Size < domain.MinPageSize || filter.Size > domain.MaxPageSize {
		return nil, status.Error(codes.InvalidArgument, "page must be positive and size between 10 and 100")
	}
	if filter.Format != "" && !filter.Format.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown format %q", req.Format)
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown category %q", req.Category)
	}

	page, err := h.catalog.FindEntries(ctx, filter)
	if err != nil {
		return nil, h.grpcError("SearchCatalog", err)
	}
	return &SearchCatalogResponse{Entries: page.Data, Pagination: page.Pagination}, nil
}

func (h *GRPCHandler) grpcError(method string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, errValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		h.logger.Error("grpc call failed", zap.String("method", method), zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "SearchCatalog", Handler: searchCatalogHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recordstore/v1/order_service",
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlaceOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrderServiceName + "/PlaceOrder"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*PlaceOrderRequest))
	})
}

func searchCatalogHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SearchCatalogRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).SearchCatalog(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + OrderServiceName + "/SearchCatalog"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).SearchCatalog(ctx, req.(*SearchCatalogRequest))
	})
}

// OrderServiceClient calls the order service over an existing connection
// using the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	out := new(PlaceOrderResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+OrderServiceName+"/PlaceOrder", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) SearchCatalog(ctx context.Context, in *SearchCatalogRequest, opts ...grpc.CallOption) (*SearchCatalogResponse, error) {
	out := new(SearchCatalogResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+OrderServiceName+"/SearchCatalog", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

var _ OrderServiceServer = (*GRPCHandler)(nil)
