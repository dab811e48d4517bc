package commerce_service_api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls CommerceService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ClaimSlot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ClaimSlot", in, opts...)
}

func (c *Client) CreatePayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreatePayment", in, opts...)
}

func (c *Client) ConfirmPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ConfirmPayment", in, opts...)
}

func (c *Client) AbortPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "AbortPayment", in, opts...)
}

func (c *Client) GetPayment(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetPayment", in, opts...)
}

type route struct {
	method  string
	pattern string
	rpc     string
}

var routes = []route{
	{http.MethodPost, "/v1/slots/{slot_id}/claim", "ClaimSlot"},
	{http.MethodPost, "/v1/payments", "CreatePayment"},
	{http.MethodPost, "/v1/payments/confirm", "ConfirmPayment"},
	{http.MethodPost, "/v1/payments/abort", "AbortPayment"},
	{http.MethodGet, "/v1/payments/{id}", "GetPayment"},
}

// RegisterCommerceServiceHandler exposes the service as JSON over HTTP on mux.
// Path parameters are merged into the request body.
func RegisterCommerceServiceHandler(mux *runtime.ServeMux, cc grpc.ClientConnInterface) error {
	if cc == nil {
		return errors.New("commerce gateway: nil client connection")
	}
	client := NewClient(cc)
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, forward(mux, client, rt.rpc)); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

// RegisterCommerceServiceHandlerFromEndpoint dials endpoint and closes the
// connection when ctx is done.
func RegisterCommerceServiceHandlerFromEndpoint(ctx context.Context, mux *runtime.ServeMux, endpoint string, opts []grpc.DialOption) error {
	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	return RegisterCommerceServiceHandler(mux, conn)
}

func forward(mux *runtime.ServeMux, client *Client, rpc string) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
		inbound, outbound := runtime.MarshalerForRequest(mux, r)

		ctx, err := runtime.AnnotateContext(r.Context(), mux, r, fullMethod(rpc))
		if err != nil {
			runtime.HTTPError(r.Context(), mux, outbound, w, r, err)
			return
		}

		in := &structpb.Struct{Fields: map[string]*structpb.Value{}}
		if r.Method != http.MethodGet && r.Body != nil {
			if err := inbound.NewDecoder(r.Body).Decode(in); err != nil && !errors.Is(err, io.EOF) {
				runtime.HTTPError(ctx, mux, outbound, w, r, status.Errorf(codes.InvalidArgument, "decode body: %v", err))
				return
			}
			if in.Fields == nil {
				in.Fields = map[string]*structpb.Value{}
			}
		}
		for k, v := range pathParams {
			in.Fields[k] = structpb.NewStringValue(v)
		}

		var md runtime.ServerMetadata
		out, err := client.invoke(ctx, rpc, in, grpc.Header(&md.HeaderMD), grpc.Trailer(&md.TrailerMD))
		ctx = runtime.NewServerMetadataContext(ctx, md)
		if err != nil {
			runtime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		runtime.ForwardResponseMessage(ctx, mux, outbound, w, r, out)
	}
}
