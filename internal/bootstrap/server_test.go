package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDialTarget(t *testing.T) {
	assert.Equal(t, "localhost:9090", dialTarget(":9090"))
	assert.Equal(t, "grpc.internal:9090", dialTarget("grpc.internal:9090"))
	assert.Equal(t, "not-an-address", dialTarget("not-an-address"))
}

func TestUnaryLogger_PassesThrough(t *testing.T) {
	interceptor := unaryLogger(logger.Nop())
	info := &grpc.UnaryServerInfo{FullMethod: "/commerce.v1.CommerceService/GetPayment"}

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)

	failure := status.Error(codes.NotFound, "payment not found")
	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req any) (any, error) {
		return nil, failure
	})
	assert.True(t, errors.Is(err, failure))
}
