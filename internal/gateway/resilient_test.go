package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/mailsmith/internal/gateway"
	"github.com/ashureev/mailsmith/internal/gateway/gatewaytest"
)

var errUpstream = errors.New("upstream 502")

func drain(t *testing.T, g gateway.Gateway) (string, error) {
	t.Helper()
	var text string
	for chunk, err := range g.Stream(context.Background(), &gateway.Request{Prompt: "x"}) {
		if err != nil {
			return text, err
		}
		text += chunk.Text
	}
	return text, nil
}

func TestResilientStreamPassesThrough(t *testing.T) {
	r := gateway.NewResilient(gatewaytest.New(gatewaytest.Text("hello")), gateway.ResilienceConfig{}, nil)

	text, err := drain(t, r)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, gateway.BreakerClosed, r.State())
	assert.Equal(t, "fake", r.Name())
}

func TestResilientBreakerOpens(t *testing.T) {
	fake := gatewaytest.New(
		gatewaytest.Turn{Err: errUpstream},
		gatewaytest.Turn{Err: errUpstream},
		gatewaytest.Text("never reached"),
	)

	var transitions []gateway.BreakerState
	r := gateway.NewResilient(fake, gateway.ResilienceConfig{
		MaxFailures:   2,
		ResetInterval: time.Hour,
		OnStateChange: func(_, to gateway.BreakerState) { transitions = append(transitions, to) },
	}, nil)

	_, err := drain(t, r)
	require.ErrorIs(t, err, errUpstream)
	_, err = drain(t, r)
	require.ErrorIs(t, err, errUpstream)

	assert.Equal(t, gateway.BreakerOpen, r.State())
	assert.Equal(t, []gateway.BreakerState{gateway.BreakerOpen}, transitions)

	_, err = drain(t, r)
	require.ErrorIs(t, err, gateway.ErrCircuitOpen)
	assert.Len(t, fake.StreamRequests(), 2, "open breaker does not reach the provider")
}

type flakyGateway struct {
	gateway.Gateway
	failures int
	calls    int
}

func (f *flakyGateway) Name() string { return "flaky" }

func (f *flakyGateway) Complete(context.Context, *gateway.Request) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return "", errUpstream
	}
	return "ok", nil
}

func TestResilientCompleteRetries(t *testing.T) {
	f := &flakyGateway{failures: 2}
	r := gateway.NewResilient(f, gateway.ResilienceConfig{RetryAttempts: 3, RetryDelay: time.Millisecond}, nil)

	text, err := r.Complete(context.Background(), &gateway.Request{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, f.calls)
}

func TestResilientCompleteGivesUp(t *testing.T) {
	f := &flakyGateway{failures: 10}
	r := gateway.NewResilient(f, gateway.ResilienceConfig{RetryAttempts: 2, RetryDelay: time.Millisecond}, nil)

	_, err := r.Complete(context.Background(), &gateway.Request{Prompt: "x"})
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 2, f.calls)
}

func TestResilientCancelledStreamDoesNotTrip(t *testing.T) {
	fake := gatewaytest.New(gatewaytest.Turn{Err: context.Canceled}, gatewaytest.Turn{Err: context.Canceled})
	r := gateway.NewResilient(fake, gateway.ResilienceConfig{MaxFailures: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 2 {
		for _, err := range r.Stream(ctx, &gateway.Request{}) {
			assert.ErrorIs(t, err, context.Canceled)
		}
	}
	assert.Equal(t, gateway.BreakerClosed, r.State())
}
