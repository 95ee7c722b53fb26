package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	g, err := New(context.Background(), Options{Provider: ProviderOpenRouter, OpenRouterAPIKey: "k", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openrouter", g.Name())

	g, err = New(context.Background(), Options{OpenRouterAPIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAI{}, g)

	_, err = New(context.Background(), Options{Provider: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}

func TestRequestConversation(t *testing.T) {
	r := &Request{Messages: []Message{{Content: "a"}}}
	assert.Len(t, r.Conversation(), 1)

	r.Prompt = "b"
	conv := r.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, "b", conv[1].Content)
	assert.Len(t, r.Messages, 1)
}
