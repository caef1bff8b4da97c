package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{
		ServiceName: "reasoning-test",
		LogLevel:    "error",
		LogFormat:   "json",
	})
}

type convictionOutput struct {
	ConvictionScore             float64 `json:"convictionScore"`
	RiskProfile                 string  `json:"riskProfile"`
	RecommendedPositionSizeBase float64 `json:"recommendedPositionSizeBase"`
	Reasoning                   string  `json:"reasoning"`
}

func TestUnmarshalJSONResponseParsesConvictionPayload(t *testing.T) {
	var out convictionOutput
	err := unmarshalJSONResponse(`{"convictionScore":72,"riskProfile":"medium","recommendedPositionSizeBase":500000,"reasoning":"solid deployer history"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, 72.0, out.ConvictionScore)
	assert.Equal(t, "medium", out.RiskProfile)
	assert.Equal(t, 500000.0, out.RecommendedPositionSizeBase)
}

func TestUnmarshalJSONResponseErrorsOnInvalidJSON(t *testing.T) {
	var out convictionOutput
	err := unmarshalJSONResponse("not json", &out)
	assert.Error(t, err)
}

func TestNewSelectsProviderFromConfig(t *testing.T) {
	logger := testLogger()

	anthropic, err := New(config.SwarmConfig{LLMProvider: "anthropic", LLMAPIKey: "k", LLMMaxTokens: 1024}, logger)
	require.NoError(t, err)
	_, ok := anthropic.(*anthropicClient)
	assert.True(t, ok)

	openai, err := New(config.SwarmConfig{LLMProvider: "openai", LLMAPIKey: "k", LLMMaxTokens: 1024}, logger)
	require.NoError(t, err)
	_, ok = openai.(*openAIClient)
	assert.True(t, ok)

	_, err = New(config.SwarmConfig{LLMProvider: "unknown"}, logger)
	assert.Error(t, err)
}

func TestNewDefaultsToAnthropicWhenProviderEmpty(t *testing.T) {
	client, err := New(config.SwarmConfig{LLMAPIKey: "k", LLMMaxTokens: 1024}, testLogger())
	require.NoError(t, err)
	_, ok := client.(*anthropicClient)
	assert.True(t, ok)
}
