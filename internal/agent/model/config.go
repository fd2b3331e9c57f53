package model

// ================ Config ================
type AgentConfig struct {
	Model         string  `envconfig:"BEDROCK_LLM_MODEL" default:"amazon.nova-lite-v1:0"`
	MaxTokens     int     `envconfig:"BEDROCK_LLM_MAX_TOKENS" default:"2048"`
	Temperature   float32 `envconfig:"BEDROCK_LLM_TEMPERATURE" default:"0.7"`
	MaxIterations int     `envconfig:"AGENT_MAX_ITERATIONS" default:"10"`
}
