package config

const (
	defaultLLMProvider = "ollama"
	defaultLLMTarget   = "http://localhost:11434"
	defaultLLMModel    = "gemma3:4b"
	defaultTemperature = 0.5

	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingTarget     = "http://localhost:11434"

	defaultStoreProvider  = "graph"
	defaultSQLitePath     = "engram.db"
	defaultVectorProvider = "sqlite"
	defaultVectorPath     = "engram-vectors.db"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "engram.exchanges"

	defaultAPIListen = ":8081"

	defaultMaxFacts = 8
)

// DefaultBasePrompt is the base system prompt every assembled prompt starts
// with. Persona and fact sections are appended to it per turn.
const DefaultBasePrompt = `You are a friendly, human-like conversational AI assistant.
Keep responses concise and helpful. Ground your answers in the facts you are
given about the user and their past conversations. Do not invent facts.`

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Store: StoreConfig{
			Provider:       defaultStoreProvider,
			SQLitePath:     defaultSQLitePath,
			VectorProvider: defaultVectorProvider,
			VectorPath:     defaultVectorPath,
		},
		LLM: LLMConfig{
			Provider:    defaultLLMProvider,
			Target:      defaultLLMTarget,
			Model:       defaultLLMModel,
			Temperature: defaultTemperature,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultLLMProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Chat: ChatConfig{
			BasePrompt: DefaultBasePrompt,
			MaxFacts:   defaultMaxFacts,
		},
	}
}
