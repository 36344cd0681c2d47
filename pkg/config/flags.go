package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --model
// on both "engram chat" and "engram serve").
type Flag struct {
	// Name is the long flag name (e.g. "model").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "llm.model").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagLLMProvider    = "llm-provider"
	FlagLLMTarget      = "llm-target"
	FlagModel          = "model"
	FlagSQLite         = "sqlite"
	FlagVectorProvider = "vector-provider"
	FlagVectorPath     = "vector-path"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagAPIListen      = "api-listen"
	FlagMaxFacts       = "max-facts"
)

// Flags is the default registry used by engram commands.
var Flags = FlagSet{
	FlagLLMProvider: {
		Name: "llm-provider", ViperKey: "llm.provider",
		Description: "Generation provider (ollama, anthropic)",
	},
	FlagLLMTarget: {
		Name: "llm-target", ViperKey: "llm.target",
		Description: "Base URL of the generation provider",
	},
	FlagModel: {
		Name: "model", Shorthand: "m", ViperKey: "llm.model",
		Description: "Model used for reply generation",
	},
	FlagSQLite: {
		Name: "sqlite", ViperKey: "store.sqlite_path",
		Description: "Path to the memory store SQLite database",
	},
	FlagVectorProvider: {
		Name: "vector-provider", ViperKey: "store.vector_provider",
		Description: "Vector index backend (sqlite, chromem)",
	},
	FlagVectorPath: {
		Name: "vector-path", ViperKey: "store.vector_path",
		Description: "Path to the vector index database",
	},
	FlagEmbeddingProv: {
		Name: "embedding-provider", ViperKey: "embedding.provider",
		Description: "Embedding provider",
	},
	FlagEmbeddingTgt: {
		Name: "embedding-target", ViperKey: "embedding.target",
		Description: "Base URL of the embedding provider",
	},
	FlagEmbeddingModel: {
		Name: "embedding-model", ViperKey: "embedding.model",
		Description: "Model used for embeddings",
	},
	FlagAPIListen: {
		Name: "api-listen", ViperKey: "api.listen",
		Description: "Address the API server listens on",
	},
	FlagMaxFacts: {
		Name: "max-facts", ViperKey: "chat.max_facts",
		Description: "Maximum recalled facts per turn",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
