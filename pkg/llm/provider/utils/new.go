package providerutils

import (
	"fmt"

	"github.com/engramchat/engram/pkg/llm/provider"
	"github.com/engramchat/engram/pkg/llm/provider/anthropic"
	"github.com/engramchat/engram/pkg/llm/provider/ollama"
)

type NewChatterOpts struct {
	ProviderType string
	TargetURL    string
}

func NewChatter(o *NewChatterOpts) (provider.Chatter, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewChatter(ollama.Config{
			BaseURL: o.TargetURL,
		}), nil
	case "anthropic":
		return anthropic.NewChatter(anthropic.Config{}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", o.ProviderType)
	}
}
