// Package openaicompat implements llm.Provider over the OpenAI Chat
// Completions wire format.
//
// Any endpoint speaking that format (OpenAI, Azure-style gateways, local
// servers such as Ollama or vLLM) can back the procurement conversation:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openai",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.openai.com",
//	    DefaultModel: "gpt-4o-mini",
//	    RequestsPerSecond: 2,
//	}, logger)
package openaicompat
