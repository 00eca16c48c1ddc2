package gemini

import (
	"fmt"
	"strings"
)

// NewAdapter selects a gateway implementation. "auto" uses the live client
// when an API key is configured and falls back to the mock otherwise, so the
// service stays usable in local development.
func NewAdapter(mode string, cfg Config) (Adapter, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return NewMock(), nil
		}
		return NewClient(cfg)
	case "live":
		return NewClient(cfg)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unsupported gemini adapter mode %q", mode)
	}
}
