package mcp

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

// SplitCommandLine splits a command line on spaces. Single- or double-quoted
// runs are kept together with the quotes removed.
func SplitCommandLine(line string) ([]string, error) {
	tokens := []string{}
	var current strings.Builder
	inToken := false
	var quote byte

	for i := 0; i < len(line); i++ {
		char := line[i]

		switch {
		case quote != 0:
			if char == quote {
				quote = 0
				continue
			}
			current.WriteByte(char)
		case char == '\'' || char == '"':
			quote = char
			inToken = true
		case char == ' ' || char == '\t':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteByte(char)
			inToken = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, line)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}

// ParseEnv turns KEY=VALUE pairs into a map. Entries without '=' are rejected.
func ParseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid environment entry %q, expected KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}

// CheckLauncher reports why a server could not be started from this
// machine, or nil if it looks runnable.
func CheckLauncher(cfg ServerConfig) error {
	switch cfg.Transport {
	case TransportBuiltin:
		return nil
	case TransportSSE, TransportStreamableHTTP:
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid server URL %q", cfg.URL)
		}
		return nil
	default:
		if cfg.Command == "" {
			return fmt.Errorf("no command configured")
		}
		if _, err := exec.LookPath(cfg.Command); err != nil {
			return fmt.Errorf("%s not found in PATH", cfg.Command)
		}
		return nil
	}
}
