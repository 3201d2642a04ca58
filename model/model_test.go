package model

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKinds = []Kind{
	KindNotConfigured, KindAuth, KindProviderUnreachable, KindRateLimited, KindProtocol,
	KindSchemaViolation, KindToolTimeout, KindTool, KindToolLoopExceeded, KindBusy,
}

func TestKindHintsAreDistinct(t *testing.T) {
	seen := make(map[string]Kind)
	for _, k := range allKinds {
		hint := k.Hint()
		assert.NotEqual(t, "unexpected error", hint, "kind %s has no hint", k)
		if other, dup := seen[hint]; dup {
			t.Errorf("%s and %s share a hint", k, other)
		}
		seen[hint] = k
	}
}

func TestErrorMatching(t *testing.T) {
	err := fmt.Errorf("sending: %w", &Error{Kind: KindAuth, Provider: "openai", Message: "invalid key"})

	assert.ErrorIs(t, err, ErrAuth)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, KindAuth, KindOf(err))
	assert.True(t, IsKind(err, KindAuth))
	assert.False(t, IsKind(nil, KindAuth))
	assert.Equal(t, Kind(""), KindOf(io.EOF))
	assert.Equal(t, "AuthError [openai]: invalid key", errors.Unwrap(err).Error())
}

func TestWrap(t *testing.T) {
	wrapped := Wrap(KindProviderUnreachable, "groq", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.Equal(t, "ProviderUnreachable [groq]: unexpected EOF", wrapped.Error())

	classified := NewError(KindRateLimited, "slow down")
	assert.Same(t, classified, Wrap(KindProtocol, "groq", classified), "an existing kind is kept")
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	assert.Equal(t,
		"Busy: in flight (wait for the current response to finish or cancel it)",
		UserMessage(NewError(KindBusy, "in flight")))
}

func TestCredentialRedaction(t *testing.T) {
	cred := Credential{ProviderID: "anthropic", APIKey: "sk-ant-secret"}

	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		out := fmt.Sprintf(format, cred)
		assert.NotContains(t, out, "sk-ant-secret", format)
		assert.Contains(t, out, "REDACTED", format)
	}
	assert.NotContains(t, fmt.Sprintf("%v", struct{ C Credential }{cred}), "secret")
	assert.Equal(t, "Credential{ollama: none}", Credential{ProviderID: "ollama"}.String())
	assert.True(t, Credential{}.Empty())
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		in      string
		want    Selection
		wantErr bool
	}{
		{in: "openai:gpt-4o", want: Selection{ProviderID: "openai", ModelID: "gpt-4o"}},
		{in: "ollama:llama3.1:latest", want: Selection{ProviderID: "ollama", ModelID: "llama3.1:latest"}},
		{in: " groq:llama-3.3-70b ", want: Selection{ProviderID: "groq", ModelID: "llama-3.3-70b"}},
		{in: "gpt-4o", wantErr: true},
		{in: ":gpt-4o", wantErr: true},
		{in: "openai:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSelection(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Selection {
	t.Helper()
	sel, err := ParseSelection(s)
	require.NoError(t, err)
	return sel
}

func TestProviderDefaults(t *testing.T) {
	ollama := Provider{ID: "ollama", Family: FamilyOllama}
	assert.False(t, ollama.RequiresCredential())
	assert.Equal(t, "http://localhost:11434", ollama.ResolvedBaseURL())
	assert.Equal(t, "ollama", ollama.DisplayName())

	custom := Provider{ID: "deepseek", Name: "DeepSeek", Family: FamilyOpenAICompatible, BaseURL: "https://api.deepseek.com/"}
	assert.True(t, custom.RequiresCredential())
	assert.Equal(t, "https://api.deepseek.com", custom.ResolvedBaseURL())
	assert.Equal(t, "DeepSeek", custom.DisplayName())

	assert.False(t, Family("bedrock").Valid())
	for _, f := range Families {
		assert.True(t, f.Valid())
	}
}

func TestTitleFromMessage(t *testing.T) {
	assert.Equal(t, DefaultTitle, TitleFromMessage("  \n "))
	assert.Equal(t, "Hello there", TitleFromMessage("Hello\n  there"))
	assert.Equal(t, "Explain how TCP slow...", TitleFromMessage("Explain how TCP slow start works"))
	assert.Equal(t, "日本語の質問です日本語の質問です日本語の...", TitleFromMessage("日本語の質問です日本語の質問です日本語の質問です"))
}

func TestNewConversation(t *testing.T) {
	sel := Selection{ProviderID: "openai", ModelID: "gpt-4o"}
	a := NewConversation(sel)
	b := NewConversation(sel)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, DefaultTitle, a.Title)
	assert.Equal(t, sel, a.Selection())
	assert.False(t, a.CreatedAt.IsZero())
}

func TestDeltaTerminal(t *testing.T) {
	assert.True(t, DoneDelta().Terminal())
	assert.True(t, ErrorDelta(NewError(KindProtocol, "bad")).Terminal())
	assert.False(t, TextDelta("hi").Terminal())
	assert.False(t, ToolCallEndDelta("call_1").Terminal())
}

func TestQualifiedToolName(t *testing.T) {
	assert.Equal(t, "weather__get_weather", QualifiedToolName("weather", "get_weather"))
}
