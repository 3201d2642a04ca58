package provider

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"deepchat/config"
	"deepchat/model"
	"deepchat/provider/testutil"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry([]config.ProviderConfig{
		{ID: "openai", Family: "openai-compatible", Enabled: true},
		{ID: "ollama", Family: "ollama", Enabled: true},
		{ID: "groq", Family: "groq", Enabled: false},
		{ID: "broken", Family: "nonsense", Enabled: true},
	}, Options{})

	providers := reg.Providers()
	if len(providers) != 2 {
		t.Fatalf("expected 2 providers, got %d: %+v", len(providers), providers)
	}
	if providers[0].ID != "openai" || providers[1].ID != "ollama" {
		t.Errorf("registration order not kept: %+v", providers)
	}

	if _, _, err := reg.Get("groq"); !model.IsKind(err, model.KindNotConfigured) {
		t.Errorf("disabled provider should be NotConfigured, got %v", err)
	}

	p, a, err := reg.Get("ollama")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Family != model.FamilyOllama || a.Family() != model.FamilyOllama {
		t.Errorf("got provider %+v adapter %s", p, a.Family())
	}
}

func TestRegistrySetBaseURL(t *testing.T) {
	reg := NewRegistry([]config.ProviderConfig{{ID: "local", Family: "openai-compatible", Enabled: true}}, Options{})

	var changed []string
	reg.OnChange(func(id string) { changed = append(changed, id) })

	if err := reg.SetBaseURL("local", "http://127.0.0.1:8080/v1/"); err != nil {
		t.Fatalf("SetBaseURL: %v", err)
	}
	p, _ := reg.Provider("local")
	if p.ResolvedBaseURL() != "http://127.0.0.1:8080/v1" {
		t.Errorf("base url: got %q", p.ResolvedBaseURL())
	}
	if len(changed) != 1 || changed[0] != "local" {
		t.Errorf("change hook: got %v", changed)
	}

	if err := reg.SetBaseURL("missing", "http://x"); !model.IsKind(err, model.KindNotConfigured) {
		t.Errorf("unknown provider: got %v", err)
	}
}

func TestLimitedAdapterWaits(t *testing.T) {
	inner := testutil.NewScriptedAdapter(testutil.TextScript("a"), testutil.TextScript("b"))
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	a := Limited("p", inner, limiter)

	deltas := collect(t, a.StreamChat(context.Background(), model.Credential{}, "m", nil, nil))
	if terminal(t, deltas).Kind != model.DeltaDone {
		t.Fatal("first request should pass the limiter")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.ListModels(ctx, model.Credential{})
	if err == nil {
		t.Fatal("second request should wait for the limiter and fail on the deadline")
	}
	if len(inner.Calls()) != 1 || inner.ListCalls() != 0 {
		t.Errorf("throttled request reached the adapter: calls=%d list=%d", len(inner.Calls()), inner.ListCalls())
	}
}

func TestLimitedWithoutLimiter(t *testing.T) {
	inner := testutil.NewScriptedAdapter()
	if Limited("p", inner, nil) != model.Adapter(inner) {
		t.Error("nil limiter should return the adapter unchanged")
	}
}
