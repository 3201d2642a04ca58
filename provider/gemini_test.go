package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deepchat/model"
	"deepchat/provider/testutil"
)

func newTestGemini(t *testing.T, url string) *GeminiAdapter {
	t.Helper()
	a, err := NewGeminiAdapter(model.Provider{ID: "gemini", Family: model.FamilyGemini, BaseURL: url}, Options{})
	if err != nil {
		t.Fatalf("NewGeminiAdapter: %v", err)
	}
	return a
}

func TestGeminiStreamTextAndFunctionCall(t *testing.T) {
	body := `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"Checking "}]}}]}` + "\n\n" +
		`data: {"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"weather__get_weather","args":{"location":"Paris"}}}]},"finishReason":"STOP"}]}` + "\n\n"

	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	a := newTestGemini(t, srv.URL)
	deltas := collect(t, a.StreamChat(context.Background(), model.Credential{APIKey: "g"}, "gemini-2.5-flash", testutil.TestTurns(), testutil.TestTools()))

	if last := terminal(t, deltas); last.Kind != model.DeltaDone {
		t.Fatalf("terminal: got %v (%v)", last.Kind, last.Err)
	}
	if !strings.Contains(path, "gemini-2.5-flash:streamGenerateContent") {
		t.Errorf("unexpected request path %q", path)
	}
	if text(deltas) != "Checking " {
		t.Errorf("text: got %q", text(deltas))
	}

	var start model.Delta
	var args string
	for _, d := range deltas {
		switch d.Kind {
		case model.DeltaToolCallStart:
			start = d
		case model.DeltaToolCallArgs:
			args += d.Args
		}
	}
	if start.ToolName != "weather__get_weather" || start.ToolCallID == "" {
		t.Errorf("start delta: got %+v", start)
	}
	if args != `{"location":"Paris"}` {
		t.Errorf("args: got %q", args)
	}
}

func TestGeminiStreamWithoutFinishReason(t *testing.T) {
	srv := sseServer(t, `data: {"candidates":[{"content":{"role":"model","parts":[{"text":"half"}]}}]}`+"\n\n")

	a := newTestGemini(t, srv.URL)
	last := terminal(t, collect(t, a.StreamChat(context.Background(), model.Credential{APIKey: "g"}, "gemini-2.5-flash", testutil.TestTurns(), nil)))
	if last.Kind != model.DeltaError || last.Err.Kind != model.KindProtocol {
		t.Errorf("expected ProtocolError, got %v %v", last.Kind, last.Err)
	}
}

func TestGeminiAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	_, err := newTestGemini(t, srv.URL).ListModels(context.Background(), model.Credential{APIKey: "bad"})
	if !model.IsKind(err, model.KindAuth) {
		t.Errorf("expected AuthError, got %v", err)
	}
}
