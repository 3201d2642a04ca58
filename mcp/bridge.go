package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/errgroup"

	"deepchat/config"
	"deepchat/model"
)

const (
	DefaultToolTimeout = 30 * time.Second
	defaultConcurrency = 4
)

// BridgeOptions tunes a Bridge.
type BridgeOptions struct {
	// ToolTimeout bounds every tool call and every server handshake.
	ToolTimeout time.Duration
	// Concurrency caps how many servers are contacted at once during discovery.
	Concurrency int
	// Builtins maps server IDs to in-process servers for TransportBuiltin.
	Builtins map[string]*server.MCPServer
}

// boundTool is a discovered tool with its compiled argument schema.
type boundTool struct {
	desc   model.ToolDescriptor
	schema *jsonschema.Schema
}

// Bridge discovers tools on the configured MCP servers and routes calls to
// them. It is safe for concurrent use.
type Bridge struct {
	servers []ServerConfig
	opts    BridgeOptions
	connect connector

	life   context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]session
	tools    []model.ToolDescriptor
	byName   map[string]boundTool
}

// NewBridge creates a bridge for servers. Disabled servers are ignored.
// Nothing is contacted until Discover.
func NewBridge(servers []ServerConfig, opts BridgeOptions) *Bridge {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = DefaultToolTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	life, cancel := context.WithCancel(context.Background())
	return &Bridge{
		servers:  servers,
		opts:     opts,
		connect:  newConnector(opts.Builtins),
		life:     life,
		cancel:   cancel,
		sessions: make(map[string]session),
		byName:   make(map[string]boundTool),
	}
}

// serverTools is what one server contributed to a discovery pass.
type serverTools struct {
	id    string
	sess  session
	tools []boundTool
	err   error
}

// Discover connects to every enabled server, lists its tools and compiles
// their input schemas. A server that fails at any step is skipped and
// reported as a Warning. The previous discovery's sessions are closed once
// the new set is in place.
func (b *Bridge) Discover(ctx context.Context) ([]model.ToolDescriptor, []Warning) {
	var enabled []ServerConfig
	for _, s := range b.servers {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}

	results := make([]serverTools, len(enabled))

	var g errgroup.Group
	g.SetLimit(b.opts.Concurrency)
	for i, cfg := range enabled {
		g.Go(func() error {
			results[i] = b.discoverServer(ctx, cfg)
			return nil
		})
	}
	_ = g.Wait()

	sessions := make(map[string]session)
	byName := make(map[string]boundTool)
	var tools []model.ToolDescriptor
	var warnings []Warning

	for _, r := range results {
		if r.err != nil {
			warnings = append(warnings, Warning{ServerID: r.id, Err: r.err})
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Skipping server '%s': %v", r.id, r.err)
			}
			continue
		}
		sessions[r.id] = r.sess
		for _, t := range r.tools {
			if _, dup := byName[t.desc.Name]; dup {
				warnings = append(warnings, Warning{ServerID: r.id, Err: fmt.Errorf("duplicate tool %q ignored", t.desc.Name)})
				continue
			}
			byName[t.desc.Name] = t
			tools = append(tools, t.desc)
		}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	b.mu.Lock()
	old := b.sessions
	b.sessions = sessions
	b.byName = byName
	b.tools = tools
	b.mu.Unlock()

	for id, s := range old {
		if err := s.Close(); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[MCP] Error closing server '%s': %v", id, err)
		}
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Discovered %d tools on %d servers (%d warnings)", len(tools), len(sessions), len(warnings))
	}

	return Tools(tools), warnings
}

func (b *Bridge) discoverServer(ctx context.Context, cfg ServerConfig) serverTools {
	out := serverTools{id: cfg.ID}

	opCtx, cancel := context.WithTimeout(ctx, b.opts.ToolTimeout)
	defer cancel()

	sess, err := b.connect(b.life, opCtx, cfg)
	if err != nil {
		out.err = err
		return out
	}

	listed, err := sess.ListTools(opCtx, mcptypes.ListToolsRequest{})
	if err != nil {
		sess.Close()
		out.err = fmt.Errorf("failed to list tools: %w", err)
		return out
	}

	compiler := jsonschema.NewCompiler()
	for _, tool := range listed.Tools {
		bound, err := bindTool(compiler, cfg.ID, tool)
		if err != nil {
			sess.Close()
			out.err = err
			return out
		}
		out.tools = append(out.tools, bound)
	}

	out.sess = sess
	return out
}

// bindTool namespaces tool and compiles its input schema.
func bindTool(compiler *jsonschema.Compiler, serverID string, tool mcptypes.Tool) (boundTool, error) {
	var err error
	raw := []byte(tool.RawInputSchema)
	if len(raw) == 0 {
		raw, err = json.Marshal(mcptypes.ToolArgumentsSchema(tool.InputSchema))
		if err != nil {
			return boundTool{}, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
	}

	var schemaMap map[string]any
	if err = json.Unmarshal(raw, &schemaMap); err != nil {
		return boundTool{}, fmt.Errorf("tool %s: invalid input schema: %w", tool.Name, err)
	}
	if _, ok := schemaMap["type"]; !ok {
		schemaMap["type"] = "object"
		if raw, err = json.Marshal(schemaMap); err != nil {
			return boundTool{}, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
	}

	// Providers and validation see the same schema.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return boundTool{}, fmt.Errorf("tool %s: invalid input schema: %w", tool.Name, err)
	}

	name := model.QualifiedToolName(serverID, tool.Name)
	loc := "mem://tools/" + name + ".json"
	if err := compiler.AddResource(loc, doc); err != nil {
		return boundTool{}, fmt.Errorf("tool %s: %w", tool.Name, err)
	}
	schema, err := compiler.Compile(loc)
	if err != nil {
		return boundTool{}, fmt.Errorf("tool %s: schema does not compile: %w", tool.Name, err)
	}

	return boundTool{
		desc: model.ToolDescriptor{
			Name:        name,
			ServerID:    serverID,
			ToolName:    tool.Name,
			Description: tool.Description,
			InputSchema: schemaMap,
		},
		schema: schema,
	}, nil
}

// Tools returns the descriptors from the last Discover, sorted by name.
func (b *Bridge) Tools() []model.ToolDescriptor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Tools(b.tools)
}

// Tools copies a descriptor slice.
func Tools(in []model.ToolDescriptor) []model.ToolDescriptor {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.ToolDescriptor, len(in))
	copy(out, in)
	return out
}

type callOutcome struct {
	res *mcptypes.CallToolResult
	err error
}

// Invoke validates args against the tool's schema and calls it on its
// server. Failures come back both as a classified error and as an error
// ToolResult whose content describes the failure, so callers can hand the
// result straight to the model. Cancelling ctx returns ctx.Err().
func (b *Bridge) Invoke(ctx context.Context, name string, args map[string]any) (model.ToolResult, error) {
	result := model.ToolResult{ToolName: name}

	b.mu.RLock()
	tool, ok := b.byName[name]
	var sess session
	if ok {
		sess = b.sessions[tool.desc.ServerID]
	}
	b.mu.RUnlock()

	if !ok || sess == nil {
		return failed(result, model.NewError(model.KindTool, "unknown tool %q", name))
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(tool.schema, args); err != nil {
		return failed(result, &model.Error{Kind: model.KindSchemaViolation, Provider: tool.desc.ServerID, Message: err.Error(), Err: err})
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[MCP] Calling '%s' on server '%s'", tool.desc.ToolName, tool.desc.ServerID)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.opts.ToolTimeout)
	defer cancel()

	req := mcptypes.CallToolRequest{}
	req.Params.Name = tool.desc.ToolName
	req.Params.Arguments = args

	done := make(chan callOutcome, 1)
	go func() {
		res, err := sess.CallTool(callCtx, req)
		done <- callOutcome{res: res, err: err}
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return failed(result, &model.Error{
			Kind:     model.KindToolTimeout,
			Provider: tool.desc.ServerID,
			Message:  fmt.Sprintf("%s did not answer within %s", name, b.opts.ToolTimeout),
			Err:      context.DeadlineExceeded,
		})
	}

	if out.err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if errors.Is(out.err, context.DeadlineExceeded) {
			return failed(result, model.Wrap(model.KindToolTimeout, tool.desc.ServerID, out.err))
		}
		return failed(result, model.Wrap(model.KindTool, tool.desc.ServerID, out.err))
	}

	content, err := renderContent(out.res)
	if err != nil {
		return failed(result, model.Wrap(model.KindTool, tool.desc.ServerID, err))
	}
	if out.res.IsError {
		if content == "" {
			content = "tool reported an error"
		}
		return failed(result, &model.Error{Kind: model.KindTool, Provider: tool.desc.ServerID, Message: content})
	}

	result.Content = content
	return result, nil
}

func failed(result model.ToolResult, err *model.Error) (model.ToolResult, error) {
	result.IsError = true
	result.ErrorKind = err.Kind
	result.Content = err.Error()
	return result, err
}

func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}

// renderContent joins text blocks with newlines and JSON-encodes anything
// else. Structured content is used when there are no blocks.
func renderContent(res *mcptypes.CallToolResult) (string, error) {
	if res == nil {
		return "", nil
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if tc, ok := mcptypes.AsTextContent(c); ok {
			parts = append(parts, tc.Text)
			continue
		}
		encoded, err := json.Marshal(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, string(encoded))
	}

	if len(parts) == 0 && res.StructuredContent != nil {
		encoded, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return "", err
		}
		return string(encoded), nil
	}

	return strings.Join(parts, "\n"), nil
}

// Close disconnects every server. The bridge is unusable afterwards.
func (b *Bridge) Close() error {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]session)
	b.byName = make(map[string]boundTool)
	b.tools = nil
	b.mu.Unlock()

	var errs []error
	for id, s := range sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	b.cancel()
	return errors.Join(errs...)
}
