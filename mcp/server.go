// Package mcp exposes the letter exporter to AI assistants over the Model
// Context Protocol.
//
// The server speaks newline-delimited JSON-RPC 2.0 on stdio and implements
// the tools and resources parts of MCP revision 2024-11-05. Tool calls run
// one at a time; each gets the server context, so stopping the server
// cancels a running export.
//
// Example client configuration:
//
//	{
//	  "mcpServers": {
//	    "letterpdf": {
//	      "command": "letterpdf-mcp",
//	      "args": ["-config", "/etc/letterpdf.yaml"]
//	    }
//	  }
//	}
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Version is reported in serverInfo.
const Version = "1.0.0"

// Server is an MCP server that handles JSON-RPC 2.0 messages over stdio.
type Server struct {
	tools     map[string]Tool
	resources []Resource
	input     io.Reader
	output    io.Writer
	log       *zap.Logger
	mu        sync.Mutex
}

// Tool defines an MCP tool that can be called by the client.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Handler     ToolHandler    `json:"-"`
}

// ToolHandler executes a tool with the given arguments.
type ToolHandler func(ctx context.Context, args map[string]any) (ToolResult, error)

// ToolResult is the result returned by a tool execution.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is a piece of content in a tool result.
type ContentBlock struct {
	Type     string `json:"type"` // "text" or "image"
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"` // base64 for binary
}

// Resource is either a fixed URI or a URI template with one {name}
// placeholder standing for a single path segment, e.g. letter://{id}/metadata.
type Resource struct {
	URI         string          `json:"uri"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	MIMEType    string          `json:"mimeType,omitempty"`
	Handler     ResourceHandler `json:"-"`
}

// ResourceHandler reads a resource. param is the value matched by the
// template placeholder, empty for fixed URIs.
type ResourceHandler func(ctx context.Context, uri, param string) ([]ResourceContent, error)

// ResourceContent is the content of a read resource.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"` // base64
}

func (r Resource) isTemplate() bool {
	return strings.Contains(r.URI, "{")
}

// match reports whether uri fits the template and returns the
// placeholder value.
func (r Resource) match(uri string) (string, bool) {
	if !r.isTemplate() {
		return "", uri == r.URI
	}
	open := strings.Index(r.URI, "{")
	end := strings.Index(r.URI[open:], "}")
	if end < 0 {
		return "", false
	}
	prefix, suffix := r.URI[:open], r.URI[open+end+1:]
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) || len(uri) <= len(prefix)+len(suffix) {
		return "", false
	}
	param := uri[len(prefix) : len(uri)-len(suffix)]
	if strings.Contains(param, "/") {
		return "", false
	}
	return param, true
}

type jsonrpcRequest struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id"`
	Result  any              `json:"result,omitempty"`
	Error   *jsonrpcError    `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC 2.0 error codes.
const (
	codeParse          = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
)

func rpcError(code int, message string, data any) *jsonrpcError {
	return &jsonrpcError{Code: code, Message: message, Data: data}
}

// method handles one JSON-RPC method and returns its result or an error.
type method func(s *Server, ctx context.Context, params json.RawMessage) (any, *jsonrpcError)

var methods = map[string]method{
	"initialize":               (*Server).initialize,
	"ping":                     func(*Server, context.Context, json.RawMessage) (any, *jsonrpcError) { return map[string]any{}, nil },
	"tools/list":               (*Server).listTools,
	"tools/call":               (*Server).callTool,
	"resources/list":           (*Server).listResources,
	"resources/templates/list": (*Server).listResourceTemplates,
	"resources/read":           (*Server).readResource,
}

// NewServer creates a server reading from stdin and writing to stdout.
func NewServer(log *zap.Logger) *Server {
	return NewServerWithIO(os.Stdin, os.Stdout, log)
}

// NewServerWithIO creates a server with custom I/O.
func NewServerWithIO(in io.Reader, out io.Writer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{tools: map[string]Tool{}, input: in, output: out, log: log}
}

// AddTool registers a tool, replacing any tool with the same name.
func (s *Server) AddTool(t Tool) {
	s.tools[t.Name] = t
}

// AddResource registers a resource or resource template. Templates are
// matched in registration order.
func (s *Server) AddResource(r Resource) {
	s.resources = append(s.resources, r)
}

// Run serves requests until the input ends or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	sc := bufio.NewScanner(s.input)
	// results carry whole PDFs as base64
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var req jsonrpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(nil, nil, rpcError(codeParse, "Parse error", err.Error()))
			continue
		}
		s.dispatch(ctx, req)
	}
	return sc.Err()
}

func (s *Server) dispatch(ctx context.Context, req jsonrpcRequest) {
	m, ok := methods[req.Method]
	if !ok {
		if strings.HasPrefix(req.Method, "notifications/") || req.Method == "initialized" {
			return
		}
		s.reply(req.ID, nil, rpcError(codeMethodNotFound, "Method not found", req.Method))
		return
	}
	result, rerr := m(s, ctx, req.Params)
	s.reply(req.ID, result, rerr)
}

func decodeParams(raw json.RawMessage, v any) *jsonrpcError {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return rpcError(codeInvalidParams, "Invalid params", err.Error())
	}
	return nil
}

func (s *Server) initialize(context.Context, json.RawMessage) (any, *jsonrpcError) {
	return map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
		},
		"serverInfo": map[string]any{"name": "letterpdf-mcp", "version": Version},
	}, nil
}

func (s *Server) listTools(context.Context, json.RawMessage) (any, *jsonrpcError) {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]Tool, 0, len(names))
	for _, name := range names {
		list = append(list, s.tools[name])
	}
	return map[string]any{"tools": list}, nil
}

// callTool reports tool failures inside the result with isError set, so
// the assistant sees them; protocol errors are for malformed calls only.
func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (any, *jsonrpcError) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if rerr := decodeParams(raw, &params); rerr != nil {
		return nil, rerr
	}
	tool, ok := s.tools[params.Name]
	if !ok {
		return nil, rpcError(codeInvalidParams, "Unknown tool", params.Name)
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}
	result, err := tool.Handler(ctx, params.Arguments)
	if err != nil {
		s.log.Info("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return ToolResult{
			Content: []ContentBlock{{Type: "text", Text: "Error: " + err.Error()}},
			IsError: true,
		}, nil
	}
	return result, nil
}

func (s *Server) listResources(context.Context, json.RawMessage) (any, *jsonrpcError) {
	return map[string]any{"resources": s.describeResources("uri", false)}, nil
}

func (s *Server) listResourceTemplates(context.Context, json.RawMessage) (any, *jsonrpcError) {
	return map[string]any{"resourceTemplates": s.describeResources("uriTemplate", true)}, nil
}

func (s *Server) describeResources(uriKey string, templates bool) []map[string]any {
	list := []map[string]any{}
	for _, r := range s.resources {
		if r.isTemplate() != templates {
			continue
		}
		entry := map[string]any{uriKey: r.URI, "name": r.Name}
		if r.Description != "" {
			entry["description"] = r.Description
		}
		if r.MIMEType != "" {
			entry["mimeType"] = r.MIMEType
		}
		list = append(list, entry)
	}
	return list
}

func (s *Server) readResource(ctx context.Context, raw json.RawMessage) (any, *jsonrpcError) {
	var params struct {
		URI string `json:"uri"`
	}
	if rerr := decodeParams(raw, &params); rerr != nil {
		return nil, rerr
	}
	for _, r := range s.resources {
		param, ok := r.match(params.URI)
		if !ok {
			continue
		}
		contents, err := r.Handler(ctx, params.URI, param)
		if err != nil {
			return nil, rpcError(codeInternal, "Resource error", err.Error())
		}
		return map[string]any{"contents": contents}, nil
	}
	return nil, rpcError(codeInvalidParams, "Unknown resource", params.URI)
}

func (s *Server) reply(id *json.RawMessage, result any, rerr *jsonrpcError) {
	resp := jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: rerr}
	if rerr == nil {
		resp.Result = result
	}
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("encoding response", zap.Error(err))
		data, _ = json.Marshal(jsonrpcResponse{JSONRPC: "2.0", ID: id, Error: rpcError(codeInternal, "Internal error", err.Error())})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.output.Write(append(data, '\n')); err != nil {
		s.log.Error("writing response", zap.Error(err))
	}
}
