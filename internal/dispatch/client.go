package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"
)

// jsonrpcRequest is a minimal JSON-RPC 2.0 request envelope.
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *jsonrpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

var nextRequestID atomic.Int64

// stdioCall launches entry's command as a child process, performs an
// `initialize` handshake, issues one request (method/params), and tears
// the process down. One process per call: the dispatcher must serialize
// per-server launches and never hold a server process open across calls.
func stdioCall(ctx context.Context, entry ServerEntry, timeout time.Duration, method string, params any) (json.RawMessage, error) {
	if entry.Command == "" {
		return nil, fmt.Errorf("server has no stdio command configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, entry.Command, entry.Args...)
	cmd.Env = os.Environ()
	for k, v := range entry.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start server: %w", err)
	}
	defer func() {
		stdin.Close()
		_ = cmd.Wait()
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	write := func(method string, params any) (json.RawMessage, error) {
		id := nextRequestID.Add(1)
		req := jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
		line, err := json.Marshal(req)
		if err != nil {
			return nil, err
		}
		if _, err := stdin.Write(append(line, '\n')); err != nil {
			return nil, fmt.Errorf("write request: %w", err)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}
			return nil, fmt.Errorf("server closed stdout before responding")
		}
		var resp jsonrpcResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			return nil, fmt.Errorf("malformed rpc response: %w", err)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}

	if _, err := write("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]string{"name": "aipy", "version": "1"},
	}); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	return write(method, params)
}

// listToolsResult is the shape of a tools/list response.
type listToolsResult struct {
	Tools []struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		InputSchema InputSchema `json:"inputSchema"`
	} `json:"tools"`
}

// fetchServerTools connects to entry and lists its tools, tagging each
// with the server name. A per-server error yields an empty tool set and
// is logged rather than aborting the whole catalog refresh.
func fetchServerTools(ctx context.Context, serverName string, entry ServerEntry, timeout time.Duration, logger *slog.Logger) []ToolDescriptor {
	raw, err := stdioCall(ctx, entry, timeout, "tools/list", map[string]any{})
	if err != nil {
		logger.Warn("failed to list tools from server", "server", serverName, "error", err)
		return nil
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		logger.Warn("malformed tools/list result", "server", serverName, "error", err)
		return nil
	}
	out := make([]ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		out = append(out, ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Server:      serverName,
		})
	}
	return out
}

// callServerTool invokes a named tool with arguments on entry.
func callServerTool(ctx context.Context, entry ServerEntry, timeout time.Duration, name string, arguments json.RawMessage) (json.RawMessage, error) {
	return stdioCall(ctx, entry, timeout, "tools/call", map[string]any{
		"name":      name,
		"arguments": json.RawMessage(arguments),
	})
}
