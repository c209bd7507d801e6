package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/secure-automation-mcp/internal/runner"
	"github.com/acolita/secure-automation-mcp/internal/security"
)

const serverVersion = "1.0.0"

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(tokenGenerateTool(), s.handleTokenGenerate)
	s.mcpServer.AddTool(hashDataTool(), s.handleHashData)
	s.mcpServer.AddTool(pathValidateTool(), s.handlePathValidate)
	s.mcpServer.AddTool(commandExecuteTool(), s.handleCommandExecute)
	s.mcpServer.AddTool(fileWriteSecureTool(), s.handleFileWriteSecure)
	s.mcpServer.AddTool(fileReadSecureTool(), s.handleFileReadSecure)
	s.mcpServer.AddTool(fileShredTool(), s.handleFileShred)
	s.mcpServer.AddTool(secretStashTool(), s.handleSecretStash)
	s.mcpServer.AddTool(secretFetchTool(), s.handleSecretFetch)
	s.mcpServer.AddTool(secretDropTool(), s.handleSecretDrop)
}

// Tool definitions

func tokenGenerateTool() mcp.Tool {
	return mcp.NewTool("token_generate",
		mcp.WithDescription("Generate a cryptographically secure random token, hex encoded"),
		mcp.WithNumber("bytes",
			mcp.Description("Token length in bytes before hex encoding (default: 32)"),
		),
	)
}

func hashDataTool() mcp.Tool {
	return mcp.NewTool("hash_data",
		mcp.WithDescription("Compute the hex digest of data under a named algorithm"),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("The content to hash"),
		),
		mcp.WithString("algorithm",
			mcp.Description("Hash algorithm: "+strings.Join(security.Algorithms(), ", ")+" (default: sha256)"),
			mcp.DefaultString("sha256"),
		),
	)
}

func pathValidateTool() mcp.Tool {
	return mcp.NewTool("path_validate",
		mcp.WithDescription("Resolve a path to canonical form, rejecting traversal and boundary escapes"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The candidate path"),
		),
		mcp.WithString("allowed_base",
			mcp.Description("Containment boundary; overrides the configured allowed_base"),
		),
	)
}

func commandExecuteTool() mcp.Tool {
	return mcp.NewTool("command_execute",
		mcp.WithDescription("Run an external command under the configured allowlist and timeout, without a shell"),
		mcp.WithString("program",
			mcp.Required(),
			mcp.Description("The program name; must be on the configured allowlist when one is set"),
		),
		mcp.WithArray("args",
			mcp.Description("Arguments passed to the program as a discrete vector"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Command timeout in milliseconds (default: from config)"),
		),
	)
}

func fileWriteSecureTool() mcp.Tool {
	return mcp.NewTool("file_write_secure",
		mcp.WithDescription("Write content to a file atomically with restrictive permissions"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Destination path; validated against the configured boundary"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The content to write"),
		),
		mcp.WithString("mode",
			mcp.Description("Octal permission mode (default: 600)"),
			mcp.DefaultString("600"),
		),
	)
}

func fileReadSecureTool() mcp.Tool {
	return mcp.NewTool("file_read_secure",
		mcp.WithDescription("Read a file after validating its path against traversal and the configured boundary"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The path to read"),
		),
	)
}

func fileShredTool() mcp.Tool {
	return mcp.NewTool("file_shred",
		mcp.WithDescription("Securely delete a file: multi-pass random overwrite, zero pass, then unlink. Best effort on copy-on-write or wear-leveled storage"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The file to shred; validated against the configured boundary"),
		),
		mcp.WithNumber("passes",
			mcp.Description("Random overwrite passes before the zero pass (default: from config)"),
		),
	)
}

func secretStashTool() mcp.Tool {
	return mcp.NewTool("secret_stash",
		mcp.WithDescription("Store a named secret in the OS keyring (or wiped process memory as fallback)"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The secret's name"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("The secret value"),
		),
	)
}

func secretFetchTool() mcp.Tool {
	return mcp.NewTool("secret_fetch",
		mcp.WithDescription("Retrieve a named secret from the stash"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The secret's name"),
		),
	)
}

func secretDropTool() mcp.Tool {
	return mcp.NewTool("secret_drop",
		mcp.WithDescription("Remove a named secret from the stash"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The secret's name"),
		),
	)
}

// Tool handlers

func (s *Server) handleTokenGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	numBytes := mcp.ParseInt(req, "bytes", security.DefaultTokenBytes)

	token, err := s.tokens.Token(numBytes)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("token_generated", map[string]any{"bytes": numBytes}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"token": token})
}

func (s *Server) handleHashData(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data := mcp.ParseString(req, "data", "")
	algorithm := mcp.ParseString(req, "algorithm", "sha256")

	digest, err := security.HashData([]byte(data), algorithm)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"algorithm": algorithm,
		"digest":    digest,
	})
}

func (s *Server) handlePathValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	cfg, validator := s.policy()
	base := mcp.ParseString(req, "allowed_base", cfg.Security.AllowedBase)

	resolved, err := validator.Validate(path, base)
	if err != nil {
		if security.IsRejection(err) {
			s.auditRejection("path_rejected", map[string]any{"path": path, "reason": err.Error()})
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{"path": resolved})
}

func (s *Server) handleCommandExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	program := mcp.ParseString(req, "program", "")
	if program == "" {
		return mcp.NewToolResultError("program is required"), nil
	}
	args, err := parseStringSlice(req, "args")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg, _ := s.policy()
	timeoutMs := mcp.ParseInt(req, "timeout_ms", int(cfg.Security.CommandTimeout.Milliseconds()))

	spec := runner.Spec{
		Argv:      append([]string{program}, args...),
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Allowlist: cfg.Security.CommandAllowlist,
	}
	if spec.Allowlist == nil {
		// No allowlist configured: keep the nil (disabled) semantics explicit.
		s.logger.Warn("executing without a command allowlist",
			slog.String("program", program),
		)
	}

	result, err := s.runner.Execute(ctx, spec)
	if err != nil {
		if security.IsRejection(err) {
			s.auditRejection("command_rejected", map[string]any{"program": program, "reason": err.Error()})
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("command_executed", map[string]any{
		"program":   program,
		"exit_code": result.ExitCode,
		"succeeded": result.Succeeded,
	}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) handleFileWriteSecure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", "")
	content := mcp.ParseString(req, "content", "")
	modeStr := mcp.ParseString(req, "mode", "600")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	mode, err := strconv.ParseUint(modeStr, 8, 32)
	if err != nil {
		return mcp.NewToolResultError("mode must be an octal permission string"), nil
	}

	cfg, validator := s.policy()
	resolved, err := validator.Validate(path, cfg.Security.AllowedBase)
	if err != nil {
		if security.IsRejection(err) {
			s.auditRejection("path_rejected", map[string]any{"path": path, "reason": err.Error()})
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.storage.WriteSecure(resolved, []byte(content), fs.FileMode(mode)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("file_written", map[string]any{
		"path":  resolved,
		"bytes": len(content),
		"mode":  modeStr,
	}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"path": resolved, "bytes": len(content)})
}

func (s *Server) handleFileReadSecure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}

	cfg, validator := s.policy()
	resolved, err := validator.Validate(path, cfg.Security.AllowedBase)
	if err != nil {
		if security.IsRejection(err) {
			s.auditRejection("path_rejected", map[string]any{"path": path, "reason": err.Error()})
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("file_read", map[string]any{
		"path":  resolved,
		"bytes": len(data),
	}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"path": resolved, "content": string(data)})
}

func (s *Server) handleFileShred(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := mcp.ParseString(req, "path", "")
	if path == "" {
		return mcp.NewToolResultError("path is required"), nil
	}
	cfg, validator := s.policy()
	passes := mcp.ParseInt(req, "passes", cfg.Storage.WipePasses)

	resolved, err := validator.Validate(path, cfg.Security.AllowedBase)
	if err != nil {
		if security.IsRejection(err) {
			s.auditRejection("path_rejected", map[string]any{"path": path, "reason": err.Error()})
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.storage.SecureDelete(resolved, passes); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("file_shredded", map[string]any{
		"path":   resolved,
		"passes": passes,
	}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"path": resolved, "shredded": true})
}

func (s *Server) handleSecretStash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(req, "name", "")
	value := mcp.ParseString(req, "value", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	secret := []byte(value)
	err := s.secrets.Put(name, secret)
	security.WipeBytes(secret)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("secret_stashed", map[string]any{
		"name":    name,
		"keyring": s.secrets.Keyring(),
	}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"name": name, "keyring": s.secrets.Keyring()})
}

func (s *Server) handleSecretFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(req, "name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	secret, err := s.secrets.Get(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if secret == nil {
		return mcp.NewToolResultError("secret not found: " + name), nil
	}

	if err := s.audit("secret_fetched", map[string]any{"name": name}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, rerr := jsonResult(map[string]any{"name": name, "value": string(secret)})
	security.WipeBytes(secret)
	return result, rerr
}

func (s *Server) handleSecretDrop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := mcp.ParseString(req, "name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	if err := s.secrets.Delete(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.audit("secret_dropped", map[string]any{"name": name}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"name": name, "dropped": true})
}

// audit appends a record and propagates any failure; audit loss is never
// silent.
func (s *Server) audit(action string, details map[string]any) error {
	if _, err := s.trail.Record(action, details); err != nil {
		s.logger.Error("audit append failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// auditRejection records a policy rejection. The rejection itself is already
// being surfaced to the caller; a failure to audit it is logged but does not
// replace the original error.
func (s *Server) auditRejection(action string, details map[string]any) {
	if _, err := s.trail.Record(action, details); err != nil {
		s.logger.Error("audit append failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}

// parseStringSlice reads an optional array argument as []string.
func parseStringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s must contain only strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
