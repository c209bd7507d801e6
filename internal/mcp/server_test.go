package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/acolita/secure-automation-mcp/internal/audit"
	"github.com/acolita/secure-automation-mcp/internal/config"
)

// --- Test helpers ---

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.jsonl")
	cfg.Vault.UseKeyring = false
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

func makeRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	tc, ok := mcpgo.AsTextContent(result.Content[0])
	if !ok {
		return ""
	}
	return tc.Text
}

func resultJSON(t *testing.T, result *mcpgo.CallToolResult) map[string]any {
	t.Helper()
	text := resultText(result)
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		t.Fatalf("failed to parse result JSON: %v (text: %s)", err, text)
	}
	return m
}

func auditActions(t *testing.T, srv *Server) []string {
	t.Helper()
	if err := srv.trail.Sync(); err != nil {
		t.Fatal(err)
	}
	records, err := audit.ReadRecords(srv.trail.Path())
	if err != nil {
		t.Fatal(err)
	}
	actions := make([]string, len(records))
	for i, rec := range records {
		actions[i] = rec.Action
	}
	return actions
}

// --- Handler tests ---

func TestHandleTokenGenerate(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.handleTokenGenerate(context.Background(), makeRequest(map[string]any{
		"bytes": float64(16),
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}

	token, _ := resultJSON(t, result)["token"].(string)
	if len(token) != 32 {
		t.Errorf("token length = %d, want 32", len(token))
	}

	actions := auditActions(t, srv)
	if len(actions) != 1 || actions[0] != "token_generated" {
		t.Errorf("audit actions = %v, want [token_generated]", actions)
	}
}

func TestHandleHashData(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.handleHashData(context.Background(), makeRequest(map[string]any{
		"data": "abc",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	digest, _ := resultJSON(t, result)["digest"].(string)
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if digest != want {
		t.Errorf("digest = %q, want %q", digest, want)
	}
}

func TestHandleHashData_UnknownAlgorithm(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.handleHashData(context.Background(), makeRequest(map[string]any{
		"data":      "abc",
		"algorithm": "md5",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Error("md5 should be rejected")
	}
}

func TestHandlePathValidate_Traversal(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.handlePathValidate(context.Background(), makeRequest(map[string]any{
		"path": "../../../etc/passwd",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Fatal("traversal path accepted")
	}
	if !strings.Contains(resultText(result), "traversal") {
		t.Errorf("error text = %q, want traversal mention", resultText(result))
	}

	actions := auditActions(t, srv)
	if len(actions) != 1 || actions[0] != "path_rejected" {
		t.Errorf("audit actions = %v, want [path_rejected]", actions)
	}
}

func TestHandlePathValidate_BoundaryFromConfig(t *testing.T) {
	base := t.TempDir()
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.AllowedBase = base
	})

	result, err := srv.handlePathValidate(context.Background(), makeRequest(map[string]any{
		"path": "/somewhere/else",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Error("path outside configured base accepted")
	}

	result, err = srv.handlePathValidate(context.Background(), makeRequest(map[string]any{
		"path": filepath.Join(base, "ok.txt"),
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError {
		t.Errorf("path inside base rejected: %s", resultText(result))
	}
}

func TestHandleCommandExecute_AllowlistDeny(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.CommandAllowlist = []string{"echo"}
	})

	result, err := srv.handleCommandExecute(context.Background(), makeRequest(map[string]any{
		"program": "cat",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Fatal("disallowed program accepted")
	}

	actions := auditActions(t, srv)
	if len(actions) != 1 || actions[0] != "command_rejected" {
		t.Errorf("audit actions = %v, want [command_rejected]", actions)
	}
}

func TestHandleCommandExecute_Allowed(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.CommandAllowlist = []string{"echo"}
	})

	result, err := srv.handleCommandExecute(context.Background(), makeRequest(map[string]any{
		"program": "echo",
		"args":    []any{"hello", "world"},
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(result))
	}

	parsed := resultJSON(t, result)
	if parsed["succeeded"] != true {
		t.Errorf("succeeded = %v, want true", parsed["succeeded"])
	}
	stdout, _ := parsed["stdout"].(string)
	if strings.TrimSpace(stdout) != "hello world" {
		t.Errorf("stdout = %q, want %q", stdout, "hello world")
	}
}

func TestHandleCommandExecute_BadArgsType(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.handleCommandExecute(context.Background(), makeRequest(map[string]any{
		"program": "echo",
		"args":    "not an array",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Error("string args accepted where an array is required")
	}
}

func TestHandleFileWriteReadShred_RoundTrip(t *testing.T) {
	base := t.TempDir()
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.AllowedBase = base
	})
	path := filepath.Join(base, "note.txt")

	result, err := srv.handleFileWriteSecure(context.Background(), makeRequest(map[string]any{
		"path":    path,
		"content": "classified",
	}))
	if err != nil {
		t.Fatalf("write handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("write tool error: %s", resultText(result))
	}

	result, err = srv.handleFileReadSecure(context.Background(), makeRequest(map[string]any{
		"path": path,
	}))
	if err != nil {
		t.Fatalf("read handler error = %v", err)
	}
	if got, _ := resultJSON(t, result)["content"].(string); got != "classified" {
		t.Errorf("content = %q, want %q", got, "classified")
	}

	result, err = srv.handleFileShred(context.Background(), makeRequest(map[string]any{
		"path": path,
	}))
	if err != nil {
		t.Fatalf("shred handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("shred tool error: %s", resultText(result))
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still present after shred")
	}

	actions := auditActions(t, srv)
	want := []string{"file_written", "file_read", "file_shredded"}
	if len(actions) != len(want) {
		t.Fatalf("audit actions = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Errorf("audit action %d = %q, want %q", i, actions[i], want[i])
		}
	}
}

func TestHandleFileWriteSecure_OutsideBase(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.AllowedBase = t.TempDir()
	})

	result, err := srv.handleFileWriteSecure(context.Background(), makeRequest(map[string]any{
		"path":    filepath.Join(t.TempDir(), "escape.txt"),
		"content": "x",
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Error("write outside the configured base accepted")
	}
}

func TestHandleSecret_StashFetchDrop(t *testing.T) {
	srv := newTestServer(t, nil)

	result, err := srv.handleSecretStash(context.Background(), makeRequest(map[string]any{
		"name":  "db-password",
		"value": "hunter2",
	}))
	if err != nil {
		t.Fatalf("stash handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("stash tool error: %s", resultText(result))
	}

	result, err = srv.handleSecretFetch(context.Background(), makeRequest(map[string]any{
		"name": "db-password",
	}))
	if err != nil {
		t.Fatalf("fetch handler error = %v", err)
	}
	if got, _ := resultJSON(t, result)["value"].(string); got != "hunter2" {
		t.Errorf("value = %q, want %q", got, "hunter2")
	}

	result, err = srv.handleSecretDrop(context.Background(), makeRequest(map[string]any{
		"name": "db-password",
	}))
	if err != nil {
		t.Fatalf("drop handler error = %v", err)
	}
	if result.IsError {
		t.Fatalf("drop tool error: %s", resultText(result))
	}

	result, err = srv.handleSecretFetch(context.Background(), makeRequest(map[string]any{
		"name": "db-password",
	}))
	if err != nil {
		t.Fatalf("second fetch handler error = %v", err)
	}
	if !result.IsError {
		t.Error("dropped secret still retrievable")
	}
}

func TestUpdateConfig_SwapsPolicy(t *testing.T) {
	srv := newTestServer(t, nil)

	cfg := config.Default()
	cfg.Security.DeniedPathGlobs = []string{"**/*.pem"}
	srv.UpdateConfig(cfg)

	result, err := srv.handlePathValidate(context.Background(), makeRequest(map[string]any{
		"path": filepath.Join(t.TempDir(), "server.pem"),
	}))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if !result.IsError {
		t.Error("deny glob from hot-reloaded config not applied")
	}
}

func TestShutdown_RemovesScratchRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.jsonl")
	cfg.Vault.UseKeyring = false

	srv, err := NewServer(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	root := srv.storage.Root()

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("scratch root still present after Shutdown")
	}
}
