// Package mcp implements the MCP protocol server for secure-automation-mcp.
// It exposes the security primitives as tools over stdio and records every
// sensitive action in the audit trail.
package mcp

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/acolita/secure-automation-mcp/internal/audit"
	"github.com/acolita/secure-automation-mcp/internal/config"
	"github.com/acolita/secure-automation-mcp/internal/pathcheck"
	"github.com/acolita/secure-automation-mcp/internal/runner"
	"github.com/acolita/secure-automation-mcp/internal/security"
	"github.com/acolita/secure-automation-mcp/internal/storage"
	"github.com/acolita/secure-automation-mcp/internal/vault"
)

// Server wraps the MCP server implementation and the security components it
// mediates access to.
type Server struct {
	mcpServer *server.MCPServer

	mu        sync.RWMutex
	config    *config.Config
	validator *pathcheck.Validator

	storage *storage.SecureStorage
	runner  *runner.Runner
	trail   *audit.Log
	secrets *vault.Store
	tokens  *security.TokenGenerator
	logger  *slog.Logger
}

// NewServer assembles the MCP server and its components from cfg. Failure to
// create the secure temp directory or to open the audit trail is fatal: the
// server never starts in a degraded-security mode.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	validator, err := pathcheck.New(cfg.Security.DeniedPathGlobs...)
	if err != nil {
		return nil, fmt.Errorf("build path validator: %w", err)
	}

	store, err := storage.Open(
		storage.WithLogger(logger),
		storage.WithPasses(cfg.Storage.WipePasses),
	)
	if err != nil {
		return nil, fmt.Errorf("initialize secure environment: %w", err)
	}

	auditPath := cfg.Audit.Path
	if auditPath == "" {
		auditPath = config.DefaultAuditPath()
	}
	trail, err := audit.NewLog(auditPath, audit.WithLogger(logger))
	if err != nil {
		_ = store.Cleanup()
		return nil, fmt.Errorf("open audit trail: %w", err)
	}

	vaultOpts := []vault.Option{
		vault.WithLogger(logger),
		vault.WithMemoryTTL(cfg.Vault.MemoryTTL),
	}
	if !cfg.Vault.UseKeyring {
		vaultOpts = append(vaultOpts, vault.WithoutKeyring())
	}

	mcpServer := server.NewMCPServer(
		"secure-automation-mcp",
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		config:    cfg,
		validator: validator,
		storage:   store,
		runner:    runner.New(logger),
		trail:     trail,
		secrets:   vault.NewStore(vaultOpts...),
		tokens:    security.NewTokenGenerator(),
		logger:    logger,
	}

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. It blocks until the client
// disconnects.
func (s *Server) Run() error {
	s.logger.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// UpdateConfig applies a new configuration at runtime. Path policy and
// command policy hot-reload; the scratch directory and audit trail keep
// their original locations until restart.
func (s *Server) UpdateConfig(cfg *config.Config) {
	validator, err := pathcheck.New(cfg.Security.DeniedPathGlobs...)
	if err != nil {
		s.logger.Warn("failed to update path validator, keeping previous",
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.config = cfg
	s.validator = validator
	s.mu.Unlock()

	s.logger.Info("configuration hot-reloaded")
}

// policy returns the current config and validator under the read lock.
func (s *Server) policy() (*config.Config, *pathcheck.Validator) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.validator
}

// Shutdown purges the scratch directory and closes the audit trail. Safe to
// call whether the session ended normally or is aborting.
func (s *Server) Shutdown() error {
	s.secrets.Purge()

	var firstErr error
	if err := s.storage.Cleanup(); err != nil {
		s.logger.Error("secure cleanup failed", slog.String("error", err.Error()))
		firstErr = err
	}
	if err := s.trail.Close(); err != nil {
		s.logger.Error("audit trail close failed", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
