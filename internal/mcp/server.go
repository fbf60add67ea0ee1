package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/conviction/internal/config"
	"github.com/nvandessel/conviction/internal/ratelimit"
	"github.com/nvandessel/conviction/internal/store"
)

// Server wraps the MCP SDK server and exposes simulation runs as tools.
type Server struct {
	server       *sdk.Server
	store        store.HistoryStore
	base         *config.Config
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "conviction")
	Version string // Server version

	// Store records runs started through the server. The server owns it
	// and closes it on shutdown.
	Store store.HistoryStore

	// Base is the configuration tool calls start from. Defaults apply
	// when nil.
	Base *config.Config

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with conviction tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("mcp server requires a history store")
	}
	base := cfg.Base
	if base == nil {
		base = config.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:       mcpServer,
		store:        cfg.Store,
		base:         base,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if closeErr := s.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Close closes the store and the audit log.
func (s *Server) Close() error {
	if err := s.auditLogger.Close(); err != nil {
		s.logger.Warn("failed to close audit log", "error", err)
	}
	return s.store.Close()
}
