package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jacksodj/unicel/engine"
)

const (
	serverName    = "unicel"
	serverVersion = "0.1.0"
)

// Server hosts the workbook behind MCP tools over stdio. The engine is
// single-writer; one mutex serializes every tool call.
type Server struct {
	mcpServer *mcp.Server

	mu sync.Mutex
	wb *engine.Workbook

	path     string
	autosave bool
}

// New creates a configured server, loading the workbook from
// cfg.WorkbookPath when the file exists.
func New(cfg Config) (*Server, error) {
	wb, err := openWorkbook(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		wb:       wb,
		path:     cfg.WorkbookPath,
		autosave: cfg.Autosave,
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerTools(s.mcpServer, s)
	return s, nil
}

func openWorkbook(cfg Config) (*engine.Workbook, error) {
	if cfg.WorkbookPath == "" {
		return engine.NewWorkbook(cfg.WorkbookName), nil
	}
	wb, err := engine.LoadFile(cfg.WorkbookPath)
	if err == nil {
		return wb, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("workbook %s not found, starting empty", cfg.WorkbookPath)
		return engine.NewWorkbook(cfg.WorkbookName), nil
	}
	return nil, fmt.Errorf("load workbook %s: %w", cfg.WorkbookPath, err)
}

// Serve runs the MCP server on stdio until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// saveIfEnabled writes the document back after a mutation. Callers hold
// the mutex.
func (s *Server) saveIfEnabled() {
	if !s.autosave || s.path == "" {
		return
	}
	if err := engine.SaveFile(s.wb, s.path); err != nil {
		log.Printf("autosave %s: %v", s.path, err)
	}
}
