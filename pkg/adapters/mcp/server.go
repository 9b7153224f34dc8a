package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/plantopt"
	"github.com/aretw0/plantopt/pkg/domain"
	"github.com/aretw0/plantopt/pkg/outcome"
	"github.com/aretw0/plantopt/pkg/ports"
	"github.com/aretw0/plantopt/pkg/scenario"
)

// ResultsURI lists the archived runs.
const ResultsURI = "plantopt://results"

// Planner defines the planning core exposed as MCP tools.
type Planner interface {
	Solve(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, opts plantopt.RunOptions) (*domain.RunRecord, error)
	Compare(ctx context.Context, tree *scenario.Tree, spec *domain.ResourceSpec, variants ...plantopt.Variant) (*outcome.Table, []*domain.RunRecord, error)
}

// RunArgs are the arguments of the solve tool. Resources and Tree hold YAML or JSON
// documents.
type RunArgs struct {
	Label       string `json:"label,omitempty"`
	Resources   string `json:"resources"`
	Tree        string `json:"tree"`
	Formulation string `json:"formulation,omitempty"`
	Recourse    bool   `json:"recourse,omitempty"`
	Truncate    *int   `json:"truncate,omitempty"`
	Baseline    bool   `json:"baseline,omitempty"`
	WaitAndSee  bool   `json:"wait_and_see,omitempty"`
}

// CompareArgs are the arguments of the compare tool.
type CompareArgs struct {
	RunArgs
	TruncateAt int `json:"truncate_at,omitempty"`
}

// GetRunArgs are the arguments of the get_run tool.
type GetRunArgs struct {
	ID string `json:"id"`
}

// RunResponse summarizes a solved run.
type RunResponse struct {
	ID      string          `json:"id" jsonschema_description:"Identifier of the archived run"`
	Label   string          `json:"label,omitempty"`
	Status  domain.Status   `json:"status" jsonschema_description:"Solver status of the run"`
	Outcome *domain.Outcome `json:"outcome,omitempty" jsonschema_description:"Expected objective, first-stage plan and risk figures"`
}

// CompareResponse carries the comparison table and the identifiers of the solved variants.
type CompareResponse struct {
	Table *outcome.Table `json:"table"`
	Runs  []string       `json:"runs"`
}

// Server exposes the planner as an MCP server.
type Server struct {
	planner   Planner
	store     ports.ResultStore
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server. store may be nil, in which case the run tools
// and resources are not registered.
func NewServer(planner Planner, store ports.ResultStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		planner:   planner,
		store:     store,
		logger:    logger,
		mcpServer: server.NewMCPServer("plantopt-mcp", strings.TrimSpace(plantopt.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is canceled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+ln.Addr().String()))

	mux := http.NewServeMux()
	mux.Handle("/sse", sse.SSEHandler())
	mux.Handle("/message", sse.MessageHandler())
	srv := &http.Server{Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "addr", ln.Addr().String())
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	runParams := []mcp.ToolOption{
		mcp.WithString("resources", mcp.Required(), mcp.Description("Resource spec document (YAML or JSON): inputs, products, processes and yields")),
		mcp.WithString("tree", mcp.Required(), mcp.Description("Scenario tree document (YAML or JSON): explicit nodes or a random_walk")),
		mcp.WithString("label", mcp.Description("Label of the run (optional)")),
		mcp.WithString("formulation", mcp.Description("Model formulation: node or scenario (optional)")),
		mcp.WithBoolean("recourse", mcp.Description("Allow spot purchases after the root")),
		mcp.WithNumber("truncate", mcp.Description("Collapse the tree beyond this stage (optional)")),
		mcp.WithBoolean("baseline", mcp.Description("Also report the value of the stochastic solution")),
		mcp.WithBoolean("wait_and_see", mcp.Description("Also report the expected value of perfect information")),
	}

	// TOOL: solve
	solveTool := mcp.NewTool("solve", append([]mcp.ToolOption{
		mcp.WithDescription("Solve the stochastic planning model and archive the run."),
		mcp.WithOutputSchema[RunResponse](),
	}, runParams...)...)
	s.mcpServer.AddTool(solveTool, mcp.NewStructuredToolHandler(s.handleSolve))

	// TOOL: compare
	compareTool := mcp.NewTool("compare", append([]mcp.ToolOption{
		mcp.WithDescription("Compare the stochastic model with its truncation, the expected-value problem and the model without recourse."),
		mcp.WithNumber("truncate_at", mcp.Description("Stage at which the truncated variant is cut (default 0)")),
	}, runParams...)...)
	s.mcpServer.AddTool(compareTool, mcp.NewStructuredToolHandler(s.handleCompare))

	if s.store == nil {
		return
	}

	// TOOL: get_run
	getTool := mcp.NewTool("get_run",
		mcp.WithDescription("Load an archived run with its full solution."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Identifier of the run")),
	)
	s.mcpServer.AddTool(getTool, mcp.NewStructuredToolHandler(s.handleGetRun))

	// TOOL: list_runs
	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List the archived runs, most recent first."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.store.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
		}
		if ids == nil {
			ids = []string{}
		}
		data, _ := json.Marshal(ids)
		return mcp.NewToolResultText(string(data)), nil
	})
}

func (s *Server) handleSolve(ctx context.Context, request mcp.CallToolRequest, args RunArgs) (RunResponse, error) {
	tree, spec, err := args.decode()
	if err != nil {
		s.logger.Warn("MCP solve: request rejected", "err", err)
		return RunResponse{}, err
	}
	rec, err := s.planner.Solve(ctx, tree, spec, args.options())
	if err != nil {
		return RunResponse{}, fmt.Errorf("solve failed: %w", err)
	}
	resp := RunResponse{ID: rec.ID, Label: rec.Label, Outcome: rec.Outcome}
	if rec.Result != nil {
		resp.Status = rec.Result.Status
	}
	return resp, nil
}

func (s *Server) handleCompare(ctx context.Context, request mcp.CallToolRequest, args CompareArgs) (CompareResponse, error) {
	tree, spec, err := args.decode()
	if err != nil {
		s.logger.Warn("MCP compare: request rejected", "err", err)
		return CompareResponse{}, err
	}
	variants := plantopt.DefaultVariants(args.options(), args.TruncateAt)
	table, records, err := s.planner.Compare(ctx, tree, spec, variants...)
	if err != nil {
		return CompareResponse{}, fmt.Errorf("compare failed: %w", err)
	}
	resp := CompareResponse{Table: table, Runs: make([]string, 0, len(records))}
	for _, rec := range records {
		if rec != nil {
			resp.Runs = append(resp.Runs, rec.ID)
		}
	}
	return resp, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest, args GetRunArgs) (*domain.RunRecord, error) {
	if args.ID == "" {
		return nil, fmt.Errorf("id is required: %w", domain.ErrInvalidSpec)
	}
	rec, err := s.store.Load(ctx, args.ID)
	if err != nil {
		return nil, fmt.Errorf("load failed: %w", err)
	}
	return rec, nil
}

func (s *Server) registerResources() {
	if s.store == nil {
		return
	}
	// EXPOSE: plantopt://results
	s.mcpServer.AddResource(mcp.NewResource(ResultsURI, "Archived Runs",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		data, _ := json.Marshal(ids)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      ResultsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func (a RunArgs) options() plantopt.RunOptions {
	return plantopt.RunOptions{
		Label:      a.Label,
		Model:      domain.ModelConfig{Formulation: domain.Formulation(a.Formulation), Recourse: a.Recourse},
		Truncate:   a.Truncate,
		Baseline:   a.Baseline,
		WaitAndSee: a.WaitAndSee,
	}
}

func (a RunArgs) decode() (*scenario.Tree, *domain.ResourceSpec, error) {
	var spec domain.ResourceSpec
	if err := unmarshalDocument(a.Resources, &spec); err != nil {
		return nil, nil, fmt.Errorf("resources: %v: %w", err, domain.ErrInvalidSpec)
	}
	if err := spec.Validate(); err != nil {
		return nil, nil, fmt.Errorf("resources: %w", err)
	}
	var desc scenario.Description
	if err := unmarshalDocument(a.Tree, &desc); err != nil {
		return nil, nil, fmt.Errorf("tree: %v: %w", err, domain.ErrMalformedTree)
	}
	tree, err := desc.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("tree: %w", err)
	}
	return tree, &spec, nil
}

// unmarshalDocument decodes JSON objects with encoding/json and anything else as YAML.
func unmarshalDocument(doc string, out any) error {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return errors.New("empty document")
	}
	if strings.HasPrefix(doc, "{") {
		return json.Unmarshal([]byte(doc), out)
	}
	return yaml.Unmarshal([]byte(doc), out)
}
