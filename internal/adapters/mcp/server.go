package mcpadapter

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/paperflow/internal/core/ports"
)

type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var toolRegistry = map[string]toolEntry{
	"classify_document": {
		def: mcp.NewTool("classify_document",
			mcp.WithDescription("Classify a local document without filing it. Returns label, confidence tier and method."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the document to classify")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleClassify },
	},
	"run_pipeline": {
		def: mcp.NewTool("run_pipeline",
			mcp.WithDescription("Process every pending source document and return the run summary."),
			mcp.WithString("request_id", mcp.Description("Optional caller correlation id")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRun },
	},
	"rebuild_corpus": {
		def: mcp.NewTool("rebuild_corpus",
			mcp.WithDescription("Rebuild the exemplar index from the configured training directory."),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRebuild },
	},
	"prune_identity": {
		def: mcp.NewTool("prune_identity",
			mcp.WithDescription("Forget processed source identities older than the given number of days."),
			mcp.WithNumber("older_than_days", mcp.Required(), mcp.Description("Retention window in days, at least 1")),
		),
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePrune },
	},
}

// Deps holds the use cases exposed as tools. Nil members disable their tool.
type Deps struct {
	Pipeline     ports.PipelineExecutor
	Previewer    ports.DocumentPreviewer
	Corpus       ports.CorpusRebuilder
	Retention    ports.RetentionManager
	TrainingPath string
}

// NewServer creates an MCP server exposing the pipeline tools.
func NewServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"paperflow",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(deps)
	for name, entry := range toolRegistry {
		if !h.enabled(name) {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}
	return s
}

// Run serves the MCP server over stdio until stdin closes.
func Run(deps Deps, version string) error {
	return server.ServeStdio(NewServer(deps, version))
}
