// Package mcp exposes the fillable-form pipeline as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/formably/pdf-fillable/internal/config"
	"github.com/formably/pdf-fillable/internal/fillable"
	"github.com/formably/pdf-fillable/internal/geometry"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server represents the MCP server instance.
type Server struct {
	config    *config.Config
	service   *fillable.Service
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance.
func NewServer(cfg *config.Config, service *fillable.Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_add_document",
		mcp.WithDescription("Ingest a PDF file so its blank lines can be detected and edited"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Full path to the PDF file"),
		),
	), s.handleAddDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_list_documents",
		mcp.WithDescription("List the ingested documents with their page and field counts"),
	), s.handleListDocuments)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_detect_fields",
		mcp.WithDescription("Detect underscore blank lines and merge them into a document's field set"),
		mcp.WithString("document_id",
			mcp.Description("Document to scan (scans every document if empty)"),
		),
	), s.handleDetectFields)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_add_field",
		mcp.WithDescription("Place a field rectangle manually (display-space coordinates)"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Owning document")),
		mcp.WithNumber("page_index", mcp.Required(), mcp.Description("0-based page index")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Left edge in display units")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Top edge in display units")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Width in display units (min 80)")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Height in display units (min 22)")),
		mcp.WithString("name", mcp.Description("Field name (generated if empty)")),
		mcp.WithBoolean("multiline", mcp.Description("Create a multi-line text field")),
	), s.handleAddField)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_update_field",
		mcp.WithDescription("Patch an existing field; omitted properties keep their value"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Owning document")),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to patch")),
		mcp.WithNumber("x", mcp.Description("New left edge")),
		mcp.WithNumber("y", mcp.Description("New top edge")),
		mcp.WithNumber("width", mcp.Description("New width")),
		mcp.WithNumber("height", mcp.Description("New height")),
		mcp.WithString("name", mcp.Description("New name (empty resets to the generated fallback)")),
		mcp.WithString("placeholder", mcp.Description("Pre-filled text for the widget")),
		mcp.WithBoolean("multiline", mcp.Description("Toggle multi-line")),
	), s.handleUpdateField)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_remove_field",
		mcp.WithDescription("Delete one field from a document"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Owning document")),
		mcp.WithString("field_id", mcp.Required(), mcp.Description("Field to delete")),
	), s.handleRemoveField)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_export_document",
		mcp.WithDescription("Export one document as a fillable PDF"),
		mcp.WithString("document_id", mcp.Required(), mcp.Description("Document to export")),
		mcp.WithString("output_path", mcp.Required(), mcp.Description("Where to write the exported PDF")),
	), s.handleExportDocument)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_export_all",
		mcp.WithDescription("Export every document with fields as a single ZIP archive"),
		mcp.WithString("output_path", mcp.Required(), mcp.Description("Where to write the archive")),
	), s.handleExportAll)

	s.mcpServer.AddTool(mcp.NewTool(
		"pdf_server_info",
		mcp.WithDescription("Get server information and the current session contents"),
	), s.handleServerInfo)
}

// Handler functions

func (s *Server) handleAddDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.AddDocument(fillable.AddDocumentRequest{Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Ingested %s\n", result.FileName)
	responseText += fmt.Sprintf("Document ID: %s\n", result.DocumentID)
	responseText += fmt.Sprintf("Pages: %d\n", result.PageCount)
	responseText += fmt.Sprintf("Size: %d bytes\n", result.Size)
	responseText += "\nRun 'pdf_detect_fields' to locate blank lines."

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.service.ListDocuments()
	if len(infos) == 0 {
		return mcp.NewToolResultText("No documents ingested yet. Use 'pdf_add_document' first."), nil
	}

	responseText := fmt.Sprintf("%d document(s):\n", len(infos))
	for i, info := range infos {
		marker := " "
		if info.Active {
			marker = "*"
		}
		responseText += fmt.Sprintf("%s %d. %s\n", marker, i+1, info.FileName)
		responseText += fmt.Sprintf("    ID: %s\n", info.DocumentID)
		responseText += fmt.Sprintf("    Pages: %d, Fields: %d\n", info.PageCount, info.FieldCount)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleDetectFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	if id, ok := args["document_id"].(string); ok && id != "" {
		result, err := s.service.DetectFields(ctx, fillable.DetectFieldsRequest{DocumentID: id})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(s.formatDetectResult(*result)), nil
	}

	all, err := s.service.DetectAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := ""
	for _, r := range all.Results {
		responseText += s.formatDetectResult(r) + "\n"
	}
	if len(all.Warnings) > 0 {
		responseText += fmt.Sprintf("\n%d document(s) failed detection:\n", len(all.Warnings))
		for _, wmsg := range all.Warnings {
			responseText += "  - " + wmsg + "\n"
		}
	}
	if responseText == "" {
		responseText = "No documents to scan."
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleAddField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()

	f := geometry.Field{}
	pageIndex, ok := args["page_index"].(float64)
	if !ok {
		return mcp.NewToolResultError("page_index is required"), nil
	}
	f.PageIndex = int(pageIndex)
	for _, req := range []struct {
		key string
		dst *float64
	}{
		{"x", &f.X}, {"y", &f.Y}, {"width", &f.Width}, {"height", &f.Height},
	} {
		v, ok := args[req.key].(float64)
		if !ok {
			return mcp.NewToolResultError(req.key + " is required"), nil
		}
		*req.dst = v
	}
	if name, ok := args["name"].(string); ok {
		f.Name = name
	}
	if multiline, ok := args["multiline"].(bool); ok {
		f.Multiline = multiline
	}

	added, err := s.service.AddField(docID, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := fmt.Sprintf("Added field %s (%s) at (%.1f, %.1f) %gx%g on page %d",
		added.Name, added.ID, added.X, added.Y, added.Width, added.Height, added.PageIndex+1)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleUpdateField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := request.GetArguments()

	patch := geometry.FieldPatch{}
	if v, ok := args["x"].(float64); ok {
		patch.X = &v
	}
	if v, ok := args["y"].(float64); ok {
		patch.Y = &v
	}
	if v, ok := args["width"].(float64); ok {
		patch.Width = &v
	}
	if v, ok := args["height"].(float64); ok {
		patch.Height = &v
	}
	if v, ok := args["name"].(string); ok {
		patch.Name = &v
	}
	if v, ok := args["placeholder"].(string); ok {
		patch.Placeholder = &v
	}
	if v, ok := args["multiline"].(bool); ok {
		patch.Multiline = &v
	}

	if patch.IsEmpty() {
		return mcp.NewToolResultError("nothing to update: provide at least one property"), nil
	}
	if err := s.service.UpdateField(docID, fieldID, patch); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Updated field %s", fieldID)), nil
}

func (s *Server) handleRemoveField(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fieldID, err := request.RequireString("field_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.service.RemoveField(docID, fieldID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed field %s", fieldID)), nil
}

func (s *Server) handleExportDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := request.RequireString("document_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outputPath, err := request.RequireString("output_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.ExportDocument(ctx, docID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := os.WriteFile(outputPath, result.Data, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write %s: %v", outputPath, err)), nil
	}

	responseText := fmt.Sprintf("Exported %s (%d bytes) to %s", result.FileName, len(result.Data), outputPath)
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleExportAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outputPath, err := request.RequireString("output_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	blob, err := s.service.ExportAll(ctx)
	if err != nil {
		if fillable.IsNoFields(err) {
			return mcp.NewToolResultError("no document has any fields; run 'pdf_detect_fields' or add fields first"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := os.WriteFile(outputPath, blob, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("write %s: %v", outputPath, err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Exported archive (%d bytes) to %s", len(blob), outputPath)), nil
}

func (s *Server) handleServerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos := s.service.ListDocuments()

	responseText := fmt.Sprintf("%s v%s\n", s.config.ServerName, s.config.Version)
	responseText += fmt.Sprintf("PDF directory: %s\n", s.config.PDFDirectory)
	responseText += fmt.Sprintf("Render scale: %g\n", s.config.Scale)
	responseText += fmt.Sprintf("Max file size: %d MB\n\n", s.config.MaxFileSize/(1024*1024))
	responseText += fmt.Sprintf("Session: %d document(s)\n", len(infos))
	for _, info := range infos {
		responseText += fmt.Sprintf("  - %s: %d pages, %d fields\n", info.FileName, info.PageCount, info.FieldCount)
	}
	responseText += `
Workflow:
1. 'pdf_add_document' for each source PDF
2. 'pdf_detect_fields' to locate underscore blank lines
3. 'pdf_add_field' / 'pdf_update_field' / 'pdf_remove_field' to adjust
4. 'pdf_export_document' or 'pdf_export_all' to produce fillable PDFs`

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) formatDetectResult(r fillable.DetectFieldsResult) string {
	text := fmt.Sprintf("Document %s: %d candidate(s), %d merged (%d duplicate(s) dropped)\n",
		r.DocumentID, len(r.Detected), r.Merged, len(r.Detected)-r.Merged)
	for _, f := range r.Detected {
		text += fmt.Sprintf("  %s: page %d (%.1f, %.1f) %.0fx%.0f\n",
			f.Name, f.PageIndex+1, f.X, f.Y, f.Width, f.Height)
	}
	return text
}

// Run starts the MCP server over stdio.
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsDebug() {
		log.Printf("Starting pdf-fillable MCP server in stdio mode")
		log.Printf("PDF directory: %s", s.config.PDFDirectory)
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
