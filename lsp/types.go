// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// POSITION & RANGE TYPES
// =============================================================================

// Position represents a position in a text document.
// Line and character are 0-indexed per LSP specification.
type Position struct {
	// Line is the 0-indexed line number.
	Line int `json:"line"`

	// Character is the 0-indexed character offset within the line.
	Character int `json:"character"`
}

// Range represents a range in a text document.
type Range struct {
	// Start is the inclusive start position.
	Start Position `json:"start"`

	// End is the exclusive end position.
	End Position `json:"end"`
}

// Location represents a location in a document.
type Location struct {
	// URI is the document URI (file:// scheme).
	URI string `json:"uri"`

	// Range is the range within the document.
	Range Range `json:"range"`
}

// LocationLink represents a link between a source and target location.
type LocationLink struct {
	// OriginSelectionRange is the span in the source that was used.
	OriginSelectionRange *Range `json:"originSelectionRange,omitempty"`

	// TargetURI is the target document URI.
	TargetURI string `json:"targetUri"`

	// TargetRange is the full range of the target (for highlighting).
	TargetRange Range `json:"targetRange"`

	// TargetSelectionRange is the precise range to reveal.
	TargetSelectionRange Range `json:"targetSelectionRange"`
}

// =============================================================================
// DOCUMENT IDENTIFIERS
// =============================================================================

// TextDocumentIdentifier identifies a text document by URI.
type TextDocumentIdentifier struct {
	// URI is the document's URI.
	URI string `json:"uri"`
}

// TextDocumentItem represents a text document with its content.
type TextDocumentItem struct {
	// URI is the document's URI.
	URI string `json:"uri"`

	// LanguageID is the language identifier (e.g., "go", "python").
	LanguageID string `json:"languageId"`

	// Version is the version number of this document.
	Version int `json:"version"`

	// Text is the content of the document.
	Text string `json:"text"`
}

// DocumentSession records that a file has been announced to its server
// via textDocument/didOpen. One session exists per open file per server.
type DocumentSession struct {
	// URI is the document's file:// URI.
	URI string

	// Version is the document version last announced to the server.
	Version int

	// Language is the language identifier sent with didOpen.
	Language string
}

// =============================================================================
// REQUEST PARAMETER TYPES
// =============================================================================

// TextDocumentPositionParams identifies a position in a text document.
type TextDocumentPositionParams struct {
	// TextDocument is the document identifier.
	TextDocument TextDocumentIdentifier `json:"textDocument"`

	// Position is the position within the document.
	Position Position `json:"position"`
}

// ReferenceParams extends TextDocumentPositionParams for find references.
type ReferenceParams struct {
	TextDocumentPositionParams

	// Context contains additional context for the request.
	Context ReferenceContext `json:"context"`
}

// ReferenceContext contains options for find references requests.
type ReferenceContext struct {
	// IncludeDeclaration indicates whether to include the declaration.
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// DidOpenTextDocumentParams contains params for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	// TextDocument is the document that was opened.
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidCloseTextDocumentParams contains params for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	// TextDocument is the document that was closed.
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentSymbolParams contains params for textDocument/documentSymbol.
type DocumentSymbolParams struct {
	// TextDocument is the document to list symbols for.
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// =============================================================================
// HOVER TYPES
// =============================================================================

// HoverResult contains hover information as returned on the wire.
type HoverResult struct {
	// Contents is the hover content in any of the shapes servers use.
	Contents HoverContents `json:"contents"`

	// Range is the range this hover applies to.
	Range *Range `json:"range,omitempty"`
}

// HoverContents is the discriminated union of the hover content shapes the
// protocol allows: a bare string, a MarkedString/MarkupContent object with
// a value field, or an array of either. The union is resolved once during
// deserialization; Flatten produces the single downstream text form.
type HoverContents struct {
	parts []string
}

// markedString matches both MarkedString ({language, value}) and
// MarkupContent ({kind, value}) objects; only the value matters here.
type markedString struct {
	Value string `json:"value"`
}

// UnmarshalJSON decodes any of the allowed hover content shapes.
func (h *HoverContents) UnmarshalJSON(data []byte) error {
	h.parts = nil
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		h.parts = []string{s}
		return nil
	}

	var obj markedString
	if err := json.Unmarshal(data, &obj); err == nil && data[0] == '{' {
		h.parts = []string{obj.Value}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return ErrInvalidResponse
	}
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			h.parts = append(h.parts, str)
			continue
		}
		var o markedString
		if err := json.Unmarshal(item, &o); err == nil {
			h.parts = append(h.parts, o.Value)
			continue
		}
		return ErrInvalidResponse
	}
	return nil
}

// Flatten joins all content entries into one string, newline-separated.
func (h HoverContents) Flatten() string {
	return strings.Join(h.parts, "\n")
}

// IsEmpty returns true if the hover carried no content.
func (h HoverContents) IsEmpty() bool {
	for _, p := range h.parts {
		if strings.TrimSpace(p) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// SYMBOL TYPES
// =============================================================================

// SymbolKind represents the kind of a symbol.
type SymbolKind int

// Symbol kinds as defined by the LSP specification.
const (
	SymbolKindFile          SymbolKind = 1
	SymbolKindModule        SymbolKind = 2
	SymbolKindNamespace     SymbolKind = 3
	SymbolKindPackage       SymbolKind = 4
	SymbolKindClass         SymbolKind = 5
	SymbolKindMethod        SymbolKind = 6
	SymbolKindProperty      SymbolKind = 7
	SymbolKindField         SymbolKind = 8
	SymbolKindConstructor   SymbolKind = 9
	SymbolKindEnum          SymbolKind = 10
	SymbolKindInterface     SymbolKind = 11
	SymbolKindFunction      SymbolKind = 12
	SymbolKindVariable      SymbolKind = 13
	SymbolKindConstant      SymbolKind = 14
	SymbolKindString        SymbolKind = 15
	SymbolKindNumber        SymbolKind = 16
	SymbolKindBoolean       SymbolKind = 17
	SymbolKindArray         SymbolKind = 18
	SymbolKindObject        SymbolKind = 19
	SymbolKindKey           SymbolKind = 20
	SymbolKindNull          SymbolKind = 21
	SymbolKindEnumMember    SymbolKind = 22
	SymbolKindStruct        SymbolKind = 23
	SymbolKindEvent         SymbolKind = 24
	SymbolKindOperator      SymbolKind = 25
	SymbolKindTypeParameter SymbolKind = 26
)

// symbolKindLabels is the closed table of human labels for the protocol's
// numeric symbol kind enum. Values outside the table map to "Unknown".
var symbolKindLabels = map[SymbolKind]string{
	SymbolKindFile:          "File",
	SymbolKindModule:        "Module",
	SymbolKindNamespace:     "Namespace",
	SymbolKindPackage:       "Package",
	SymbolKindClass:         "Class",
	SymbolKindMethod:        "Method",
	SymbolKindProperty:      "Property",
	SymbolKindField:         "Field",
	SymbolKindConstructor:   "Constructor",
	SymbolKindEnum:          "Enum",
	SymbolKindInterface:     "Interface",
	SymbolKindFunction:      "Function",
	SymbolKindVariable:      "Variable",
	SymbolKindConstant:      "Constant",
	SymbolKindString:        "String",
	SymbolKindNumber:        "Number",
	SymbolKindBoolean:       "Boolean",
	SymbolKindArray:         "Array",
	SymbolKindObject:        "Object",
	SymbolKindKey:           "Key",
	SymbolKindNull:          "Null",
	SymbolKindEnumMember:    "EnumMember",
	SymbolKindStruct:        "Struct",
	SymbolKindEvent:         "Event",
	SymbolKindOperator:      "Operator",
	SymbolKindTypeParameter: "TypeParameter",
}

// Label returns the human-readable label for a symbol kind.
func (k SymbolKind) Label() string {
	if label, ok := symbolKindLabels[k]; ok {
		return label
	}
	return "Unknown"
}

// DocumentSymbol represents a symbol in the hierarchical documentSymbol shape.
type DocumentSymbol struct {
	// Name is the symbol's name.
	Name string `json:"name"`

	// Detail provides additional information (signature, type).
	Detail string `json:"detail,omitempty"`

	// Kind is the symbol kind.
	Kind SymbolKind `json:"kind"`

	// Range is the full range of the symbol including its body.
	Range Range `json:"range"`

	// SelectionRange is the range of the symbol's name.
	SelectionRange Range `json:"selectionRange"`

	// Children are symbols nested inside this one.
	Children []DocumentSymbol `json:"children,omitempty"`
}

// SymbolInformation represents a symbol in the flat legacy shape.
type SymbolInformation struct {
	// Name is the symbol's name.
	Name string `json:"name"`

	// Kind is the symbol kind.
	Kind SymbolKind `json:"kind"`

	// Location is where the symbol is defined.
	Location Location `json:"location"`

	// ContainerName is the name of the containing symbol.
	ContainerName string `json:"containerName,omitempty"`
}

// =============================================================================
// INITIALIZE TYPES
// =============================================================================

// InitializeParams contains initialization parameters.
type InitializeParams struct {
	// ProcessID is the process ID of the parent process.
	ProcessID int `json:"processId"`

	// RootURI is the root URI of the workspace (preferred over rootPath).
	RootURI string `json:"rootUri"`

	// RootPath is the root path of the workspace (deprecated).
	RootPath string `json:"rootPath,omitempty"`

	// Capabilities describes what the client supports.
	Capabilities ClientCapabilities `json:"capabilities"`

	// InitializationOptions are custom initialization options.
	InitializationOptions interface{} `json:"initializationOptions,omitempty"`

	// WorkspaceFolders are the workspace folders if supported.
	WorkspaceFolders []WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	// URI is the folder URI.
	URI string `json:"uri"`

	// Name is the name of the folder.
	Name string `json:"name"`
}

// ClientCapabilities describes what the client supports.
type ClientCapabilities struct {
	// TextDocument describes text document capabilities.
	TextDocument TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// TextDocumentClientCapabilities describes text document capabilities.
type TextDocumentClientCapabilities struct {
	// Synchronization describes document sync capabilities.
	Synchronization *TextDocumentSyncClientCapabilities `json:"synchronization,omitempty"`

	// Definition describes go-to-definition support.
	Definition *DefinitionCapabilities `json:"definition,omitempty"`

	// References describes find-references support.
	References *ReferencesCapabilities `json:"references,omitempty"`

	// Hover describes hover support.
	Hover *HoverCapabilities `json:"hover,omitempty"`

	// DocumentSymbol describes document symbol support.
	DocumentSymbol *DocumentSymbolCapabilities `json:"documentSymbol,omitempty"`
}

// TextDocumentSyncClientCapabilities describes sync capabilities.
type TextDocumentSyncClientCapabilities struct {
	// DidSave indicates didSave notifications are supported.
	DidSave bool `json:"didSave,omitempty"`
}

// DefinitionCapabilities describes go-to-definition support.
type DefinitionCapabilities struct {
	// LinkSupport indicates LocationLink support.
	LinkSupport bool `json:"linkSupport,omitempty"`
}

// ReferencesCapabilities describes find-references support.
type ReferencesCapabilities struct{}

// HoverCapabilities describes hover support.
type HoverCapabilities struct {
	// ContentFormat describes supported content formats.
	ContentFormat []string `json:"contentFormat,omitempty"`
}

// DocumentSymbolCapabilities describes document symbol support.
type DocumentSymbolCapabilities struct {
	// HierarchicalDocumentSymbolSupport indicates nested symbols are supported.
	HierarchicalDocumentSymbolSupport bool `json:"hierarchicalDocumentSymbolSupport,omitempty"`
}

// InitializeResult contains the server's response to initialize.
type InitializeResult struct {
	// Capabilities describes what the server supports.
	Capabilities ServerCapabilities `json:"capabilities"`

	// ServerInfo contains optional server information.
	ServerInfo *ServerInfo `json:"serverInfo,omitempty"`
}

// ServerInfo contains information about the server.
type ServerInfo struct {
	// Name is the server's name.
	Name string `json:"name"`

	// Version is the server's version.
	Version string `json:"version,omitempty"`
}

// ServerCapabilities describes what the server supports.
type ServerCapabilities struct {
	// TextDocumentSync describes how documents are synced.
	TextDocumentSync interface{} `json:"textDocumentSync,omitempty"`

	// DefinitionProvider indicates textDocument/definition is supported.
	DefinitionProvider interface{} `json:"definitionProvider,omitempty"`

	// ReferencesProvider indicates textDocument/references is supported.
	ReferencesProvider interface{} `json:"referencesProvider,omitempty"`

	// HoverProvider indicates textDocument/hover is supported.
	HoverProvider interface{} `json:"hoverProvider,omitempty"`

	// DocumentSymbolProvider indicates textDocument/documentSymbol is supported.
	DocumentSymbolProvider interface{} `json:"documentSymbolProvider,omitempty"`
}

// HasDefinitionProvider returns true if definition is supported.
func (c *ServerCapabilities) HasDefinitionProvider() bool {
	return c.DefinitionProvider != nil && c.DefinitionProvider != false
}

// HasReferencesProvider returns true if references is supported.
func (c *ServerCapabilities) HasReferencesProvider() bool {
	return c.ReferencesProvider != nil && c.ReferencesProvider != false
}

// HasHoverProvider returns true if hover is supported.
func (c *ServerCapabilities) HasHoverProvider() bool {
	return c.HoverProvider != nil && c.HoverProvider != false
}

// HasDocumentSymbolProvider returns true if documentSymbol is supported.
func (c *ServerCapabilities) HasDocumentSymbolProvider() bool {
	return c.DocumentSymbolProvider != nil && c.DocumentSymbolProvider != false
}

// =============================================================================
// FAÇADE RESULT TYPES
// =============================================================================

// FileLocation is a resolved source location with 1-indexed coordinates.
// All externally observable coordinates are 1-indexed; only the wire
// protocol uses 0-indexed positions.
type FileLocation struct {
	// File is the absolute file path.
	File string `json:"file"`

	// Line is the 1-indexed start line.
	Line int `json:"line"`

	// Character is the 1-indexed start character.
	Character int `json:"character"`

	// EndLine is the 1-indexed end line.
	EndLine int `json:"end_line"`

	// EndCharacter is the 1-indexed end character.
	EndCharacter int `json:"end_character"`
}

// SymbolNode is one entry of the flattened, depth-annotated symbol listing
// produced from the protocol's nested symbol tree.
type SymbolNode struct {
	// Name is the symbol's name.
	Name string `json:"name"`

	// Kind is the human label for the symbol kind ("Function", "Class", ...).
	Kind string `json:"kind"`

	// Depth is the nesting depth in the symbol tree (0 = top level).
	Depth int `json:"depth"`

	// Line is the 1-indexed start line of the symbol.
	Line int `json:"line"`

	// EndLine is the 1-indexed end line of the symbol.
	EndLine int `json:"end_line"`
}

// HoverInfo contains flattened hover information.
type HoverInfo struct {
	// Content is the hover text (documentation, type info, etc.)
	Content string `json:"content"`

	// Range is the 0-indexed wire range this hover applies to (optional).
	Range *Range `json:"range,omitempty"`
}
