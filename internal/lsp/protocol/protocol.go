// Package protocol holds the subset of the Language Server Protocol that
// strand speaks, and the JSON-RPC connection it is carried over.
package protocol

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// DocumentURI is a URI as used in LSP, typically file://.
type DocumentURI string

// Position in a text document. Character is measured in UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document, end exclusive.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a version of a text document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a document to the server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams names a position inside a document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextEdit replaces a range.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentContentChangeEvent replaces Range, or the whole document
// when Range is nil.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// --- Lifecycle ---

type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	ClientInfo            *ClientInfo        `json:"clientInfo,omitempty"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ClientInfo        `json:"serverInfo,omitempty"`
}

type InitializedParams struct{}

type ClientCapabilities struct {
	TextDocument TextDocumentClientCapabilities `json:"textDocument"`
}

type TextDocumentClientCapabilities struct {
	Synchronization    *SynchronizationCapabilities      `json:"synchronization,omitempty"`
	Completion         *CompletionClientCapabilities     `json:"completion,omitempty"`
	PublishDiagnostics *PublishDiagnosticsCapabilities   `json:"publishDiagnostics,omitempty"`
	SemanticTokens     *SemanticTokensClientCapabilities `json:"semanticTokens,omitempty"`
}

type SynchronizationCapabilities struct {
	DidSave bool `json:"didSave,omitempty"`
}

type CompletionClientCapabilities struct {
	CompletionItem struct {
		SnippetSupport bool `json:"snippetSupport"`
	} `json:"completionItem"`
}

type PublishDiagnosticsCapabilities struct {
	VersionSupport bool `json:"versionSupport"`
}

type SemanticTokensClientCapabilities struct {
	Requests struct {
		Range bool `json:"range"`
		Full  bool `json:"full"`
	} `json:"requests"`
	TokenTypes     []string `json:"tokenTypes"`
	TokenModifiers []string `json:"tokenModifiers"`
	Formats        []string `json:"formats"`
}

type ServerCapabilities struct {
	// TextDocumentSync is a TextDocumentSyncKind or an options object.
	TextDocumentSync       json.RawMessage        `json:"textDocumentSync,omitempty"`
	CompletionProvider     *CompletionOptions     `json:"completionProvider,omitempty"`
	SemanticTokensProvider *SemanticTokensOptions `json:"semanticTokensProvider,omitempty"`
}

type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

type SemanticTokensOptions struct {
	Legend SemanticTokensLegend `json:"legend"`
	// Range is a bool or an empty object.
	Range json.RawMessage `json:"range,omitempty"`
}

// SupportsRange reports whether tokens can be requested for a range.
func (o *SemanticTokensOptions) SupportsRange() bool {
	s := strings.TrimSpace(string(o.Range))
	return s != "" && s != "false" && s != "null"
}

// TextDocumentSyncKind is how the server wants documents synchronized.
type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

// SyncKind extracts the synchronization kind from the capabilities.
func (c ServerCapabilities) SyncKind() TextDocumentSyncKind {
	if len(c.TextDocumentSync) == 0 {
		return SyncNone
	}
	var kind TextDocumentSyncKind
	if err := json.Unmarshal(c.TextDocumentSync, &kind); err == nil {
		return kind
	}
	var opts struct {
		Change TextDocumentSyncKind `json:"change"`
	}
	if err := json.Unmarshal(c.TextDocumentSync, &opts); err == nil {
		return opts.Change
	}
	return SyncNone
}

// --- Document sync ---

type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// --- Completion ---

type CompletionParams struct {
	TextDocumentPositionParams
}

type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

type CompletionItem struct {
	Label      string             `json:"label"`
	Kind       CompletionItemKind `json:"kind,omitempty"`
	Detail     string             `json:"detail,omitempty"`
	SortText   string             `json:"sortText,omitempty"`
	FilterText string             `json:"filterText,omitempty"`
	InsertText string             `json:"insertText,omitempty"`
	TextEdit   *TextEdit          `json:"textEdit,omitempty"`
}

type CompletionItemKind int

const (
	CompletionItemKindText     CompletionItemKind = 1
	CompletionItemKindMethod   CompletionItemKind = 2
	CompletionItemKindFunction CompletionItemKind = 3
	CompletionItemKindField    CompletionItemKind = 5
	CompletionItemKindVariable CompletionItemKind = 6
	CompletionItemKindClass    CompletionItemKind = 7
	CompletionItemKindModule   CompletionItemKind = 9
	CompletionItemKindKeyword  CompletionItemKind = 14
	CompletionItemKindSnippet  CompletionItemKind = 15
	CompletionItemKindConstant CompletionItemKind = 21
	CompletionItemKindStruct   CompletionItemKind = 22
)

func (k CompletionItemKind) String() string {
	switch k {
	case CompletionItemKindText:
		return "text"
	case CompletionItemKindMethod:
		return "method"
	case CompletionItemKindFunction:
		return "function"
	case CompletionItemKindField:
		return "field"
	case CompletionItemKindVariable:
		return "variable"
	case CompletionItemKindClass:
		return "class"
	case CompletionItemKindModule:
		return "module"
	case CompletionItemKindKeyword:
		return "keyword"
	case CompletionItemKindSnippet:
		return "snippet"
	case CompletionItemKindConstant:
		return "constant"
	case CompletionItemKindStruct:
		return "struct"
	default:
		return ""
	}
}

// ParseCompletionResult parses a completion response, which may be a list
// or a bare array of items.
func ParseCompletionResult(data json.RawMessage) (*CompletionList, error) {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return &CompletionList{}, nil
	}
	if strings.HasPrefix(s, "[") {
		var items []CompletionItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse completion items: %w", err)
		}
		return &CompletionList{Items: items}, nil
	}
	var list CompletionList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse completion list: %w", err)
	}
	return &list, nil
}

// --- Diagnostics ---

type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     int          `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	// Code is a string or a number.
	Code    any    `json:"code,omitempty"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// --- Semantic tokens ---

type SemanticTokensLegend struct {
	TokenTypes     []string `json:"tokenTypes"`
	TokenModifiers []string `json:"tokenModifiers"`
}

type SemanticTokensRangeParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
}

type SemanticTokensParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// SemanticTokens holds tokens as groups of five integers: delta line,
// delta start character, length, type index and modifier bits.
type SemanticTokens struct {
	Data []uint32 `json:"data"`
}

// Token is one decoded semantic token.
type Token struct {
	Line      int
	Character int
	Length    int
	Type      string
}

// Decode expands the relative encoding using the legend. Tokens with an
// unknown type index are skipped.
func (t SemanticTokens) Decode(legend SemanticTokensLegend) []Token {
	out := make([]Token, 0, len(t.Data)/5)
	line, char := 0, 0
	for i := 0; i+4 < len(t.Data); i += 5 {
		dl, dc := int(t.Data[i]), int(t.Data[i+1])
		if dl > 0 {
			line += dl
			char = dc
		} else {
			char += dc
		}
		ti := int(t.Data[i+3])
		if ti >= len(legend.TokenTypes) {
			continue
		}
		out = append(out, Token{Line: line, Character: char, Length: int(t.Data[i+2]), Type: legend.TokenTypes[ti]})
	}
	return out
}

// --- URIs ---

// FilePathToURI converts a file path to a file:// URI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	path = filepath.ToSlash(path)
	// Windows drive letters need a leading slash.
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}
	u := &url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// URI to a path. Other URIs are returned
// unchanged.
func URIToFilePath(uri DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	path := u.Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// DetectLanguageID returns the LSP language id for a file path.
func DetectLanguageID(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".rs":
		return "rust"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js":
		return "javascript"
	case ".py":
		return "python"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".hpp":
		return "cpp"
	case ".java":
		return "java"
	case ".lua":
		return "lua"
	case ".sh", ".bash":
		return "shellscript"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".md", ".markdown":
		return "markdown"
	}
	switch strings.ToLower(filepath.Base(path)) {
	case "makefile", "gnumakefile":
		return "makefile"
	case "dockerfile":
		return "dockerfile"
	}
	return "plaintext"
}
