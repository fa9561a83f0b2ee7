package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/AnTengye/contractgraph/model"
)

// ErrMissingSource reports that an input source is absent.
var ErrMissingSource = errors.New("source is missing")

// DocumentSource supplies the structured, page-level form of a document.
type DocumentSource interface {
	Document(ctx context.Context) (*model.Document, error)
}

// TextSource supplies the plain-text form of a document used as fallback.
type TextSource interface {
	ReadText(ctx context.Context) (string, error)
}

// JSONFile is a DocumentSource backed by a page JSON file.
type JSONFile struct {
	Path string
}

func (f JSONFile) Document(_ context.Context) (*model.Document, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingSource, f.Path)
		}
		return nil, fmt.Errorf("failed to open structured source: %w", err)
	}
	defer file.Close()
	return LoadDocument(file)
}

// StaticDocument is a DocumentSource for a document already in memory.
type StaticDocument struct {
	Doc *model.Document
}

func (s StaticDocument) Document(_ context.Context) (*model.Document, error) {
	if s.Doc == nil {
		return nil, ErrMissingSource
	}
	return s.Doc, nil
}

// FileTextSource reads fallback text from a file. A file that does not exist
// is reported as ErrMissingSource.
type FileTextSource struct {
	Path string
}

func (f FileTextSource) ReadText(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrMissingSource, f.Path)
		}
		return "", fmt.Errorf("failed to read fallback text: %w", err)
	}
	return string(data), nil
}

// StaticTextSource serves fallback text held in memory.
type StaticTextSource string

func (s StaticTextSource) ReadText(_ context.Context) (string, error) {
	return string(s), nil
}

const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "page": {
      "type": "object",
      "properties": {
        "text": {"type": ["string", "null"]}
      }
    },
    "document": {
      "type": "object",
      "required": ["pages"],
      "properties": {
        "pages": {"type": "array", "items": {"$ref": "#/definitions/page"}}
      }
    }
  },
  "oneOf": [
    {"$ref": "#/definitions/document"},
    {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/document"}}
  ]
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("document.json", strings.NewReader(documentSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("document.json")
	})
	return schema, schemaErr
}

// LoadDocument decodes a page JSON document. Both {"pages": [...]} and a list
// of such objects are accepted; the pages of a list are concatenated.
func LoadDocument(r io.Reader) (*model.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read structured source: %w", err)
	}
	s, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse structured source: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return nil, fmt.Errorf("structured source does not match schema: %w", err)
	}

	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		var docs []model.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("failed to decode structured source: %w", err)
		}
		doc := &model.Document{}
		for _, d := range docs {
			doc.Pages = append(doc.Pages, d.Pages...)
		}
		return doc, nil
	}
	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode structured source: %w", err)
	}
	return &doc, nil
}
