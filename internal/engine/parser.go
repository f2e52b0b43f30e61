// Package engine turns discovery engine output into job results. The
// docker and remote subpackages are the job.Engine implementations.
package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"scholarsource/internal/job"
)

const resourcesSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["title", "url"],
    "properties": {
      "type":        {"type": "string"},
      "title":       {"type": "string", "minLength": 1},
      "url":         {"type": "string", "minLength": 1},
      "source":      {"type": "string"},
      "description": {"type": "string"}
    }
  }
}`

// ErrNoOutput is returned when the engine produced nothing at all.
var ErrNoOutput = errors.New("engine produced no output")

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// Parser extracts a title and resources from engine JSON output.
type Parser struct {
	titleExpr     string
	resourcesExpr string
	title         jmespath.JMESPath
	resources     jmespath.JMESPath
	schema        *jsonschema.Schema
}

// NewParser compiles the JMESPath expressions and the resource schema.
func NewParser(titlePath, resourcesPath string) (*Parser, error) {
	title, err := jmespath.Compile(titlePath)
	if err != nil {
		return nil, fmt.Errorf("compile title path %q: %w", titlePath, err)
	}
	resources, err := jmespath.Compile(resourcesPath)
	if err != nil {
		return nil, fmt.Errorf("compile resources path %q: %w", resourcesPath, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("resources.json", strings.NewReader(resourcesSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("resources.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Parser{
		titleExpr:     titlePath,
		resourcesExpr: resourcesPath,
		title:         title,
		resources:     resources,
		schema:        schema,
	}, nil
}

// Parse decodes output. A JSON object wrapped in a markdown code fence is
// accepted. When the output carries no title, one is derived from in.
func (p *Parser) Parse(output []byte, in job.Inputs) (*job.Result, error) {
	output = bytes.TrimSpace(output)
	if len(output) == 0 {
		return nil, ErrNoOutput
	}

	doc, err := decode(output)
	if err != nil {
		return nil, err
	}

	res := &job.Result{RawOutput: string(output)}

	if v, err := p.title.Search(doc); err == nil {
		if s, ok := v.(string); ok {
			res.Title = strings.TrimSpace(s)
		}
	}
	if res.Title == "" {
		res.Title = in.Subject() + " Resources"
	}

	raw, err := p.resources.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", p.resourcesExpr, err)
	}
	if raw == nil {
		res.Resources = []job.Resource{}
		return res, nil
	}
	if err := p.schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("engine resources are malformed: %w", err)
	}

	// Round trip through JSON to map the validated generic value onto the
	// typed slice.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("re-encode resources: %w", err)
	}
	if err := json.Unmarshal(b, &res.Resources); err != nil {
		return nil, fmt.Errorf("decode resources: %w", err)
	}
	return res, nil
}

func decode(output []byte) (any, error) {
	var doc any
	err := json.Unmarshal(output, &doc)
	if err == nil {
		return doc, nil
	}
	if m := fencedJSON.FindSubmatch(output); m != nil {
		if ferr := json.Unmarshal(m[1], &doc); ferr == nil {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("engine output is not valid JSON: %w", err)
}
