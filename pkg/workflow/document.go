// Package workflow loads JSON methodology documents and evaluates
// transition legality: which state changes are allowed, which signature
// gates they require, and which custom predicates must hold. The engine
// ships kanban and scrum documents; projects may point the config at
// their own file.
package workflow

import (
	"embed"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// DefaultGroup is the signature-rule group used when no group's
// capability roles intersect the acting actor's roles.
const DefaultGroup = "__default__"

// Validation variants for custom rules. The set is closed; adding a rule
// kind means adding a variant here and a case in validateRule.
const (
	ValidationAssignmentRequired = "assignment_required"
	ValidationSprintCapacity     = "sprint_capacity"
	ValidationEpicComplexity     = "epic_complexity"
	ValidationCustom             = "custom"
)

// SignatureRule gates one transition for one capability group.
type SignatureRule struct {
	Role            string   `json:"role"`
	CapabilityRoles []string `json:"capability_roles"`
	MinApprovals    int      `json:"min_approvals"`
}

// TransitionRequires is the `requires` block of a transition rule.
type TransitionRequires struct {
	Command     string                   `json:"command,omitempty"` // UX hint only
	Event       string                   `json:"event,omitempty"`   // triggering event for automatic transitions
	Signatures  map[string]SignatureRule `json:"signatures,omitempty"`
	CustomRules []string                 `json:"custom_rules,omitempty"`
}

// Transition declares how a target state may be reached.
type Transition struct {
	From     []string           `json:"from"`
	Requires TransitionRequires `json:"requires"`
}

// CustomRule is a tagged predicate variant referenced from transitions.
type CustomRule struct {
	Validation  string `json:"validation"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression,omitempty"` // CEL source, validation == "custom" only
}

// ViewConfig describes one board rendering of the state machine.
type ViewConfig struct {
	Columns map[string][]string `json:"columns"`
	Theme   string              `json:"theme,omitempty"`
	Layout  string              `json:"layout,omitempty"`
}

// Document is a parsed methodology file.
type Document struct {
	Name             string                `json:"name"`
	Version          string                `json:"version"`
	StateTransitions map[string]Transition `json:"state_transitions"`
	CustomRules      map[string]CustomRule `json:"custom_rules,omitempty"`
	ViewConfigs      map[string]ViewConfig `json:"view_configs,omitempty"`
}

//go:embed methodologies/*.json schemas/methodology.schema.json
var workflowFS embed.FS

var (
	docSchemaOnce sync.Once
	docSchema     *jsonschema.Schema
	docSchemaErr  error
)

func methodologySchema() (*jsonschema.Schema, error) {
	docSchemaOnce.Do(func() {
		raw, err := workflowFS.ReadFile("schemas/methodology.schema.json")
		if err != nil {
			docSchemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://gitgov.io/schemas/methodology.schema.json"
		if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
			docSchemaErr = err
			return
		}
		docSchema, docSchemaErr = c.Compile(url)
	})
	return docSchema, docSchemaErr
}

// ParseDocument validates raw methodology JSON against the bundled schema
// and checks the version is semver, then decodes it.
func ParseDocument(raw []byte) (*Document, error) {
	schema, err := methodologySchema()
	if err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "methodology schema")
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "parse methodology")
	}
	if err := schema.Validate(generic); err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "methodology fails schema")
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, record.Wrap(record.CodeInvalidData, err, "decode methodology")
	}
	if _, err := semver.NewVersion(doc.Version); err != nil {
		return nil, record.E(record.CodeInvalidData, "methodology version %q is not semver", doc.Version)
	}
	for id, rule := range doc.CustomRules {
		switch rule.Validation {
		case ValidationAssignmentRequired, ValidationSprintCapacity, ValidationEpicComplexity, ValidationCustom:
		default:
			return nil, record.E(record.CodeInvalidData, "custom rule %q has unknown validation %q", id, rule.Validation)
		}
	}
	return &doc, nil
}

// LoadDocumentFile parses a methodology from disk.
func LoadDocumentFile(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "read methodology %s", path)
	}
	return ParseDocument(raw)
}

func loadBundled(name string) (*Document, error) {
	raw, err := workflowFS.ReadFile("methodologies/" + name)
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "read bundled methodology %s", name)
	}
	return ParseDocument(raw)
}
