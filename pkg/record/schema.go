package record

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemas    map[Kind]*jsonschema.Schema
	schemaErr  error
)

func compiledSchema(kind Kind) (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemas = make(map[Kind]*jsonschema.Schema)
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		for _, k := range []Kind{KindActor, KindAgent, KindTask, KindCycle, KindFeedback, KindExecution, KindChangelog} {
			raw, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.schema.json", k))
			if err != nil {
				schemaErr = fmt.Errorf("read %s schema: %w", k, err)
				return
			}
			url := fmt.Sprintf("https://gitgov.io/schemas/%s.schema.json", k)
			if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
				schemaErr = fmt.Errorf("load %s schema: %w", k, err)
				return
			}
			compiled, err := c.Compile(url)
			if err != nil {
				schemaErr = fmt.Errorf("compile %s schema: %w", k, err)
				return
			}
			schemas[k] = compiled
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	s, ok := schemas[kind]
	if !ok {
		return nil, E(CodeInvalidData, "no schema for kind %q", kind)
	}
	return s, nil
}

// ValidatePayloadSchema checks payload against the embedded JSON schema for
// kind. The payload is round-tripped through JSON so the schema sees the
// exact persisted shape.
func ValidatePayloadSchema(kind Kind, payload any) error {
	s, err := compiledSchema(kind)
	if err != nil {
		return Wrap(CodeInvalidData, err, "schema for %s", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Wrap(CodeInvalidData, err, "marshal %s payload", kind)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Wrap(CodeInvalidData, err, "decode %s payload", kind)
	}
	if err := s.Validate(generic); err != nil {
		return Wrap(CodeInvalidData, err, "%s payload fails schema", kind)
	}
	return nil
}

// validator is implemented by every payload type.
type validator interface {
	Validate() error
}

// load is the untrusted-envelope dual of the factories: it parses raw
// bytes read from storage, validates the envelope shape, the payload
// schema and the checksum, and returns the typed record. Signature
// verification is separate (Verify) because it needs a key resolver.
func load[T any](kind Kind, data []byte) (*Record[T], error) {
	var r Record[T]
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, Wrap(CodeInvalidData, err, "parse %s record", kind)
	}
	if r.Header.Version != HeaderVersion {
		return nil, E(CodeInvalidData, "%s record header version %q is not %q", kind, r.Header.Version, HeaderVersion)
	}
	if r.Header.Type != kind {
		return nil, E(CodeInvalidData, "record header type %q, want %q", r.Header.Type, kind)
	}
	if len(r.Header.Signatures) == 0 {
		return nil, E(CodeInvalidData, "%s record has no signatures", kind)
	}
	if err := ValidatePayloadSchema(kind, r.Payload); err != nil {
		return nil, err
	}
	if v, ok := any(&r.Payload).(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	sum, err := Checksum(r.Payload)
	if err != nil {
		return nil, err
	}
	if sum != r.Header.PayloadChecksum {
		return nil, E(CodeChecksumMismatch, "%s record checksum mismatch", kind)
	}
	return &r, nil
}

// LoadActor parses and validates an actor record read from storage.
func LoadActor(data []byte) (*Record[ActorPayload], error) {
	return load[ActorPayload](KindActor, data)
}

// LoadAgent parses and validates an agent record read from storage.
func LoadAgent(data []byte) (*Record[AgentPayload], error) {
	return load[AgentPayload](KindAgent, data)
}

// LoadTask parses and validates a task record read from storage.
func LoadTask(data []byte) (*Record[TaskPayload], error) {
	return load[TaskPayload](KindTask, data)
}

// LoadCycle parses and validates a cycle record read from storage.
func LoadCycle(data []byte) (*Record[CyclePayload], error) {
	return load[CyclePayload](KindCycle, data)
}

// LoadFeedback parses and validates a feedback record read from storage.
func LoadFeedback(data []byte) (*Record[FeedbackPayload], error) {
	return load[FeedbackPayload](KindFeedback, data)
}

// LoadExecution parses and validates an execution record read from storage.
func LoadExecution(data []byte) (*Record[ExecutionPayload], error) {
	return load[ExecutionPayload](KindExecution, data)
}

// LoadChangelog parses and validates a changelog record read from storage.
func LoadChangelog(data []byte) (*Record[ChangelogPayload], error) {
	return load[ChangelogPayload](KindChangelog, data)
}
