// Package store provides the persistence collaborators the engine
// consumes: typed record stores (filesystem, memory, SQLite), private-key
// providers (filesystem, environment, memory) and a directory watcher
// that surfaces external edits to the record tree.
//
// The filesystem layout is one directory per record kind under the
// .gitgov root, one pretty-printed JSON file per record. Ids containing
// ':' (actor ids) are mapped to filenames with '_'.
package store

import (
	"context"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// Store is a typed key→record map. Get returns (nil, nil) for a missing
// id; IO failures surface as IO_ERROR-coded errors.
type Store[T any] interface {
	Get(ctx context.Context, id string) (*record.Record[T], error)
	Put(ctx context.Context, id string, rec *record.Record[T]) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Loader parses and validates raw record bytes for one kind, e.g.
// record.LoadTask.
type Loader[T any] func(data []byte) (*record.Record[T], error)

// Stores bundles the per-kind stores the engine wires together.
type Stores struct {
	Actors     Store[record.ActorPayload]
	Agents     Store[record.AgentPayload]
	Tasks      Store[record.TaskPayload]
	Cycles     Store[record.CyclePayload]
	Feedback   Store[record.FeedbackPayload]
	Executions Store[record.ExecutionPayload]
	Changelogs Store[record.ChangelogPayload]
}
