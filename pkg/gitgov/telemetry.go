package gitgov

import (
	"context"

	"github.com/gitgov-io/gitgov/pkg/observability"
	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// observedStore counts persisted records on the telemetry provider.
// Reads pass through untouched.
type observedStore[T any] struct {
	store.Store[T]
	kind record.Kind
	obs  *observability.Provider
}

func (s observedStore[T]) Put(ctx context.Context, id string, rec *record.Record[T]) error {
	if err := s.Store.Put(ctx, id, rec); err != nil {
		return err
	}
	s.obs.RecordWritten(ctx, string(s.kind))
	return nil
}

// instrumentStores wraps every store so writes feed the records-written
// counter. The adapters built from the returned set inherit the counting.
func instrumentStores(s *store.Stores, obs *observability.Provider) *store.Stores {
	return &store.Stores{
		Actors:     observedStore[record.ActorPayload]{Store: s.Actors, kind: record.KindActor, obs: obs},
		Agents:     observedStore[record.AgentPayload]{Store: s.Agents, kind: record.KindAgent, obs: obs},
		Tasks:      observedStore[record.TaskPayload]{Store: s.Tasks, kind: record.KindTask, obs: obs},
		Cycles:     observedStore[record.CyclePayload]{Store: s.Cycles, kind: record.KindCycle, obs: obs},
		Feedback:   observedStore[record.FeedbackPayload]{Store: s.Feedback, kind: record.KindFeedback, obs: obs},
		Executions: observedStore[record.ExecutionPayload]{Store: s.Executions, kind: record.KindExecution, obs: obs},
		Changelogs: observedStore[record.ChangelogPayload]{Store: s.Changelogs, kind: record.KindChangelog, obs: obs},
	}
}

// trackOperation opens a telemetry span when a provider is installed and
// returns the completion callback; a no-op without one.
func (e *Engine) trackOperation(ctx context.Context, name string) (context.Context, func(error)) {
	if e.obs == nil {
		return ctx, func(error) {}
	}
	return e.obs.TrackOperation(ctx, name)
}
