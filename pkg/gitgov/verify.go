package gitgov

import (
	"context"

	"github.com/gitgov-io/gitgov/pkg/record"
	"github.com/gitgov-io/gitgov/pkg/store"
)

// Problem is one record that failed verification.
type Problem struct {
	Kind record.Kind
	ID   string
	Err  error
}

// VerifyReport summarizes a full-tree verification pass.
type VerifyReport struct {
	Checked  int
	Problems []Problem
}

// OK reports whether every checked record verified.
func (r *VerifyReport) OK() bool { return len(r.Problems) == 0 }

// VerifyAll checks checksum and signatures of every record in every
// store against the actor registry. Verification failures land in the
// report; only infrastructure errors (unreadable store) abort the pass.
func (e *Engine) VerifyAll(ctx context.Context) (report *VerifyReport, err error) {
	ctx, done := e.trackOperation(ctx, "engine.verify_all")
	defer func() { done(err) }()

	resolve := e.Identity.Resolver(ctx)
	report = &VerifyReport{}

	if err := verifyKind(ctx, record.KindActor, e.Stores.Actors, resolve, report); err != nil {
		return nil, err
	}
	if err := verifyKind(ctx, record.KindAgent, e.Stores.Agents, resolve, report); err != nil {
		return nil, err
	}
	if err := verifyKind(ctx, record.KindTask, e.Stores.Tasks, resolve, report); err != nil {
		return nil, err
	}
	if err := verifyKind(ctx, record.KindCycle, e.Stores.Cycles, resolve, report); err != nil {
		return nil, err
	}
	if err := verifyKind(ctx, record.KindFeedback, e.Stores.Feedback, resolve, report); err != nil {
		return nil, err
	}
	if err := verifyKind(ctx, record.KindExecution, e.Stores.Executions, resolve, report); err != nil {
		return nil, err
	}
	if err := verifyKind(ctx, record.KindChangelog, e.Stores.Changelogs, resolve, report); err != nil {
		return nil, err
	}
	return report, nil
}

func verifyKind[T any](ctx context.Context, kind record.Kind, s store.Store[T],
	resolve record.PublicKeyResolver, report *VerifyReport) error {
	ids, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			report.Checked++
			report.Problems = append(report.Problems, Problem{Kind: kind, ID: id, Err: err})
			continue
		}
		if rec == nil {
			continue
		}
		report.Checked++
		if err := record.Verify(rec, resolve); err != nil {
			report.Problems = append(report.Problems, Problem{Kind: kind, ID: id, Err: err})
		}
	}
	return nil
}

// RebuildIndex mirrors the whole record tree into a SQLite database at
// path, replacing previous contents. The index is a disposable queryable
// projection; the record tree stays the source of truth.
func (e *Engine) RebuildIndex(ctx context.Context, path string) (n int, err error) {
	ctx, done := e.trackOperation(ctx, "engine.rebuild_index")
	defer func() { done(err) }()

	db, err := store.OpenSQLite(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return 0, record.Wrap(record.CodeIOError, err, "truncate index")
	}
	dst := store.NewSQLiteStores(db)

	if err := copyKind(ctx, e.Stores.Actors, dst.Actors, &n); err != nil {
		return n, err
	}
	if err := copyKind(ctx, e.Stores.Agents, dst.Agents, &n); err != nil {
		return n, err
	}
	if err := copyKind(ctx, e.Stores.Tasks, dst.Tasks, &n); err != nil {
		return n, err
	}
	if err := copyKind(ctx, e.Stores.Cycles, dst.Cycles, &n); err != nil {
		return n, err
	}
	if err := copyKind(ctx, e.Stores.Feedback, dst.Feedback, &n); err != nil {
		return n, err
	}
	if err := copyKind(ctx, e.Stores.Executions, dst.Executions, &n); err != nil {
		return n, err
	}
	if err := copyKind(ctx, e.Stores.Changelogs, dst.Changelogs, &n); err != nil {
		return n, err
	}
	return n, nil
}

func copyKind[T any](ctx context.Context, src, dst store.Store[T], n *int) error {
	ids, err := src.List(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rec, err := src.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if err := dst.Put(ctx, id, rec); err != nil {
			return err
		}
		*n++
	}
	return nil
}
