package workflow

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// Context carries the facts a validation needs: the attempted transition,
// the task and actor involved, and whatever linked records the caller has
// already loaded. Fields a given check does not use may stay nil.
type Context struct {
	TransitionTo string
	Task         *record.TaskPayload
	Actor        *record.ActorPayload
	Signatures   []record.Signature
	Feedback     []*record.FeedbackPayload // feedback targeting the task
	Cycles       []*record.CyclePayload    // cycles the task belongs to
}

// Adapter evaluates one methodology document. It is stateless beyond the
// parsed document and the CEL program cache, so one adapter can serve
// every transition in the process.
type Adapter struct {
	doc *Document
	cel *celEvaluator
	log *slog.Logger
}

// New wraps an already-parsed methodology document.
func New(doc *Document) *Adapter {
	return &Adapter{
		doc: doc,
		cel: newCELEvaluator(),
		log: slog.Default().With("component", "workflow", "methodology", doc.Name),
	}
}

// CreateDefault loads the bundled kanban methodology.
func CreateDefault() (*Adapter, error) {
	doc, err := loadBundled("kanban_workflow.json")
	if err != nil {
		return nil, err
	}
	return New(doc), nil
}

// CreateScrum loads the bundled scrum methodology.
func CreateScrum() (*Adapter, error) {
	doc, err := loadBundled("scrum_workflow.json")
	if err != nil {
		return nil, err
	}
	return New(doc), nil
}

// Create resolves a methodology by name: the bundled documents by their
// short names, anything else as a path to a document file.
func Create(name string) (*Adapter, error) {
	switch name {
	case "", "default", "kanban":
		return CreateDefault()
	case "scrum":
		return CreateScrum()
	}
	doc, err := LoadDocumentFile(name)
	if err != nil {
		return nil, err
	}
	return New(doc), nil
}

// Name returns the methodology name.
func (a *Adapter) Name() string { return a.doc.Name }

// Document returns the underlying parsed methodology.
func (a *Adapter) Document() *Document { return a.doc }

// GetTransitionRule returns the declared rule for from -> to, or nil when
// the methodology does not allow that edge at all.
func (a *Adapter) GetTransitionRule(from, to string) *Transition {
	t, ok := a.doc.StateTransitions[to]
	if !ok {
		return nil
	}
	for _, f := range t.From {
		if f == from {
			// copy so callers cannot mutate the document
			tc := t
			return &tc
		}
	}
	return nil
}

// GetAvailableTransitions lists the target states reachable from the given
// state under this methodology.
func (a *Adapter) GetAvailableTransitions(from string) []string {
	var out []string
	for to, t := range a.doc.StateTransitions {
		for _, f := range t.From {
			if f == from {
				out = append(out, to)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// TransitionForEvent returns the target state whose rule names eventType as
// its trigger and allows the edge from the given state, or "" when none does.
func (a *Adapter) TransitionForEvent(from, eventType string) string {
	for to, t := range a.doc.StateTransitions {
		if t.Requires.Event != eventType {
			continue
		}
		for _, f := range t.From {
			if f == from {
				return to
			}
		}
	}
	return ""
}

// ResolveSignatureRule selects the signature rule governing the attempted
// transition and checks the actor may sign under it. It does not count
// approvals, so callers can record a partial approval when the threshold
// is above one.
//
// Group selection: the first named group (in lexical order) whose
// capability roles intersect the actor's roles wins; otherwise the
// "__default__" group applies. A nil result with nil error means the
// transition is event-only and needs no signature.
func (a *Adapter) ResolveSignatureRule(ctx Context) (*SignatureRule, error) {
	if ctx.TransitionTo == "" {
		return nil, record.E(record.CodeMissingTransitionTo, "signature validation requires the target state")
	}
	if ctx.Actor == nil {
		return nil, record.E(record.CodeInvalidData, "signature validation requires the acting actor")
	}
	from := ""
	if ctx.Task != nil {
		from = string(ctx.Task.Status)
	}
	rule := a.GetTransitionRule(from, ctx.TransitionTo)
	if rule == nil {
		return nil, record.E(record.CodeIllegalTransition, "no %s -> %s transition in %s", from, ctx.TransitionTo, a.doc.Name)
	}
	if len(rule.Requires.Signatures) == 0 {
		return nil, nil
	}

	group, sig := a.selectGroup(rule.Requires.Signatures, ctx.Actor)
	if group == "" {
		return nil, record.E(record.CodeUnauthorized, "no signature group in %s -> %s admits actor %s", from, ctx.TransitionTo, ctx.Actor.ID)
	}
	for _, role := range sig.CapabilityRoles {
		if ctx.Actor.HasRole(role) {
			return &sig, nil
		}
	}
	return nil, record.E(record.CodeUnauthorized,
		"actor %s lacks capability roles %v required for %s -> %s",
		ctx.Actor.ID, sig.CapabilityRoles, from, ctx.TransitionTo)
}

// ValidateSignature checks whether the acting actor satisfies the full
// signature gate on the attempted transition, including the approval
// threshold. The signatures in ctx (or, when none are supplied, the one
// the actor is about to add) must include at least min_approvals entries
// carrying the selected group's role.
//
// Returns the group's declared role on success so the caller signs with it.
func (a *Adapter) ValidateSignature(ctx Context) (string, error) {
	sig, err := a.ResolveSignatureRule(ctx)
	if err != nil {
		return "", err
	}
	if sig == nil {
		// event-only transition; nothing to sign
		return "", nil
	}

	approvals := 0
	if len(ctx.Signatures) == 0 {
		// the signature the caller is about to add counts
		approvals = 1
	} else {
		for _, s := range ctx.Signatures {
			if s.Role == sig.Role {
				approvals++
			}
		}
	}
	if approvals < sig.MinApprovals {
		from := ""
		if ctx.Task != nil {
			from = string(ctx.Task.Status)
		}
		return "", record.E(record.CodeUnauthorized,
			"%s -> %s needs %d %q approvals, have %d",
			from, ctx.TransitionTo, sig.MinApprovals, sig.Role, approvals)
	}
	return sig.Role, nil
}

// selectGroup picks the signature group for the actor. Named groups are
// tried in lexical order so selection is deterministic; "__default__" is
// the fallback.
func (a *Adapter) selectGroup(groups map[string]SignatureRule, actor *record.ActorPayload) (string, SignatureRule) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		if name != DefaultGroup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sig := groups[name]
		for _, role := range sig.CapabilityRoles {
			if actor.HasRole(role) {
				return name, sig
			}
		}
	}
	if sig, ok := groups[DefaultGroup]; ok {
		return DefaultGroup, sig
	}
	return "", SignatureRule{}
}

// ValidateCustomRules runs every custom rule the attempted transition
// references. All must pass; an unknown rule id fails closed.
func (a *Adapter) ValidateCustomRules(ctx Context) (bool, error) {
	if ctx.TransitionTo == "" {
		return false, record.E(record.CodeMissingTransitionTo, "custom rule validation requires the target state")
	}
	from := ""
	if ctx.Task != nil {
		from = string(ctx.Task.Status)
	}
	rule := a.GetTransitionRule(from, ctx.TransitionTo)
	if rule == nil {
		return false, record.E(record.CodeIllegalTransition, "no %s -> %s transition in %s", from, ctx.TransitionTo, a.doc.Name)
	}
	for _, id := range rule.Requires.CustomRules {
		def, ok := a.doc.CustomRules[id]
		if !ok {
			a.log.Warn("transition references undeclared custom rule", "rule", id, "to", ctx.TransitionTo)
			return false, nil
		}
		ok, err := a.validateRule(id, def, ctx)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (a *Adapter) validateRule(id string, def CustomRule, ctx Context) (bool, error) {
	switch def.Validation {
	case ValidationAssignmentRequired:
		return a.checkAssignmentRequired(ctx), nil
	case ValidationSprintCapacity:
		return a.checkSprintCapacity(ctx), nil
	case ValidationEpicComplexity:
		return a.checkEpicComplexity(ctx), nil
	case ValidationCustom:
		if def.Expression == "" {
			a.log.Warn("custom rule has no expression, passing", "rule", id)
			return true, nil
		}
		return a.cel.eval(def.Expression, ctx)
	default:
		a.log.Warn("custom rule has unknown validation", "rule", id, "validation", def.Validation)
		return false, nil
	}
}

// checkAssignmentRequired holds when the task has at least one resolved
// assignment feedback naming an assignee.
func (a *Adapter) checkAssignmentRequired(ctx Context) bool {
	for _, fb := range ctx.Feedback {
		if fb.Type == record.FeedbackTypeAssignment &&
			fb.Status == record.FeedbackStatusResolved &&
			fb.Assignee != "" {
			return true
		}
	}
	return false
}

// checkSprintCapacity holds when the task belongs to at least one active
// cycle, i.e. it has actually been planned into a running sprint.
func (a *Adapter) checkSprintCapacity(ctx Context) bool {
	for _, c := range ctx.Cycles {
		if c.Status == record.CycleStatusActive {
			return true
		}
	}
	return false
}

// checkEpicComplexity blocks activation of epic-tagged tasks that have not
// been decomposed: an epic must be paused and linked to at least one cycle
// before it may run. Resuming a decomposed epic is the only manual path to
// active; from ready, only an execution event activates it.
func (a *Adapter) checkEpicComplexity(ctx Context) bool {
	if ctx.Task == nil || !isEpic(ctx.Task) {
		return true
	}
	return ctx.Task.Status == record.TaskStatusPaused && len(ctx.Task.CycleIDs) > 0
}

// isEpic matches the bare "epic" tag and namespaced "epic:*" tags.
func isEpic(task *record.TaskPayload) bool {
	for _, tag := range task.Tags {
		if tag == "epic" || strings.HasPrefix(tag, "epic:") {
			return true
		}
	}
	return false
}

// GetViewConfig returns the named board view, or nil when the methodology
// does not declare it.
func (a *Adapter) GetViewConfig(name string) *ViewConfig {
	v, ok := a.doc.ViewConfigs[name]
	if !ok {
		return nil
	}
	return &v
}
