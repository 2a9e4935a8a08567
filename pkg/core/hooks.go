package core

import "context"

// Stage names a lifecycle extension point.
type Stage string

const (
	StageValidationOnSave   Stage = "validation_on_save"
	StageValidationOnCreate Stage = "validation_on_create"
	StageValidationOnUpdate Stage = "validation_on_update"
	StageSave               Stage = "save"
	StageCreate             Stage = "create"
	StageUpdate             Stage = "update"
	StageDestroy            Stage = "destroy"
)

// Outcome is what a hook tells the pipeline.
type Outcome int

const (
	Continue Outcome = iota
	Abort
)

// HookFunc runs against the document passing through a stage.
type HookFunc func(ctx context.Context, doc Document) Outcome

type stageHooks struct {
	before []HookFunc
	after  []HookFunc
}

// Hooks is an ordered list of hooks per stage. Register everything before
// the Hooks value is handed to a Database; it is not safe for concurrent
// registration.
type Hooks struct {
	stages map[Stage]*stageHooks
}

// NewHooks returns an empty hook set.
func NewHooks() *Hooks {
	return &Hooks{stages: make(map[Stage]*stageHooks)}
}

func (h *Hooks) stage(s Stage) *stageHooks {
	if h.stages == nil {
		h.stages = make(map[Stage]*stageHooks)
	}
	sh, ok := h.stages[s]
	if !ok {
		sh = &stageHooks{}
		h.stages[s] = sh
	}
	return sh
}

// Before registers fn to run before the inner action of stage.
func (h *Hooks) Before(s Stage, fn HookFunc) *Hooks {
	sh := h.stage(s)
	sh.before = append(sh.before, fn)
	return h
}

// After registers fn to run once the inner action of stage succeeded.
func (h *Hooks) After(s Stage, fn HookFunc) *Hooks {
	sh := h.stage(s)
	sh.after = append(sh.after, fn)
	return h
}

// Len returns the number of registered hooks across all stages.
func (h *Hooks) Len() int {
	if h == nil {
		return 0
	}
	n := 0
	for _, sh := range h.stages {
		n += len(sh.before) + len(sh.after)
	}
	return n
}

func (h *Hooks) lookup(s Stage) *stageHooks {
	if h == nil || h.stages == nil {
		return nil
	}
	return h.stages[s]
}

// stageRunner runs a stage across an ordered list of hook sets
// (database-wide first, then the document's own).
type stageRunner []*Hooks

func (r stageRunner) run(ctx context.Context, s Stage, doc Document, inner func() (bool, error)) (bool, error) {
	for _, h := range r {
		sh := h.lookup(s)
		if sh == nil {
			continue
		}
		for _, fn := range sh.before {
			if fn(ctx, doc) == Abort {
				return false, nil
			}
		}
	}

	ok, err := inner()
	if err != nil || !ok {
		return false, err
	}

	for _, h := range r {
		sh := h.lookup(s)
		if sh == nil {
			continue
		}
		for _, fn := range sh.after {
			if fn(ctx, doc) == Abort {
				return false, nil
			}
		}
	}
	return true, nil
}
