package scheduler

import (
	"context"
	"time"

	"github.com/danshapiro/skillproto/internal/model"
	"github.com/danshapiro/skillproto/internal/sandbox"
)

// executeJob drives one job through the sandbox runtime and records its
// terminal outcome (spec.md §4.4, state machine).
func (s *Scheduler) executeJob(j *job) {
	started := time.Now()
	ok := s.table.mutate(j.rec.ExecutionID, func(r *model.ExecutionRecord) {
		r.State = model.StateRunning
		r.StartedAt = started
	})
	if !ok {
		return // record missing or already terminal
	}

	outcome := s.rt.Run(j.ctx, string(j.skill.Language), j.skill.Code, j.rec.Inputs, j.deadline, sandbox.DefaultCaps())
	completed := time.Now()
	elapsed := completed.Sub(started).Seconds()

	if !outcome.OK {
		state, code, kind := classifyFailure(outcome.Kind, j.ctx)
		s.table.mutate(j.rec.ExecutionID, func(r *model.ExecutionRecord) {
			r.State = state
			r.CompletedAt = completed
			r.ElapsedSecs = elapsed
			r.Error = &model.ExecutionError{Code: code, Kind: kind, Message: outcome.Detail}
		})
		s.reg.RecordInvocation(j.skill.SkillID, false)
		return
	}

	outputSchema, err := s.reg.SchemaFor(j.skill, true)
	if err == nil {
		if violations := outputSchema.Validate(outcome.Value); len(violations) > 0 {
			s.table.mutate(j.rec.ExecutionID, func(r *model.ExecutionRecord) {
				r.State = model.StateFailed
				r.CompletedAt = completed
				r.ElapsedSecs = elapsed
				r.Error = &model.ExecutionError{
					Code:    "SKILL_INV_004",
					Kind:    "output_schema_violation",
					Message: "result failed output schema validation",
				}
			})
			s.reg.RecordInvocation(j.skill.SkillID, false)
			return
		}
	}

	s.table.mutate(j.rec.ExecutionID, func(r *model.ExecutionRecord) {
		r.State = model.StateCompleted
		r.CompletedAt = completed
		r.ElapsedSecs = elapsed
		r.Result = outcome.Value
	})
	s.reg.RecordInvocation(j.skill.SkillID, true)
}

// classifyFailure maps a sandbox.FailureKind onto the execution state
// machine's terminal failure states (spec.md §4.1, §4.4, §7).
func classifyFailure(kind sandbox.FailureKind, ctx context.Context) (model.ExecutionState, string, string) {
	if kind == sandbox.FailureTimedOut {
		return model.StateTimedOut, "SKILL_INV_003", "execution_timeout"
	}
	if ctx.Err() == context.Canceled {
		return model.StateCancelled, "SKILL_INV_004", "cancelled"
	}
	return model.StateFailed, "SKILL_INV_004", string(kind)
}
