// Package unwind provides an in-process saga orchestration engine.
//
// Sagas orchestrate an ordered sequence of steps that can fail. When a later
// step fails, the steps completed so far are compensated in reverse order,
// approximating rollback for operations that cannot be transactional. For
// more on sagas, see this 2017 JOTB talk by Caitie McCaffrey:
// https://www.youtube.com/watch?v=0UTOLRTwOX0
//
// Overview
//
//  1. Build a saga with chained AddStep calls. Each Step pairs an action
//     with an optional compensation, plus optional per-step retry policies
//     and per-attempt timeouts.
//  2. Optionally configure lifecycle hooks (OnStepComplete, OnStepFail,
//     OnCompensate, OnCompensationError), a logr.Logger, and the
//     compensation failure policy.
//  3. Call Execute with a context.Context carrying the external cancellation
//     signal and a caller-owned saga context object that steps mutate in
//     place.
//  4. Branch on the returned Result: Execute has no separate error channel.
//     CompletedSteps, CompensatedSteps, FailedCompensations, FailedStep, and
//     the per-step reports carry everything needed for precise incident
//     data.
//
// Steps run strictly sequentially, in registration order; compensations run
// in exact reverse completion order. Reusable step definitions can be kept
// in a StepRegistry and assembled into sagas by name.
//
// For complete, documented programs, see the examples directory.
package unwind
