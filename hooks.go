package unwind

// Hook invocation. Hooks observe transitions without coupling the
// orchestration loop to a logging or metrics backend: plain callbacks,
// invoked synchronously at fixed points. A hook failure (returned error or
// panic) is swallowed and logged by default; the fire* helpers return a
// non-nil error only when the saga is configured to escalate hook errors.

// StepHook observes a successful transition for the named step.
type StepHook[T any] func(c T, step string) error

// StepErrorHook observes a failed transition for the named step.
type StepErrorHook[T any] func(c T, step string, err error) error

func (e *execution[T]) fireStepComplete(name string) error {
	return e.fire("step complete", name, e.saga.onStepComplete)
}

func (e *execution[T]) fireCompensate(name string) error {
	return e.fire("compensate", name, e.saga.onCompensate)
}

func (e *execution[T]) fireStepFail(name string, cause error) error {
	if e.saga.onStepFail == nil {
		return nil
	}
	return e.settle("step fail", name, invokeHook(func() error {
		return e.saga.onStepFail(e.c, name, cause)
	}))
}

func (e *execution[T]) fireCompensationError(name string, cause error) error {
	if e.saga.onCompensationError == nil {
		return nil
	}
	return e.settle("compensation error", name, invokeHook(func() error {
		return e.saga.onCompensationError(e.c, name, cause)
	}))
}

func (e *execution[T]) fire(hook, name string, fn StepHook[T]) error {
	if fn == nil {
		return nil
	}
	return e.settle(hook, name, invokeHook(func() error {
		return fn(e.c, name)
	}))
}

// settle applies the swallow-vs-escalate policy to a hook outcome.
func (e *execution[T]) settle(hook, name string, err error) error {
	if err == nil {
		return nil
	}
	if !e.saga.failOnHookError {
		e.log.Error(err, "hook failed", "hook", hook, "step", name)
		return nil
	}
	return err
}

// invokeHook runs a hook body, converting a panic into an ordinary error.
func invokeHook(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = normalizePanic(r)
		}
	}()
	return fn()
}
