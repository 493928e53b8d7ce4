package bridge

import (
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"go-vehicle-counter/internal/logger"
	"go-vehicle-counter/internal/vision"
)

// Runtime is the Port implementation that interprets module scripts
type Runtime struct {
	backend  vision.Backend
	executor *Executor
}

// NewRuntime creates a runtime over backend. A nil executor selects the
// process-wide one.
func NewRuntime(backend vision.Backend, executor *Executor) *Runtime {
	if executor == nil {
		executor = SharedExecutor()
	}
	return &Runtime{
		backend:  backend,
		executor: executor,
	}
}

// Stats returns the counters of the runtime's executor
func (r *Runtime) Stats() Stats {
	return r.executor.Stats()
}

// Invoke runs call on the executor and waits for its outcome
func (r *Runtime) Invoke(call Call) (Outcome, error) {
	log := logger.WithFields(logrus.Fields{
		"request_id": call.RequestID,
		"entry":      call.Entry,
		"backend":    r.backend.Name(),
		"stage":      "capability",
	})

	var out Outcome
	start := time.Now()
	err := r.executor.Do(func() error {
		var err error
		out, err = r.run(call, log)
		return err
	})
	if err != nil {
		log.WithError(err).Error("Capability invocation failed")
		return Outcome{}, err
	}

	log.WithFields(logrus.Fields{
		"saved":       out.Saved,
		"count":       out.Count,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Capability invocation finished")
	return out, nil
}

func (r *Runtime) run(call Call, log *logrus.Entry) (Outcome, error) {
	mod, err := ParseModule(call.Module)
	if err != nil {
		return Outcome{}, err
	}
	entry, ok := mod.Entries[call.Entry]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s.%s", ErrEntryNotFound, mod.Name, call.Entry)
	}
	if len(call.Args) != len(entry.Params) {
		return Outcome{}, fmt.Errorf("%w: %s.%s takes %d arguments, got %d",
			ErrArity, mod.Name, call.Entry, len(entry.Params), len(call.Args))
	}
	if !slices.Equal(entry.Returns, call.Shape.Returns()) {
		return Outcome{}, fmt.Errorf("%w: %s.%s returns %v, caller expects %s",
			ErrShapeMismatch, mod.Name, call.Entry, entry.Returns, call.Shape)
	}

	sess := newSession(r.backend, log)
	defer sess.close()

	for i, p := range entry.Params {
		sess.regs[p] = call.Args[i]
	}
	for i, st := range entry.Steps {
		if err := sess.exec(st); err != nil {
			return Outcome{}, fmt.Errorf("%w: %s.%s step %d (%s): %v", ErrStepFailed, mod.Name, call.Entry, i, st.Op, err)
		}
	}

	values := make([]any, len(entry.Result))
	for i, name := range entry.Result {
		v, ok := sess.regs[name]
		if !ok {
			return Outcome{}, fmt.Errorf("%w: result register %q is unset", ErrShapeMismatch, name)
		}
		if !hasType(v, entry.Returns[i]) {
			return Outcome{}, fmt.Errorf("%w: result %q is %T, declared %s", ErrShapeMismatch, name, v, entry.Returns[i])
		}
		values[i] = v
	}
	return decodeOutcome(call.Shape, values[0], values[1].(string)), nil
}

func hasType(v any, declared string) bool {
	switch declared {
	case "int":
		_, ok := v.(int)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	}
	return false
}
