// Package revert collects cleanup steps for a multi-step operation and runs
// them in reverse order unless the operation succeeds.
//
//	reverter := revert.New()
//	defer reverter.Fail()
//
//	create(a)
//	reverter.Add(func() { remove(a) })
//	...
//	reverter.Success()
package revert

// Hook is a single cleanup step.
type Hook func()

// Reverter holds pending cleanup steps.
type Reverter struct {
	hooks []Hook
}

// New returns an empty Reverter.
func New() *Reverter {
	return &Reverter{}
}

// Add appends a cleanup step.
func (r *Reverter) Add(f Hook) {
	r.hooks = append(r.hooks, f)
}

// Fail runs the pending steps, newest first. It is a no-op after Success.
func (r *Reverter) Fail() {
	if r.hooks == nil {
		return
	}
	for i := len(r.hooks) - 1; i >= 0; i-- {
		r.hooks[i]()
	}
	r.hooks = nil
}

// Success discards the pending steps.
func (r *Reverter) Success() {
	r.hooks = nil
}
