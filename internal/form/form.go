// Package form manages form state and declarative field validation: values,
// per-field errors, touched tracking and the submit lifecycle.
package form

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

// Rule validates one field. It returns "" when value passes and a
// human-readable message otherwise. Rules are pure and never panic on
// unexpected input.
type Rule func(value any, values types.Values) string

// Schema maps a field name to its ordered rules. The first failing rule's
// message is the field's error.
type Schema map[string][]Rule

// InputKind describes the control that produced a change.
type InputKind int

// Input kinds.
const (
	KindText InputKind = iota
	KindNumber
	KindSelect
	KindDate
	KindCheckbox
)

// ChangeEvent is one user edit. For KindCheckbox the effective value is
// Checked; for every other kind it is Value.
type ChangeEvent struct {
	Name    string
	Value   any
	Kind    InputKind
	Checked bool
}

// State is a copy of the form's state at one instant.
type State struct {
	Values       types.Values
	Errors       map[string]string
	Touched      map[string]bool
	IsSubmitting bool
}

// SubmitStatus is the outcome of Submit.
type SubmitStatus int

// Submit outcomes.
const (
	// SubmitInvalid means validation failed and the callback was not called.
	SubmitInvalid SubmitStatus = iota
	// SubmitSucceeded means the callback returned nil.
	SubmitSucceeded
	// SubmitFailed means the callback returned an error or panicked.
	SubmitFailed
)

func (s SubmitStatus) String() string {
	switch s {
	case SubmitInvalid:
		return "invalid"
	case SubmitSucceeded:
		return "succeeded"
	case SubmitFailed:
		return "failed"
	default:
		return fmt.Sprintf("SubmitStatus(%d)", int(s))
	}
}

// SubmitResult reports what Submit did. Err is set only for SubmitFailed;
// Errors holds the validation errors for SubmitInvalid.
type SubmitResult struct {
	Status SubmitStatus
	Err    error
	Errors map[string]string
}

// OK reports whether the callback ran and succeeded.
func (r SubmitResult) OK() bool {
	return r.Status == SubmitSucceeded
}

// SubmitFunc receives a snapshot of the values once the form is valid.
type SubmitFunc func(ctx context.Context, values types.Values) error

// Option configures a Form.
type Option func(*Form)

// WithLogger sets the logger used to record submit failures.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Form) { f.log = l }
}

// Form owns the state of one form. It is safe for concurrent use; rules run
// under the form's lock and must not call back into the Form.
type Form struct {
	mu         sync.Mutex
	schema     Schema
	initial    types.Values
	values     types.Values
	errors     map[string]string
	touched    map[string]bool
	submitting bool
	log        zerolog.Logger
}

// New creates a form seeded with initial values. A nil schema validates
// nothing.
func New(initial types.Values, schema Schema, opts ...Option) *Form {
	if schema == nil {
		schema = Schema{}
	}
	f := &Form{
		schema:  schema,
		initial: initial.Clone(),
		values:  initial.Clone(),
		errors:  make(map[string]string),
		touched: make(map[string]bool),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ValidateField runs the rules for name against value and the current
// values. Returns "" when every rule passes or name has no rules.
func (f *Form) ValidateField(name string, value any) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateFieldLocked(name, value)
}

func (f *Form) validateFieldLocked(name string, value any) string {
	for _, rule := range f.schema[name] {
		if msg := rule(value, f.values); msg != "" {
			return msg
		}
	}
	return ""
}

// ValidateAll validates every schema field, replaces the error set with the
// results and reports whether no field failed.
func (f *Form) ValidateAll() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateAllLocked()
}

func (f *Form) validateAllLocked() bool {
	errs := make(map[string]string)
	for name := range f.schema {
		if msg := f.validateFieldLocked(name, f.values[name]); msg != "" {
			errs[name] = msg
		}
	}
	f.errors = errs
	return len(errs) == 0
}

// HandleChange records an edit. A field that has been blurred at least once
// is revalidated immediately; untouched fields stay quiet.
func (f *Form) HandleChange(ev ChangeEvent) {
	value := ev.Value
	if ev.Kind == KindCheckbox {
		value = ev.Checked
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[ev.Name] = value
	if f.touched[ev.Name] {
		f.setErrorLocked(ev.Name, f.validateFieldLocked(ev.Name, value))
	}
}

// HandleBlur marks name touched, stores value and revalidates the field.
func (f *Form) HandleBlur(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[name] = true
	f.values[name] = value
	f.setErrorLocked(name, f.validateFieldLocked(name, value))
}

// setErrorLocked stores msg for a schema field, or clears it when msg is "".
func (f *Form) setErrorLocked(name, msg string) {
	if msg == "" {
		delete(f.errors, name)
		return
	}
	if _, ok := f.schema[name]; ok {
		f.errors[name] = msg
	}
}

// Submit marks every schema field touched and validates the form. When the
// form is invalid onValid is not called. Otherwise onValid runs with a
// snapshot of the values while IsSubmitting reports true. A failing or
// panicking callback is logged and reported as SubmitFailed; Submit itself
// never panics on its behalf.
func (f *Form) Submit(ctx context.Context, onValid SubmitFunc) SubmitResult {
	f.mu.Lock()
	for name := range f.schema {
		f.touched[name] = true
	}
	if !f.validateAllLocked() {
		errs := copyErrors(f.errors)
		f.mu.Unlock()
		return SubmitResult{Status: SubmitInvalid, Errors: errs}
	}
	f.submitting = true
	snapshot := f.values.Clone()
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	if err := invoke(ctx, onValid, snapshot); err != nil {
		f.log.Error().Err(err).Msg("form submit failed")
		return SubmitResult{Status: SubmitFailed, Err: err}
	}
	return SubmitResult{Status: SubmitSucceeded}
}

// Handler binds onValid and returns a submit handler for later invocation.
func (f *Form) Handler(onValid SubmitFunc) func(ctx context.Context) SubmitResult {
	return func(ctx context.Context) SubmitResult {
		return f.Submit(ctx, onValid)
	}
}

func invoke(ctx context.Context, fn SubmitFunc, values types.Values) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("submit handler panicked: %v", r)
		}
	}()
	return fn(ctx, values)
}

// Reset restores the initial values and clears errors, touched fields and
// the submitting flag.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = f.initial.Clone()
	f.errors = make(map[string]string)
	f.touched = make(map[string]bool)
	f.submitting = false
}

// SetFieldValue sets a value without validating it, e.g. when populating an
// edit form.
func (f *Form) SetFieldValue(name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

// SetFieldError sets or clears (msg == "") an error without running rules,
// e.g. to surface a server-side validation failure. Fields outside the
// schema are ignored and SetFieldError reports false.
func (f *Form) SetFieldError(name, msg string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schema[name]; !ok {
		return false
	}
	f.setErrorLocked(name, msg)
	return true
}

// Values returns a copy of the current values.
func (f *Form) Values() types.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values.Clone()
}

// Errors returns a copy of the current errors.
func (f *Form) Errors() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyErrors(f.errors)
}

// Touched returns a copy of the touched set.
func (f *Form) Touched() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.touched))
	for k, v := range f.touched {
		out[k] = v
	}
	return out
}

// IsSubmitting reports whether a submit callback is running.
func (f *Form) IsSubmitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// IsValid reports whether no field currently has an error.
func (f *Form) IsValid() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors) == 0
}

// Dirty reports whether the values differ from the initial values.
func (f *Form) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !reflect.DeepEqual(f.values, f.initial)
}

// State returns a copy of the whole form state.
func (f *Form) State() State {
	return State{
		Values:       f.Values(),
		Errors:       f.Errors(),
		Touched:      f.Touched(),
		IsSubmitting: f.IsSubmitting(),
	}
}

func copyErrors(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
