package run

import (
	"errors"
	"fmt"
	"strings"
)

// Arg is one named argument of a failed call, kept in call order.
type Arg struct {
	Name  string
	Value string
}

// A converts alternating name/value pairs into Args. A trailing name without
// a value is kept with an empty value.
func A(pairs ...string) []Arg {
	args := make([]Arg, 0, (len(pairs)+1)/2)
	for i := 0; i < len(pairs); i += 2 {
		a := Arg{Name: pairs[i]}
		if i+1 < len(pairs) {
			a.Value = pairs[i+1]
		}
		args = append(args, a)
	}
	return args
}

// Failure describes a failed call: which operation, with which arguments,
// and the underlying cause.
type Failure struct {
	Op   string
	Args []Arg
	Err  error
}

// Fail builds a Failure for op with name/value argument pairs.
func Fail(op string, err error, pairs ...string) *Failure {
	return &Failure{Op: op, Args: A(pairs...), Err: err}
}

// Call renders the failing call as Op(name=value, ...).
func (f *Failure) Call() string {
	var sb strings.Builder
	sb.WriteString(f.Op)
	sb.WriteByte('(')
	for i, a := range f.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%s", a.Name, a.Value)
	}
	sb.WriteByte(')')
	return sb.String()
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Call()
	}
	return f.Call() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// AsFailure reports whether err wraps a *Failure and returns it.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Cause strips a top-level *Failure so a caller recording its own call
// rendering does not repeat the collaborator's.
func Cause(err error) error {
	if f, ok := err.(*Failure); ok && f.Err != nil {
		return f.Err
	}
	return err
}
