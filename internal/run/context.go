// Package run carries the state of a single task invocation: who started it,
// when, what failed along the way, and the report rendered at the end.
//
// A Context is created once per command and passed explicitly to every
// operation. Nothing in this package is global, so tests and concurrent
// runs stay isolated.
package run

import (
	"os"
	"os/user"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Env identifies the invoking process.
type Env struct {
	Host    string
	User    string
	Program string
	Args    []string
}

// CurrentEnv reads the host and user of the running process. Both are
// lowercased, matching how the Windows tools report them.
func CurrentEnv(program string, args []string) Env {
	env := Env{Program: program, Args: args}
	if h, err := os.Hostname(); err == nil {
		env.Host = strings.ToLower(h)
	}
	if u, err := user.Current(); err == nil {
		name := u.Username
		// DOMAIN\user on Windows
		if i := strings.LastIndex(name, `\`); i >= 0 {
			name = name[i+1:]
		}
		env.User = strings.ToLower(name)
	}
	return env
}

// Entry is one recorded failure.
type Entry struct {
	Context string
	Detail  string
	At      time.Time
}

// String renders the entry as a single log line.
func (e Entry) String() string {
	switch {
	case e.Detail == "":
		return e.Context
	case e.Context == "":
		return e.Detail
	default:
		return e.Context + ": " + e.Detail
	}
}

// Field is an extra header line in the report, such as the database server.
type Field struct {
	Name  string
	Value string
}

// Option configures a Context.
type Option func(*Context)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// WithLogger attaches a logger. Recorded errors, warnings and notes are
// mirrored to it.
func WithLogger(log *zap.Logger) Option {
	return func(c *Context) { c.log = log }
}

// Context is the run context.
type Context struct {
	ID    string
	Task  string
	Env   Env
	Start time.Time

	now func() time.Time
	log *zap.Logger

	mu       sync.Mutex
	errors   []Entry
	warnings []string
	notes    []string
	fields   []Field
	logFiles []string
}

// New starts a run of task.
func New(task string, env Env, opts ...Option) *Context {
	c := &Context{
		ID:   uuid.NewString(),
		Task: task,
		Env:  env,
		now:  time.Now,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Start = c.now()
	return c
}

// Logger returns the run's logger.
func (c *Context) Logger() *zap.Logger { return c.log }

// SetLogger replaces the run's logger once the log file is known.
func (c *Context) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	c.mu.Lock()
	c.log = log
	c.mu.Unlock()
}

// Now returns the run clock's current time.
func (c *Context) Now() time.Time { return c.now() }

// RecordError appends a failure to the error log. A *Failure detail with an
// empty context supplies its own call rendering as the context.
func (c *Context) RecordError(context string, detail error) {
	e := Entry{Context: context, At: c.now()}
	if detail != nil {
		if f, ok := detail.(*Failure); ok && context == "" {
			e.Context = f.Call()
			if f.Err != nil {
				e.Detail = f.Err.Error()
			}
		} else {
			e.Detail = detail.Error()
		}
	}

	c.mu.Lock()
	c.errors = append(c.errors, e)
	log := c.log
	c.mu.Unlock()

	log.Error(e.String())
}

// Record appends err to the error log, deriving the context from a wrapped
// *Failure when there is one.
func (c *Context) Record(err error) {
	if err == nil {
		return
	}
	if f, ok := AsFailure(err); ok {
		c.RecordError("", f)
		return
	}
	c.RecordError(err.Error(), nil)
}

// Warn records a warning. Warnings do not affect the status.
func (c *Context) Warn(msg string) {
	c.mu.Lock()
	c.warnings = append(c.warnings, msg)
	log := c.log
	c.mu.Unlock()
	log.Warn(msg)
}

// Note records an informational line for the report.
func (c *Context) Note(msg string) {
	c.mu.Lock()
	c.notes = append(c.notes, msg)
	log := c.log
	c.mu.Unlock()
	log.Info(msg)
}

// SetField adds or replaces a report header line.
func (c *Context) SetField(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.fields {
		if c.fields[i].Name == name {
			c.fields[i].Value = value
			return
		}
	}
	c.fields = append(c.fields, Field{Name: name, Value: value})
}

// AttachLogFile includes the contents of path in the report.
func (c *Context) AttachLogFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.logFiles {
		if p == path {
			return
		}
	}
	c.logFiles = append(c.logFiles, path)
}

// Errors returns a copy of the error log in recording order.
func (c *Context) Errors() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.errors))
	copy(out, c.errors)
	return out
}

// Failed reports whether any error has been recorded.
func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors) > 0
}

// LogFiles returns the attached log file paths.
func (c *Context) LogFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.logFiles))
	copy(out, c.logFiles)
	return out
}
