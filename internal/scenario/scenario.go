package scenario

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/smithy-go/ptr"
	"golang.org/x/mod/semver"

	"github.com/kolkov/uniproc/internal/kernel/thread"
)

// SupportedVersion is the newest scenario format this build can run.
// Files with the same major version and a version not above this one are
// accepted.
const SupportedVersion = "v1.1.0"

// Op names.
const (
	OpDown           = "down"
	OpTryDown        = "try_down"
	OpUp             = "up"
	OpAcquire        = "acquire"
	OpTryAcquire     = "try_acquire"
	OpRelease        = "release"
	OpWait           = "wait"
	OpSignal         = "signal"
	OpBroadcast      = "broadcast"
	OpSetPriority    = "set_priority"
	OpYield          = "yield"
	OpSpawn          = "spawn"
	OpInterruptUp    = "interrupt_up"
	OpNote           = "note"
	OpExpectPriority = "expect_priority"
	OpExpectValue    = "expect_value"
)

// opSince records the format version that introduced an op. Ops missing
// from the map exist since v1.0.0.
var opSince = map[string]string{
	OpInterruptUp: "v1.1.0",
	OpExpectValue: "v1.1.0",
}

// Scenario is a parsed scenario file.
type Scenario struct {
	Version    string          `json:"version"`
	Name       string          `json:"name,omitempty"`
	Semaphores map[string]uint `json:"semaphores,omitempty"`
	Locks      []string        `json:"locks,omitempty"`
	Conditions []string        `json:"conditions,omitempty"`
	Threads    []ThreadSpec    `json:"threads"`

	// File is the path the scenario was loaded from, if any.
	File string `json:"-"`
}

// ThreadSpec describes one kernel thread.
type ThreadSpec struct {
	Name string `json:"name"`

	// Priority defaults to thread.PriDefault.
	Priority *int `json:"priority,omitempty"`

	// Deferred threads are created by a spawn op instead of at start.
	Deferred bool `json:"deferred,omitempty"`

	Ops []Op `json:"ops"`
}

// Op is a single step of a thread.
//
// Target names the primitive the op works on, or the thread for spawn.
// Lock is the monitor lock for wait, signal and broadcast. Value is the
// priority for set_priority and expect_priority, and the semaphore value
// for expect_value. Expect optionally checks the result of try_down and
// try_acquire. Message is the text of a note.
type Op struct {
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`
	Lock    string `json:"lock,omitempty"`
	Value   *int   `json:"value,omitempty"`
	Expect  *bool  `json:"expect,omitempty"`
	Message string `json:"message,omitempty"`
}

// Load reads, parses and validates the scenario at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sc.File = path
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Parse parses and validates a scenario held in memory.
func Parse(data []byte) (*Scenario, error) {
	sc, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return sc, nil
}

func parse(data []byte) (*Scenario, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	for i := range sc.Threads {
		if sc.Threads[i].Priority == nil {
			sc.Threads[i].Priority = ptr.Int(thread.PriDefault)
		}
	}
	return &sc, nil
}

// CheckVersion reports whether v can be run by this build.
func CheckVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	if semver.Major(v) != semver.Major(SupportedVersion) || semver.Compare(v, SupportedVersion) > 0 {
		return fmt.Errorf("%w: %s (this build supports up to %s)", ErrUnsupportedVersion, v, SupportedVersion)
	}
	return nil
}

// Thread returns the spec of the named thread.
func (sc *Scenario) Thread(name string) (*ThreadSpec, bool) {
	for i := range sc.Threads {
		if sc.Threads[i].Name == name {
			return &sc.Threads[i], true
		}
	}
	return nil, false
}

// Validate checks the scenario for unknown ops, names and priorities.
//
// A version error is returned on its own. Otherwise every problem found is
// reported as a *ValidationError, joined with errors.Join.
func (sc *Scenario) Validate() error {
	if err := CheckVersion(sc.Version); err != nil {
		if sc.File != "" {
			return fmt.Errorf("%s: %w", sc.File, err)
		}
		return err
	}

	v := &validator{sc: sc, kinds: make(map[string]string)}
	v.declarations()
	spawned := make(map[string]int)
	for i := range sc.Threads {
		v.thread(&sc.Threads[i], spawned)
	}
	for i := range sc.Threads {
		t := &sc.Threads[i]
		if t.Deferred && spawned[t.Name] == 0 {
			v.add(t.Name, 0, "", "deferred thread is never spawned",
				fmt.Sprintf(`add {"op": "spawn", "target": %q} to another thread, or drop "deferred"`, t.Name))
		}
		if spawned[t.Name] > 1 {
			v.add(t.Name, 0, "", fmt.Sprintf("spawned %d times", spawned[t.Name]), "a thread can be spawned once")
		}
	}
	return errors.Join(v.errs...)
}

type validator struct {
	sc    *Scenario
	kinds map[string]string // primitive name -> "semaphore", "lock", "condition"
	errs  []error
}

func (v *validator) add(threadName string, index int, op, msg, suggestion string) {
	v.errs = append(v.errs, &ValidationError{
		File:       v.sc.File,
		Thread:     threadName,
		Index:      index,
		Op:         op,
		Message:    msg,
		Suggestion: suggestion,
	})
}

func (v *validator) declare(name, kind string) {
	if name == "" {
		v.add("", 0, "", kind+" with empty name", "")
		return
	}
	if prev, ok := v.kinds[name]; ok {
		v.add("", 0, "", fmt.Sprintf("%s %q already declared as %s", kind, name, prev), "primitive names must be unique")
		return
	}
	v.kinds[name] = kind
}

func (v *validator) declarations() {
	for name := range v.sc.Semaphores {
		v.declare(name, "semaphore")
	}
	for _, name := range v.sc.Locks {
		v.declare(name, "lock")
	}
	for _, name := range v.sc.Conditions {
		v.declare(name, "condition")
	}

	if len(v.sc.Threads) == 0 {
		v.add("", 0, "", "no threads", "")
	}
	seen := make(map[string]bool)
	initial := 0
	for _, t := range v.sc.Threads {
		switch {
		case t.Name == "":
			v.add("", 0, "", "thread with empty name", "")
		case seen[t.Name]:
			v.add(t.Name, 0, "", "duplicate thread name", "")
		}
		seen[t.Name] = true
		if p := ptr.ToInt(t.Priority); p < thread.PriMin || p > thread.PriMax {
			v.add(t.Name, 0, "", fmt.Sprintf("priority %d out of range [%d, %d]", p, thread.PriMin, thread.PriMax), "")
		}
		if !t.Deferred {
			initial++
		}
	}
	if len(v.sc.Threads) > 0 && initial == 0 {
		v.add("", 0, "", "every thread is deferred", "at least one thread must start with the machine")
	}
}

func (v *validator) thread(t *ThreadSpec, spawned map[string]int) {
	for i, op := range t.Ops {
		idx := i + 1
		bad := func(msg, suggestion string) {
			v.add(t.Name, idx, op.Op, msg, suggestion)
		}
		needs := func(kind string) {
			if op.Target == "" {
				bad("missing target", fmt.Sprintf("name a %s in \"target\"", kind))
				return
			}
			if got, ok := v.kinds[op.Target]; !ok {
				bad(fmt.Sprintf("unknown %s %q", kind, op.Target), fmt.Sprintf("declare it in %q", kind+"s"))
			} else if got != kind {
				bad(fmt.Sprintf("%q is a %s, not a %s", op.Target, got, kind), "")
			}
		}
		priority := func() {
			if op.Value == nil {
				bad("missing value", "")
			} else if p := *op.Value; p < thread.PriMin || p > thread.PriMax {
				bad(fmt.Sprintf("priority %d out of range [%d, %d]", p, thread.PriMin, thread.PriMax), "")
			}
		}

		if since, ok := opSince[op.Op]; ok && semver.Compare(v.sc.Version, since) < 0 {
			bad(fmt.Sprintf("op needs scenario version %s, file declares %s", since, v.sc.Version),
				fmt.Sprintf(`set "version" to %q`, since))
			continue
		}

		switch op.Op {
		case OpDown, OpTryDown, OpUp, OpInterruptUp:
			needs("semaphore")
		case OpExpectValue:
			needs("semaphore")
			if op.Value == nil || *op.Value < 0 {
				bad("expect_value needs a non-negative value", "")
			}
		case OpAcquire, OpTryAcquire, OpRelease:
			needs("lock")
		case OpWait, OpSignal, OpBroadcast:
			needs("condition")
			if op.Lock == "" {
				bad("missing lock", `name the monitor lock in "lock"`)
			} else if v.kinds[op.Lock] != "lock" {
				bad(fmt.Sprintf("unknown lock %q", op.Lock), `declare it in "locks"`)
			}
		case OpSetPriority, OpExpectPriority:
			priority()
		case OpYield, OpNote:
		case OpSpawn:
			target, ok := v.sc.Thread(op.Target)
			switch {
			case !ok:
				bad(fmt.Sprintf("unknown thread %q", op.Target), "")
			case !target.Deferred:
				bad(fmt.Sprintf("thread %q is not deferred", op.Target), `mark it "deferred": true`)
			case op.Target == t.Name:
				bad("thread spawns itself", "")
			default:
				spawned[op.Target]++
			}
		default:
			bad(fmt.Sprintf("unknown op %q", op.Op), "see `uniproc help` for the list of ops")
		}
	}
}
