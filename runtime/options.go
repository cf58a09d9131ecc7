package runtime

import (
	"fmt"

	"github.com/johnsiilver/calloptions"
)

type runtimeOptions struct {
	startStates map[string]string
}

// Option configures a Runtime at construction, using the
// `johnsiilver/calloptions` functional-options pattern.
type Option interface {
	runtimeOption()
}

// WithStartStates overrides one or more processes' initial state away
// from the group's declared default (the first state named in its
// `states:` list), keyed by
// process name. Intended for test harnesses that need to drive a process
// from a mid-pipeline state without replaying everything before it.
func WithStartStates(states map[string]string) interface {
	Option
	calloptions.CallOption
} {
	return struct {
		Option
		calloptions.CallOption
	}{
		CallOption: calloptions.New(
			func(a any) error {
				t, ok := a.(*runtimeOptions)
				if !ok {
					return fmt.Errorf("WithStartStates can only be used with runtime.Option")
				}
				t.startStates = states
				return nil
			},
		),
	}
}
