// Package dispatch implements the CLI's verb table: spec.md §6's four
// verbs (save, replace, reconfigure, check). Any other verb is rejected
// with ErrUnknownVerb; there is no fallback lookup of a like-named
// internal function.
package dispatch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/etcdadm/etcdadm-agent/pkg/agent"
)

// Verb names a dispatchable command, spec.md §6's "save|replace|reconfigure|check".
type Verb string

const (
	VerbSave        Verb = "save"
	VerbReplace     Verb = "replace"
	VerbReconfigure Verb = "reconfigure"
	VerbCheck       Verb = "check"
)

// ErrUnknownVerb is returned, wrapped with the quoted verb (for example
// `"bogus": unexpected command`), for any verb not in the table. The CLI
// never reaches this path for a mistyped verb: cobra rejects unknown
// subcommands with its own "unknown command" error first.
var ErrUnknownVerb = errors.New("unexpected command")

// Table maps each verb to the Agent method it invokes.
type Table struct {
	Agent *agent.Agent
}

// Run invokes the named verb against the wired Agent.
func (t *Table) Run(ctx context.Context, verb Verb) error {
	switch verb {
	case VerbSave:
		return t.Agent.Save(ctx)
	case VerbReplace:
		return t.Agent.Replace(ctx)
	case VerbReconfigure:
		return t.Agent.Reconfigure(ctx)
	case VerbCheck:
		return t.Agent.Check(ctx)
	default:
		return errors.Wrapf(ErrUnknownVerb, "%#v", string(verb))
	}
}
