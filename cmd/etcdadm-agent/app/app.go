// Package app wires the cobra command tree for the etcdadm-agent binary:
// one subcommand per spec.md §6 verb, plus version. It mirrors the
// teacher's cmd/e2d/app package shape (NewCommand, PersistentPreRun
// applying --verbose); the four verb subcommands are built here, and
// version lives in its own file.
package app

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/etcdadm/etcdadm-agent/pkg/agent"
	"github.com/etcdadm/etcdadm-agent/pkg/agentconfig"
	"github.com/etcdadm/etcdadm-agent/pkg/dispatch"
	"github.com/etcdadm/etcdadm-agent/pkg/log"
)

var opts struct {
	Verbose bool
}

// NewCommand builds the root "etcdadm-agent" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etcdadm-agent",
		Short: "etcd cluster member lifecycle agent",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Verbose {
				log.SetLevel(zapcore.DebugLevel)
			}
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose log output (debug)")

	cmd.AddCommand(
		newVerbCommand(dispatch.VerbSave, "upload a snapshot if this member is the healthy cluster's leader"),
		newVerbCommand(dispatch.VerbReplace, "force replacement of this member's registration"),
		newVerbCommand(dispatch.VerbReconfigure, "observe cluster state and take the indicated recovery action"),
		newVerbCommand(dispatch.VerbCheck, "update member and cluster failure timestamps"),
		newVersionCmd(),
	)
	return cmd
}

func newVerbCommand(verb dispatch.Verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(verb),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerb(verb)
		},
	}
}

func runVerb(verb dispatch.Verb) error {
	correlationID := uuid.New().String()
	log.Infof("invocation=%s verb=%s", correlationID, verb)

	cfg, err := agentconfig.Load()
	if err != nil {
		printErr(err)
		return err
	}
	a, err := agent.New(cfg)
	if err != nil {
		printErr(err)
		return err
	}

	table := &dispatch.Table{Agent: a}
	if err := table.Run(context.Background(), verb); err != nil {
		printErr(err)
		return err
	}
	return nil
}

func printErr(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "error: %+v\n", err)
}
