package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/pkg/utils"

	"github.com/spf13/cobra"
)

// actionCommand describes a subcommand that maps its arguments onto one governance action.
type actionCommand struct {
	use   string
	short string
	args  cobra.PositionalArgs
	build func(args []string) (entity.GovernanceAction, error)
}

func actionCommands() []actionCommand {
	return []actionCommand{
		{
			use:   "register-chain <network> <target>",
			short: "Register target's governance contract as a trusted emitter on network",
			args:  cobra.ExactArgs(2),
			build: func(args []string) (entity.GovernanceAction, error) {
				return entity.RegisterChain{Source: args[0], Target: args[1]}, nil
			},
		},
		{
			use:   "create-proposal <network> <title>",
			short: "Create a proposal on a main network and queue its attestation",
			args:  cobra.ExactArgs(2),
			build: func(args []string) (entity.GovernanceAction, error) {
				return entity.CreateProposal{Source: args[0], Title: args[1]}, nil
			},
		},
		{
			use:   "cast-vote <network> <proposal-index> <choice>",
			short: "Vote on a proposal",
			args:  cobra.ExactArgs(3),
			build: func(args []string) (entity.GovernanceAction, error) {
				index, err := utils.ParseBigInt(args[1])
				if err != nil {
					return nil, err
				}
				choice, err := utils.ParseUint8(args[2])
				if err != nil {
					return nil, err
				}
				return entity.CastVote{Source: args[0], ProposalIndex: index, Choice: choice}, nil
			},
		},
		{
			use:   "end-voting <network> <proposal-index>",
			short: "Close voting on a main network and queue the attestation",
			args:  cobra.ExactArgs(2),
			build: func(args []string) (entity.GovernanceAction, error) {
				index, err := utils.ParseBigInt(args[1])
				if err != nil {
					return nil, err
				}
				return entity.EndVoting{Source: args[0], ProposalIndex: index}, nil
			},
		},
		{
			use:   "submit-vaa <network> <target> [queue-index|latest]",
			short: "Submit one of target's queued attestations to network",
			args:  cobra.RangeArgs(2, 3),
			build: func(args []string) (entity.GovernanceAction, error) {
				index, err := optionalIndex(args, 2)
				if err != nil {
					return nil, err
				}
				return entity.SubmitAttestation{Source: args[0], Target: args[1], QueueIndex: index}, nil
			},
		},
		{
			use:   "submit-end-of-voting <network> <target> [queue-index|latest]",
			short: "Submit an end-of-voting attestation and queue the returned tally",
			args:  cobra.RangeArgs(2, 3),
			build: func(args []string) (entity.GovernanceAction, error) {
				index, err := optionalIndex(args, 2)
				if err != nil {
					return nil, err
				}
				return entity.SubmitEndOfVotingAttestation{Source: args[0], Target: args[1], QueueIndex: index}, nil
			},
		},
		{
			use:   "execute-proposal <network> <proposal-index>",
			short: "Execute a proposal on a main network and queue the attestation",
			args:  cobra.ExactArgs(2),
			build: func(args []string) (entity.GovernanceAction, error) {
				index, err := utils.ParseBigInt(args[1])
				if err != nil {
					return nil, err
				}
				return entity.ExecuteProposal{Source: args[0], ProposalIndex: index}, nil
			},
		},
	}
}

func (ac actionCommand) command() *cobra.Command {
	return &cobra.Command{
		Use:   ac.use,
		Short: ac.short,
		Args:  ac.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := ac.build(args)
			if err != nil {
				return fmt.Errorf("%w: %w", entity.ErrConfiguration, err)
			}
			return withApplication(cmd, func(ctx context.Context, app *application) error {
				result, err := app.governance.Execute(ctx, action)
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

// optionalIndex parses args[pos] as a queue index. A missing or non-numeric argument
// (such as "latest") selects the most recent entry.
func optionalIndex(args []string, pos int) (*int, error) {
	if len(args) <= pos {
		return nil, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(args[pos]))
	if err != nil {
		return nil, nil
	}
	if i < 0 {
		return nil, fmt.Errorf("queue index %d is negative", i)
	}
	return &i, nil
}

func newRecordDeploymentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "record-deployment <network> <address>",
		Short: "Record a deployed governance contract address and clear the network's queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application) error {
				if err := app.governance.RecordDeployment(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s on %s\n", args[1], args[0])
				return nil
			})
		},
	}
}

func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <network> <tx-hash>",
		Short: "Queue the attestation of an already mined transaction",
		Long: `recover re-derives the bridge sequence from a mined transaction's receipt, waits
for its attestation and queues it on network. Use it when an action was broadcast but the
attestation step failed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application) error {
				result, err := app.governance.RecoverAttestation(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				printResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the networks in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application) error {
				networks, err := app.governance.ListNetworks(ctx)
				if err != nil {
					return err
				}
				printNetworks(cmd.OutOrStdout(), networks)
				return nil
			})
		},
	}
}

func printResult(w io.Writer, result *entity.ActionResult) {
	fmt.Fprintf(w, "%s on %s\n", result.Action, result.Network)
	if result.TxHash != "" {
		fmt.Fprintf(w, "  tx:       %s\n", result.TxHash)
	}
	if result.Sequence != nil {
		fmt.Fprintf(w, "  sequence: %d\n", *result.Sequence)
	}
	if result.Submitted != nil {
		fmt.Fprintf(w, "  submitted attestation (%d bytes)\n", len(result.Submitted))
	}
	for _, a := range result.Emitted {
		fmt.Fprintf(w, "  queued:   %s (%d bytes)\n", a.Key, len(a.Bytes))
	}
}

func printNetworks(w io.Writer, networks []entity.NetworkDescriptor) {
	for _, n := range networks {
		deployed := n.DeployedAddress
		if !n.IsDeployed() {
			deployed = "(not deployed)"
		}
		fmt.Fprintf(w, "%-12s %-5s chain=%-5d contract=%s pending=%d\n",
			n.Name, n.Role, n.ChainID, deployed, len(n.PendingAttestations))
	}
}
