package entity

import "math/big"

// GovernanceAction is one step of the cross-chain governance workflow.
// The set of variants is closed: only types in this package implement it.
type GovernanceAction interface {
	// Name is the command name of the action, used in logs and metrics.
	Name() string
	// SourceNetwork is the network the action's transaction is sent to.
	SourceNetwork() string
	isGovernanceAction()
}

// RegisterChain registers Target's governance contract as a trusted emitter on Source.
type RegisterChain struct {
	Source string
	Target string
}

// CreateProposal creates a proposal on a Main network and queues the resulting attestation.
type CreateProposal struct {
	Source string
	Title  string
}

// CastVote votes on a proposal on Source. Nothing is bridged.
type CastVote struct {
	Source        string
	ProposalIndex *big.Int
	Choice        uint8
}

// EndVoting closes voting on a Main network and queues the resulting attestation.
type EndVoting struct {
	Source        string
	ProposalIndex *big.Int
}

// SubmitAttestation submits one of Target's pending attestations to Source.
// A nil QueueIndex pops the most recently appended entry.
type SubmitAttestation struct {
	Source     string
	Target     string
	QueueIndex *int
}

// SubmitEndOfVotingAttestation is SubmitAttestation followed by the return hop:
// the message Source emits on receipt is attested and queued on Source.
type SubmitEndOfVotingAttestation struct {
	Source     string
	Target     string
	QueueIndex *int
}

// ExecuteProposal executes a proposal on a Main network and queues the resulting attestation.
type ExecuteProposal struct {
	Source        string
	ProposalIndex *big.Int
}

func (RegisterChain) Name() string                { return "register_chain" }
func (CreateProposal) Name() string               { return "create_proposal" }
func (CastVote) Name() string                     { return "cast_vote" }
func (EndVoting) Name() string                    { return "end_voting" }
func (SubmitAttestation) Name() string            { return "submit_vaa" }
func (SubmitEndOfVotingAttestation) Name() string { return "submit_end_of_voting" }
func (ExecuteProposal) Name() string              { return "execute_proposal" }

func (a RegisterChain) SourceNetwork() string                { return a.Source }
func (a CreateProposal) SourceNetwork() string               { return a.Source }
func (a CastVote) SourceNetwork() string                     { return a.Source }
func (a EndVoting) SourceNetwork() string                    { return a.Source }
func (a SubmitAttestation) SourceNetwork() string            { return a.Source }
func (a SubmitEndOfVotingAttestation) SourceNetwork() string { return a.Source }
func (a ExecuteProposal) SourceNetwork() string              { return a.Source }

func (RegisterChain) isGovernanceAction()                {}
func (CreateProposal) isGovernanceAction()               {}
func (CastVote) isGovernanceAction()                     {}
func (EndVoting) isGovernanceAction()                    {}
func (SubmitAttestation) isGovernanceAction()            {}
func (SubmitEndOfVotingAttestation) isGovernanceAction() {}
func (ExecuteProposal) isGovernanceAction()              {}

// ActionResult summarizes what an action did.
type ActionResult struct {
	Action   string
	Network  string
	TxHash   string
	Sequence *uint64
	// Emitted holds attestations queued by this action, in order.
	Emitted []Attestation
	// Submitted is the attestation sent to the chain, if any.
	Submitted []byte
}
