package model

// ProspectStatus is the lifecycle state of a campaign prospect.
type ProspectStatus string

const (
	ProspectPending             ProspectStatus = "pending"
	ProspectApproved            ProspectStatus = "approved"
	ProspectRejected            ProspectStatus = "rejected"
	ProspectQueued              ProspectStatus = "queued"
	ProspectConnectionRequested ProspectStatus = "connection_requested"
	ProspectMessageSent         ProspectStatus = "message_sent"
	ProspectReplied             ProspectStatus = "replied"
	ProspectBounced             ProspectStatus = "bounced"
	ProspectFailed              ProspectStatus = "failed"
)

// AllProspectStatuses lists every status in lifecycle order.
var AllProspectStatuses = []ProspectStatus{
	ProspectPending,
	ProspectApproved,
	ProspectRejected,
	ProspectQueued,
	ProspectConnectionRequested,
	ProspectMessageSent,
	ProspectReplied,
	ProspectBounced,
	ProspectFailed,
}

// ParseProspectStatus returns the status for s and whether it is known.
func ParseProspectStatus(s string) (ProspectStatus, bool) {
	for _, st := range AllProspectStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsSent reports whether the status is one of the "just sent" states.
func (s ProspectStatus) IsSent() bool {
	switch s {
	case ProspectConnectionRequested, ProspectMessageSent:
		return true
	}
	return false
}

// IsOutcome reports whether the status records what happened after a send.
func (s ProspectStatus) IsOutcome() bool {
	switch s {
	case ProspectReplied, ProspectBounced, ProspectFailed:
		return true
	}
	return false
}

// IsContacted reports whether the status implies contacted_at must be set.
func (s ProspectStatus) IsContacted() bool {
	return s.IsSent() || s.IsOutcome()
}

// IsTerminal reports whether no normal transition leaves this status.
// ResetToPending is an operator override and ignores this.
func (s ProspectStatus) IsTerminal() bool {
	return s == ProspectRejected || s.IsOutcome()
}

// CanTransition is the lifecycle table. Every status is listed so a new
// status without rules fails the exhaustiveness test.
func (s ProspectStatus) CanTransition(to ProspectStatus) bool {
	switch s {
	case ProspectPending:
		return to == ProspectApproved || to == ProspectRejected || to == ProspectQueued || to.IsSent()
	case ProspectApproved:
		return to == ProspectPending || to == ProspectRejected || to == ProspectQueued || to.IsSent()
	case ProspectQueued:
		return to.IsSent()
	case ProspectConnectionRequested, ProspectMessageSent:
		return to.IsOutcome()
	case ProspectRejected, ProspectReplied, ProspectBounced, ProspectFailed:
		return false
	}
	return false
}

// Channel is the medium used to contact a prospect.
type Channel string

const (
	ChannelLinkedIn        Channel = "linkedin"
	ChannelLinkedInMessage Channel = "linkedin_message"
	ChannelEmail           Channel = "email"
)

// SentStatus is the status a prospect takes after a successful send on c.
func (c Channel) SentStatus() (ProspectStatus, bool) {
	switch c {
	case ChannelLinkedIn:
		return ProspectConnectionRequested, true
	case ChannelLinkedInMessage, ChannelEmail:
		return ProspectMessageSent, true
	}
	return "", false
}
