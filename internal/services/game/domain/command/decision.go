package command

// Decision is the outcome a handler reports for a command. State changes are
// applied by the handler itself; the decision only says whether it accepted.
type Decision struct {
	Rejections []Rejection
}

// Rejection captures a domain-level reason a command was declined.
type Rejection struct {
	Code    string
	Message string
}

// Accept returns an accepting decision.
func Accept() Decision {
	return Decision{}
}

// Reject returns a decision that carries the provided rejections.
func Reject(rejections ...Rejection) Decision {
	return Decision{Rejections: append([]Rejection(nil), rejections...)}
}

// Rejected reports whether the decision declined the command.
func (d Decision) Rejected() bool {
	return len(d.Rejections) > 0
}
