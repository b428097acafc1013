package casregistry

// Usage restricts which programs accept a backend.
type Usage uint8

const (
	// UsageCLI backends are offered by the nfa command.
	UsageCLI Usage = 1 << iota
	// UsageDaemon backends can be served by nfa-casd.
	UsageDaemon
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
