package events

// State is the lifecycle state of a registered publisher
type State int

const (
	StateCreated State = iota
	StateRegistered
	StateConfigured
	StateRunning
	StateEnded
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRegistered:
		return "registered"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// PublisherStatus is a snapshot of one publisher for introspection
type PublisherStatus struct {
	Name          string `json:"name" yaml:"name"`
	State         string `json:"state" yaml:"state"`
	Subscriptions int    `json:"subscriptions" yaml:"subscriptions"`
	Subscribers   int    `json:"subscribers" yaml:"subscribers"`
	Events        uint64 `json:"events" yaml:"events"`
	Configures    uint64 `json:"configures" yaml:"configures"`
}
