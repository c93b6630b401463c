package process

// Info describes one running process.
type Info struct {
	PID          uint32
	ParentPID    uint32
	Name         string
	Path         string
	WorkingSet   uint64
	PrivateBytes uint64
	Threads      uint32
	// Dangerous marks processes the Manager refuses to terminate.
	Dangerous bool
}

// Source enumerates and kills processes. Snapshot fills every field except
// Dangerous; fields the caller lacks access to stay zero.
type Source interface {
	Snapshot() ([]Info, error)
	Kill(pid uint32) error
}
