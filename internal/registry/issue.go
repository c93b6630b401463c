package registry

// Category groups issues by the sub-scan that found them.
type Category int

const (
	FileAssociation Category = iota
	ObsoleteSoftware
	SharedDll
	StartupEntry
	MruList
)

func (c Category) String() string {
	switch c {
	case FileAssociation:
		return "File Association"
	case ObsoleteSoftware:
		return "Obsolete Software"
	case SharedDll:
		return "Shared DLL"
	case StartupEntry:
		return "Startup Entry"
	case MruList:
		return "Recent List (MRU)"
	default:
		return "Unknown"
	}
}

type Severity int

const (
	Low Severity = iota
	Medium
	High
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	default:
		return "Unknown"
	}
}

// Issue is a single finding of a scan. Selected decides whether Clean acts
// on it.
type Issue struct {
	Category    Category
	KeyPath     string
	ValueName   string
	Description string
	Severity    Severity
	Selected    bool
}

func newIssue(category Category, severity Severity, keyPath, valueName, description string) Issue {
	return Issue{
		Category:    category,
		KeyPath:     keyPath,
		ValueName:   valueName,
		Description: description,
		Severity:    severity,
		Selected:    true,
	}
}
