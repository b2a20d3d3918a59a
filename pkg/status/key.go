package status

import "fmt"

// DefaultKeyPrefix is the key namespace used when none is configured.
const DefaultKeyPrefix = "promptgrid"

// RunKey identifies the status hash of one run.
type RunKey struct {
	Prefix string
	RunID  string
}

// String returns <prefix>:run:<run-id>.
func (k RunKey) String() string {
	return fmt.Sprintf("%s:run:%s", prefixOrDefault(k.Prefix), k.RunID)
}

// RunsKey returns the set holding all run ids under prefix.
func RunsKey(prefix string) string {
	return prefixOrDefault(prefix) + ":runs"
}

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultKeyPrefix
	}
	return prefix
}
