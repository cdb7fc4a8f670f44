package constant

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

type ControlType string

const (
	ControlSkipWaiting ControlType = "SKIP_WAITING"
	ControlCacheURLs   ControlType = "CACHE_URLS"
)

// SchemaVersion is bumped whenever a collection shape changes; upgrades
// must leave existing collections intact.
const SchemaVersion = 1
