package appconf

import "fmt"

// Environment selects logging, debug pages and caching behaviour.
type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Production  Environment = "production"
)

// ParseEnvironment accepts the long names and the usual short forms.
func ParseEnvironment(s string) (Environment, error) {
	switch s {
	case "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

func (e Environment) String() string {
	return string(e)
}
