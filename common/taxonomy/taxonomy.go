package taxonomy

import (
	"fmt"
	"regexp"
	"strings"
)

// Class is the closed set of tag classes. The class is determined once at
// parse time and carried with the tag from then on; callers never re-derive
// it from the raw name.
type Class string

const (
	ClassVersion     Class = "version"
	ClassEnvironment Class = "environment"
	ClassState       Class = "state"
	ClassDeployment  Class = "deployment"
	ClassBackup      Class = "backup"
)

// ErrInvalidName is returned when a tag name does not match the format
// required by its class. Check with errors.Is.
var ErrInvalidName = fmt.Errorf("invalid tag name")

var (
	versionPattern     = regexp.MustCompile(`^v\d+\.\d+\.\d+(-[0-9A-Za-z.\-]+)?$`)
	environmentPattern = regexp.MustCompile(`^env/[a-z0-9][a-z0-9\-]*$`)
	statePattern       = regexp.MustCompile(`^state/[a-z0-9][a-z0-9\-]*$`)
	deploymentPattern  = regexp.MustCompile(`^deploy/\d{4}-\d{2}-\d{2}-[A-Za-z0-9._\-]+$`)
	backupPattern      = regexp.MustCompile(`^backup/.+/\d{8}T\d{15}$`)
)

// Classes lists all known classes, for error messages.
func Classes() []Class {
	return []Class{ClassVersion, ClassEnvironment, ClassState, ClassDeployment, ClassBackup}
}

// ValidateName checks that name matches the format required by class.
// Pure: identical inputs always produce identical results.
func ValidateName(name string, class Class) error {
	var pattern *regexp.Regexp

	switch class {
	case ClassVersion:
		pattern = versionPattern
	case ClassEnvironment:
		pattern = environmentPattern
	case ClassState:
		pattern = statePattern
	case ClassDeployment:
		pattern = deploymentPattern
	case ClassBackup:
		pattern = backupPattern
	default:
		return fmt.Errorf("%w: unknown class %q (known: %v)", ErrInvalidName, class, Classes())
	}

	if !pattern.MatchString(name) {
		return fmt.Errorf("%w: %q does not match %s format", ErrInvalidName, name, class)
	}

	return nil
}

// Parse determines the class of a tag name from its prefix and validates
// the full name against that class's format.
func Parse(name string) (Class, error) {
	var class Class

	switch {
	case strings.HasPrefix(name, "env/"):
		class = ClassEnvironment
	case strings.HasPrefix(name, "state/"):
		class = ClassState
	case strings.HasPrefix(name, "deploy/"):
		class = ClassDeployment
	case strings.HasPrefix(name, "backup/"):
		class = ClassBackup
	case strings.HasPrefix(name, "v"):
		class = ClassVersion
	default:
		return "", fmt.Errorf("%w: %q matches no known class (known: %v)", ErrInvalidName, name, Classes())
	}

	if err := ValidateName(name, class); err != nil {
		return "", err
	}

	return class, nil
}

// IsMovable reports whether tags of this class may be repointed after
// creation. Environment and state tags move (last-write-wins per name);
// version, deployment and backup tags are create-once.
func (c Class) IsMovable() bool {
	return c == ClassEnvironment || c == ClassState
}

// EnvironmentTag returns the canonical environment tag name for env.
func EnvironmentTag(env string) string {
	return "env/" + env
}

// RollbackEnvironmentTag returns the dedicated rollback audit tag for env.
func RollbackEnvironmentTag(env string) string {
	return "env/rollback-" + env
}

// StateTag returns the state tag name for an (environment, outcome) pair.
// Example: StateTag("staging", "success") == "state/staging-success".
func StateTag(env, outcome string) string {
	return "state/" + env + "-" + outcome
}

// RollbackInitiatedTag is the state tag written on every rollback.
const RollbackInitiatedTag = "state/rollback-initiated"
