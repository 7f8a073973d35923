package inventory

import (
	"fmt"
	"regexp"
	"strings"
)

var commandPattern = regexp.MustCompile(`-o role\[(.*)\] -E (.*)`)

// ParseRoleAndEnv extracts the role and environment from a chef-client
// command such as "chef-client -o role[web] -E production".
func ParseRoleAndEnv(command string) (role, env string, err error) {
	matches := commandPattern.FindStringSubmatch(command)
	if len(matches) != 3 {
		return "", "", fmt.Errorf("%w: %q", ErrUnparsableCommand, command)
	}
	role = strings.TrimSpace(matches[1])
	// Anything after the environment name is a further chef-client flag.
	fields := strings.Fields(matches[2])
	if role == "" || len(fields) == 0 {
		return "", "", fmt.Errorf("%w: %q", ErrUnparsableCommand, command)
	}
	return role, fields[0], nil
}
