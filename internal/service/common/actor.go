//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os/user"

	"github.com/oshokin/alarm-subsystem/internal/address"
)

// DetectActor returns the person address of the current OS user, used when
// no actor is given on the command line.
func DetectActor() (string, error) {
	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}

	return address.Person(currentUser.Username).String(), nil
}
