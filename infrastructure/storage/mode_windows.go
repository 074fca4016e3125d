//go:build windows

package storage

import (
	"fmt"
	"os/exec"
	"os/user"
	"strings"
)

// hardenPermissions resets the file ACL so that only Administrators, SYSTEM
// and the current user retain access.
func hardenPermissions(path string) error {
	u, err := user.Current()
	if err != nil {
		return fmt.Errorf("resolve current user: %w", err)
	}
	commands := [][]string{
		{"icacls", path, "/reset"},
		{"icacls", path, "/inheritance:r"},
		{"icacls", path, "/remove:g", "Everyone"},
		{"icacls", path, "/grant:r", "Administrators:F"},
		{"icacls", path, "/grant:r", "*SYSTEM:F"},
		{"icacls", path, "/grant:r", fmt.Sprintf("*%s:F", u.Uid)},
	}
	for _, args := range commands {
		out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
		if err != nil {
			// 1332: no mapping for a localized group name; skip and continue.
			if strings.Contains(string(out), "1332") {
				continue
			}
			return fmt.Errorf("%s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// permissionsTooOpen reports whether the ACL still grants Everyone access.
func permissionsTooOpen(path string) (bool, error) {
	out, err := exec.Command("icacls", path).CombinedOutput()
	if err != nil {
		return false, err
	}
	return strings.Contains(string(out), "Everyone"), nil
}
