//go:build !windows

package storage

import "os"

// hardenPermissions restricts the config file to its owner.
func hardenPermissions(path string) error {
	return os.Chmod(path, 0o600)
}

// permissionsTooOpen reports whether group or world bits are set.
func permissionsTooOpen(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode().Perm()&0o077 != 0, nil
}
