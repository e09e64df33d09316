// pathmap.go - server-local <-> client-mount path projection (SPEC_FULL.md §6).
//
// The projection is a pure string replacement. It must never resolve symlinks:
// clients mount SHARED_ROOT at CLIENT_MOUNT_PREFIX and expect the substring
// swap to land on exactly the same inode they can already see.
package pathmap

import "strings"

// ToClientMount rewrites a server-local path rooted at sharedRoot into its
// client-visible form. Paths that are not under sharedRoot are returned unchanged.
func ToClientMount(serverPath, sharedRoot, clientMountPrefix string) string {
	if !strings.HasPrefix(serverPath, sharedRoot) {
		return serverPath
	}
	rest := strings.TrimPrefix(serverPath, sharedRoot)
	return clientMountPrefix + rest
}

// ToServerPath reverses ToClientMount, used when a client-mount-form path is
// handed back to the server (e.g. legacy image_path fields).
func ToServerPath(clientPath, sharedRoot, clientMountPrefix string) string {
	if !strings.HasPrefix(clientPath, clientMountPrefix) {
		return clientPath
	}
	rest := strings.TrimPrefix(clientPath, clientMountPrefix)
	return sharedRoot + rest
}
