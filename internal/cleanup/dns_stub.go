//go:build !windows

package cleanup

func flushResolverCache() bool {
	return false
}
