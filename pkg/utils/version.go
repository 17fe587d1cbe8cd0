// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

// Build metadata, set with -ldflags at release time.
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// UserAgent identifies presence to the APIs it polls and posts to.
func UserAgent() string {
	return "presence/" + Version
}
