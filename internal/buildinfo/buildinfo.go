// Package buildinfo carries build-time metadata separate from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/tphakala/climagrid/internal/buildinfo.Version=..."
var (
	Version   = ""
	BuildDate = ""
)

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	Version   string
	BuildDate string
}

// Current returns the metadata linked into this binary.
func Current() *Context {
	return NewContext(Version, BuildDate)
}

// NewContext creates a Context.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version, or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date, or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release names the build for error reports, e.g. "climagrid@1.2.0".
func (c *Context) Release() string {
	return "climagrid@" + c.GetVersion()
}

// UserAgent returns the User-Agent header value for API requests.
func (c *Context) UserAgent() string {
	return fmt.Sprintf("ClimaGrid/%s", c.GetVersion())
}
