package browser

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/go-rod/rod/lib/launcher"

	"bookpilot/internal/logging"
)

// Launcher starts a browser process and reports the remote-debugging port it
// is listening on. The returned cleanup function kills the process; the
// caller must invoke it when the run ends.
type Launcher interface {
	Launch(profile string) (port int, cleanup func(), err error)
}

// ChromeLauncher launches Chrome through rod's launcher with an isolated
// user-data directory per profile.
type ChromeLauncher struct {
	Bin         string // empty = rod's auto-detected browser
	Headless    bool
	UserDataDir string // base directory; the profile name is appended
}

// Launch starts Chrome and returns its debugging port.
func (c *ChromeLauncher) Launch(profile string) (int, func(), error) {
	l := launcher.New().Headless(c.Headless).Leakless(true)
	if c.Bin != "" {
		l = l.Bin(c.Bin)
	}
	if c.UserDataDir != "" && profile != "" {
		l = l.UserDataDir(c.UserDataDir + "/" + profile)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return 0, nil, fmt.Errorf("launch chrome: %w", err)
	}

	port, err := portFromControlURL(controlURL)
	if err != nil {
		l.Cleanup()
		return 0, nil, err
	}

	logging.Get(logging.CategoryBrowser).Infof("chrome launched for profile %q on port %d", profile, port)
	return port, l.Cleanup, nil
}

func portFromControlURL(controlURL string) (int, error) {
	u, err := url.Parse(controlURL)
	if err != nil {
		return 0, fmt.Errorf("parse control url %q: %w", controlURL, err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return 0, fmt.Errorf("control url %q has no port: %w", controlURL, err)
	}
	return port, nil
}
