// internal/browser/cdp/allocator.go
package cdp

import (
	"os"
	"os/exec"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/signin-e2e/internal/config"
)

// flag is one Chrome command-line switch. A false bool value removes it.
type flag struct {
	name  string
	value interface{}
}

// allocatorFlags computes the switches for a launch. Later entries win, so
// user-supplied args can override the defaults.
func allocatorFlags(b config.BrowserConfig, n config.NetworkConfig) []flag {
	flags := []flag{
		{"headless", b.Headless},
		{"no-sandbox", true},
		{"disable-gpu", true},
		{"disable-dev-shm-usage", true},
		{"enable-automation", true},
	}
	if b.IgnoreTLS || n.IgnoreTLSErrors {
		flags = append(flags,
			flag{"ignore-certificate-errors", true},
			flag{"allow-insecure-localhost", true},
		)
	}
	for _, arg := range b.Args {
		if f, ok := parseArg(arg); ok {
			flags = append(flags, f)
		}
	}
	return flags
}

// parseArg turns "--name=value" or "--name" into a flag.
func parseArg(arg string) (flag, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return flag{}, false
	}
	key, value, found := strings.Cut(arg, "=")
	if !found {
		return flag{key, true}, true
	}
	return flag{key, strings.Trim(value, `"'`)}, true
}

// DefaultAllocatorOptions builds the ExecAllocator options for a launch.
func DefaultAllocatorOptions(b config.BrowserConfig, n config.NetworkConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(b, n) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	w, h := b.ViewportSize()
	opts = append(opts, chromedp.WindowSize(w, h))
	if b.ExecPath != "" {
		path, err := config.ExpandPath(b.ExecPath)
		if err != nil {
			path = b.ExecPath
		}
		opts = append(opts, chromedp.ExecPath(path))
	}
	return opts
}

var chromeNames = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"chrome",
}

// FindChrome looks for a Chrome binary the allocator would be able to start,
// checking CHROME_PATH first.
func FindChrome() (string, bool) {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	for _, name := range chromeNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}
