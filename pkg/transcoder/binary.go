package transcoder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// DefaultBinaryName is looked up on PATH as the last resort.
const DefaultBinaryName = "ffmpeg"

// BinaryOptions lists the candidates ResolveBinary tries, in order.
type BinaryOptions struct {
	// Configured is an explicit path, usually from FFMPEG_BIN.
	Configured string
	// Bundled is the fallback binary shipped with the bot. Empty means
	// bin/ffmpeg next to the executable.
	Bundled string
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// ResolveBinary picks the transcoder binary: configured path, then the bundled
// fallback, then PATH. It runs once at startup; failure is fatal.
func ResolveBinary(opts BinaryOptions) (string, error) {
	var tried []string

	if opts.Configured != "" {
		if isExecutable(opts.Configured) {
			return opts.Configured, nil
		}
		tried = append(tried, opts.Configured)
	}

	bundled := opts.Bundled
	if bundled == "" {
		bundled = defaultBundledPath()
	}
	if bundled != "" {
		if isExecutable(bundled) {
			return bundled, nil
		}
		tried = append(tried, bundled)
	}

	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if path, err := lookPath(DefaultBinaryName); err == nil {
		return path, nil
	}
	tried = append(tried, "$PATH/"+DefaultBinaryName)

	return "", fmt.Errorf("%w: tried %s", pipeline.ErrBinaryUnavailable, strings.Join(tried, ", "))
}

func defaultBundledPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	name := DefaultBinaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(exe), "bin", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
