package util

import (
	"bytes"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	homeDir     string
	homeDirErr  error
	homeDirOnce sync.Once
)

// Home returns the home directory for the current user, caching the result.
func Home() (string, error) {
	homeDirOnce.Do(func() {
		u, err := user.Current()
		if err == nil && u.HomeDir != "" {
			homeDir = u.HomeDir
			return
		}
		if runtime.GOOS == "windows" {
			homeDir, homeDirErr = homeWindows()
		} else {
			homeDir, homeDirErr = homeUnix()
		}
	})
	return homeDir, homeDirErr
}

func homeUnix() (string, error) {
	if home := os.Getenv("HOME"); home != "" {
		return home, nil
	}
	var stdout bytes.Buffer
	cmd := exec.Command("sh", "-c", "eval echo ~$USER")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", errors.Wrap(err, "failed to run shell command for home directory")
	}
	result := strings.TrimSpace(stdout.String())
	if result == "" {
		return "", errors.New("blank output when reading home directory via shell")
	}
	return result, nil
}

func homeWindows() (string, error) {
	drive := os.Getenv("HOMEDRIVE")
	path := os.Getenv("HOMEPATH")
	home := drive + path
	if drive == "" || path == "" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		return "", errors.New("HOMEDRIVE, HOMEPATH, and USERPROFILE environment variables are blank")
	}
	return home, nil
}

// CurrentUsername returns the name of the user owning this process.
func CurrentUsername() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", errors.Wrap(err, "failed to look up current user")
	}
	return u.Username, nil
}

// FirstExisting returns the first path that exists, or "".
func FirstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// SSHDir returns the current user's ~/.ssh directory.
func SSHDir() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ssh"), nil
}
