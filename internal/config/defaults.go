package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "macrorec"

// PlatformDataDir is where recordings, the library and the default
// configuration live:
//   - macOS:   ~/Library/Application Support/macrorec/
//   - Linux:   $XDG_DATA_HOME/macrorec/ or ~/.local/share/macrorec/
//   - Windows: %APPDATA%\macrorec\
//
// Without a home directory it is ~/.macrorec, or .macrorec as a last resort.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "linux":
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return fallbackDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir is searched for a configuration file. Linux follows
// XDG; elsewhere configuration sits next to the data.
func PlatformConfigDir() string {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	return PlatformDataDir()
}

// PlatformLogDir holds macrorec.log when logging to a file:
//   - macOS:   ~/Library/Logs/macrorec/
//   - Linux:   $XDG_STATE_HOME/macrorec/ or ~/.local/state/macrorec/
//   - Windows: %LOCALAPPDATA%\macrorec\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "linux":
		return xdgDir("XDG_STATE_HOME", ".local", "state")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName, "logs")
		}
		return filepath.Join(fallbackDataDir(), "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

func xdgDir(envVar string, fallback ...string) string {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName)
	}
	home := homeDir()
	if home == "" {
		return fallbackDataDir()
	}
	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

func fallbackDataDir() string {
	home := homeDir()
	if home == "" {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}

// SupportedConfigFormats lists the configuration file extensions, in
// lookup order.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile looks for config.<ext> in the working directory, then
// PlatformConfigDir, then DataDir. It returns "" when there is none.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir(), DataDir()} {
		for _, ext := range SupportedConfigFormats() {
			candidate := filepath.Join(dir, "config."+ext)
			if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
				return candidate
			}
		}
	}
	return ""
}
