package dispatch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Launcher performs the two side effects of a trigger. Tests substitute a
// fake; the exec implementation shells out to platform tools.
type Launcher interface {
	// OpenURL opens url in browserPath, or the platform default opener when
	// browserPath is empty. It returns once the process has started.
	OpenURL(ctx context.Context, url, browserPath string) error
	// PlaySound plays the audio file at path and waits for it to finish or
	// ctx to expire.
	PlaySound(ctx context.Context, path string) error
}

type execLauncher struct{}

// NewExecLauncher returns the production Launcher backed by os/exec.
func NewExecLauncher() Launcher { return execLauncher{} }

func (execLauncher) OpenURL(ctx context.Context, url, browserPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args := openCommand(url, browserPath)
	// The browser owns its own lifetime, so it is started detached from ctx;
	// canceling a dispatch must not close the user's window.
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	// Reap the child so it does not linger as a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

func openCommand(url, browserPath string) (string, []string) {
	if browserPath != "" {
		return browserPath, []string{url}
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

func (execLauncher) PlaySound(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("sound file: %w", err)
	}
	name, args := soundCommand(path)
	if name == "" {
		return fmt.Errorf("no sound player found for %s", runtime.GOOS)
	}
	return exec.CommandContext(ctx, name, args...).Run()
}

func soundCommand(path string) (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "afplay", []string{path}
	case "windows":
		return "powershell", []string{
			"-NoProfile", "-Command",
			fmt.Sprintf("(New-Object Media.SoundPlayer %q).PlaySync()", path),
		}
	default:
		candidates := [][]string{
			{"paplay", path},
			{"aplay", path},
			{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", path},
		}
		for _, c := range candidates {
			if _, err := exec.LookPath(c[0]); err == nil {
				return c[0], c[1:]
			}
		}
		return "", nil
	}
}
