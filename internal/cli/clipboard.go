package cli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/aretw0/switchboard/pkg/domain"
)

// commandClipboard reads the system clipboard through the first paste
// utility found on PATH.
type commandClipboard struct {
	candidates [][]string
	lookPath   func(string) (string, error)
}

func newClipboard() *commandClipboard {
	var candidates [][]string
	switch runtime.GOOS {
	case "darwin":
		candidates = [][]string{{"pbpaste"}}
	case "windows":
		candidates = [][]string{{"powershell", "-NoProfile", "-Command", "Get-Clipboard"}}
	default:
		candidates = [][]string{
			{"wl-paste", "--no-newline"},
			{"xclip", "-selection", "clipboard", "-o"},
			{"xsel", "--clipboard", "--output"},
		}
	}
	return &commandClipboard{candidates: candidates, lookPath: exec.LookPath}
}

func (c *commandClipboard) Read(ctx context.Context) (string, error) {
	for _, argv := range c.candidates {
		if _, err := c.lookPath(argv[0]); err != nil {
			continue
		}
		var out, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = &out
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
		}
		if out.Len() == 0 {
			return "", domain.ErrClipboardEmpty
		}
		return out.String(), nil
	}
	return "", fmt.Errorf("%w: no paste utility found", domain.ErrClipboardEmpty)
}
