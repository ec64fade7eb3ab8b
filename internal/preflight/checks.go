package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"setgen/internal/cards"
	"setgen/internal/config"
	"setgen/internal/deps"
	"setgen/internal/taskgraph"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSourceFile verifies the card source is readable and decodes.
func CheckSourceFile(path string) Result {
	const name = "Card source"
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	src, err := cards.LoadSource(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d sets, %d cards)", path, len(src.Sets), len(src.Cards))}
}

// CheckOutputs verifies every configured output kind and its prerequisite.
func CheckOutputs(cfg *config.Config) Result {
	const name = "Output kinds"
	if err := taskgraph.Validate(cfg.Outputs); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	total := 0
	for _, kinds := range cfg.Outputs {
		total += len(kinds)
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d kind(s) across %d language(s)", total, len(cfg.Outputs))}
}

// CheckSystemDeps evaluates the external tools the configuration drives.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	if len(cfg.Outputs) > 0 {
		requirements = append(requirements, deps.Requirement{
			Name:        "Image tool",
			Command:     cfg.Tools.Image.Command,
			Description: "Required for every output kind",
		})
	}
	requirements = append(requirements, deps.Requirement{
		Name:        "Authoring tool",
		Command:     cfg.Tools.Authoring.Command,
		Description: "Renders card images; without it images are expected in the rendered folder",
		Optional:    strings.TrimSpace(cfg.Tools.Authoring.Command) == "",
	})
	return deps.CheckBinaries(requirements)
}

// CheckWebhook verifies the chat webhook URL resolves to a live webhook.
// A GET does not post a message.
func CheckWebhook(ctx context.Context, url string) Result {
	const name = "Webhook"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeHTTPError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusNotFound:
		return Result{Name: name, Detail: "webhook rejected (invalid or deleted)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

func summarizeHTTPError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (webhook unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (webhook unreachable)"
	}
	return err.Error()
}
