package version

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/litescript/ls-indexer/internal/webclient"
)

// Release and tag listings, newest first.
var (
	ReleasesURL = "https://api.github.com/repos/litescript/ls-indexer/releases/latest"
	TagsURL     = "https://api.github.com/repos/litescript/ls-indexer/tags"
)

// UpdateInfo is the outcome of an update check. Error is set when GitHub
// could not be asked; the other fields are then best effort.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	UpdateAvailable bool
	Error           error
}

// CheckForUpdate asks GitHub for the latest release, falling back to tags
// for repositories without releases.
func CheckForUpdate(ctx context.Context, exec webclient.Executor) UpdateInfo {
	info := UpdateInfo{CurrentVersion: Version, LatestVersion: Version}

	tag, err := latestTag(ctx, exec)
	if err != nil {
		info.Error = fmt.Errorf("update check: %w", err)
		return info
	}
	if tag != "" {
		info.LatestVersion = normalizeVersion(tag)
		info.UpdateAvailable = isNewerVersion(info.LatestVersion, Version)
	}
	return info
}

func latestTag(ctx context.Context, exec webclient.Executor) (string, error) {
	lookups := []struct{ url, path string }{
		{ReleasesURL, "tag_name"},
		{TagsURL, "0.name"},
	}

	var last error
	for _, l := range lookups {
		resp, err := exec.Execute(ctx, webclient.Request{
			Method:  http.MethodGet,
			URL:     l.url,
			Headers: map[string]string{"Accept": "application/vnd.github+json"},
		})
		switch {
		case err != nil:
			return "", err
		case resp.StatusCode != http.StatusOK:
			last = webclient.NewStatusError(resp)
			continue
		}
		return gjson.GetBytes(resp.Body, l.path).String(), nil
	}
	return "", last
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion compares dotted versions field by field; a longer version
// with an equal prefix is newer. Non-numeric fields count as zero.
func isNewerVersion(latest, current string) bool {
	a, b := strings.Split(latest, "."), strings.Split(current, ".")
	for i := range min(len(a), len(b)) {
		x, _ := strconv.Atoi(a[i])
		y, _ := strconv.Atoi(b[i])
		if x != y {
			return x > y
		}
	}
	return len(a) > len(b)
}

// InstallCommand is shown next to an available update.
func InstallCommand() string {
	return "go install github.com/litescript/ls-indexer/cmd/ls-indexer@latest"
}
