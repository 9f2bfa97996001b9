// Package version compares the running build against the latest release.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// ReleasesURL is the endpoint for the latest published release.
	ReleasesURL = "https://api.github.com/repos/romreviewer/DOWNitUP/releases/latest"
	// RequestTimeout bounds a single update check.
	RequestTimeout = 10 * time.Second
)

// UpdateInfo describes the result of an update check.
type UpdateInfo struct {
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	UpdateAvailable bool
}

type release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Checker queries a releases endpoint.
type Checker struct {
	URL    string
	Client *http.Client
}

func NewChecker() *Checker {
	return &Checker{URL: ReleasesURL, Client: &http.Client{Timeout: RequestTimeout}}
}

// Check reports whether a release newer than current exists. Development
// builds are never checked and yield nil, nil.
func (c *Checker) Check(ctx context.Context, current string) (*UpdateInfo, error) {
	if current == "dev" || current == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "DOWNitUP-Update-Checker")
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update check failed: %s", resp.Status)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}

	return &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   rel.TagName,
		ReleaseURL:      rel.HTMLURL,
		UpdateAvailable: IsNewer(rel.TagName, current),
	}, nil
}

// IsNewer reports whether latest > current, comparing MAJOR.MINOR.PATCH and
// ignoring a leading "v" and any pre-release suffix.
func IsNewer(latest, current string) bool {
	l, c := parseVersion(latest), parseVersion(current)
	for i := range l {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return false
}

func parseVersion(v string) [3]int {
	var parts [3]int
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	for i, seg := range strings.SplitN(v, ".", 3) {
		if idx := strings.IndexAny(seg, "-+"); idx != -1 {
			seg = seg[:idx]
		}
		parts[i], _ = strconv.Atoi(seg)
	}
	return parts
}
