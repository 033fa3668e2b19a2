package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// acceptedManifests lists the manifest media types whose digest matches
// what containerd resolves when pulling by tag
const acceptedManifests = "application/vnd.oci.image.index.v1+json, " +
	"application/vnd.docker.distribution.manifest.list.v2+json, " +
	"application/vnd.oci.image.manifest.v1+json, " +
	"application/vnd.docker.distribution.manifest.v2+json"

// Client looks up published manifest digests from a v2 registry without
// pulling. The collector uses it to decide whether a component is already
// current before spending a full image pull.
type Client struct {
	http         *resty.Client
	endpoint     string
	authEndpoint string
	service      string
}

// Options configures a registry client
type Options struct {
	// Endpoint is the registry base URL (e.g. https://registry-1.docker.io)
	Endpoint string

	// AuthEndpoint issues anonymous pull tokens (e.g. https://auth.docker.io).
	// Empty disables token auth, for registries that allow anonymous reads.
	AuthEndpoint string

	// Service is the token service name (e.g. registry.docker.io)
	Service string

	// Timeout bounds each registry request
	Timeout time.Duration
}

// NewClient creates a registry client
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		http:         resty.New().SetTimeout(timeout),
		endpoint:     strings.TrimSuffix(opts.Endpoint, "/"),
		authEndpoint: strings.TrimSuffix(opts.AuthEndpoint, "/"),
		service:      opts.Service,
	}
}

// ManifestDigest resolves the content digest the registry currently
// publishes for an image reference. Tags are not content-stable, so this
// is the value compared against the running digest.
func (c *Client) ManifestDigest(ctx context.Context, imageRef string) (string, error) {
	repo, tag, err := splitRef(imageRef)
	if err != nil {
		return "", err
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", acceptedManifests)

	if c.authEndpoint != "" {
		token, err := c.token(ctx, repo)
		if err != nil {
			return "", err
		}
		req.SetAuthToken(token)
	}

	resp, err := req.Head(fmt.Sprintf("%s/v2/%s/manifests/%s", c.endpoint, repo, tag))
	if err != nil {
		return "", fmt.Errorf("manifest lookup for %s failed: %w", imageRef, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("manifest lookup for %s failed: %s", imageRef, resp.Status())
	}

	digest := resp.Header().Get("Docker-Content-Digest")
	if digest == "" {
		return "", fmt.Errorf("registry returned no digest for %s", imageRef)
	}

	return digest, nil
}

type tokenResponse struct {
	Token string `json:"token"`
}

// token fetches an anonymous pull token for a repository
func (c *Client) token(ctx context.Context, repo string) (string, error) {
	var body tokenResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"service": c.service,
			"scope":   fmt.Sprintf("repository:%s:pull", repo),
		}).
		SetResult(&body).
		Get(c.authEndpoint + "/token")
	if err != nil {
		return "", fmt.Errorf("token request for %s failed: %w", repo, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token request for %s failed: %s", repo, resp.Status())
	}
	if body.Token == "" {
		return "", fmt.Errorf("token service returned no token for %s", repo)
	}

	return body.Token, nil
}

// splitRef breaks an image reference into repository and manifest
// reference (tag, or digest for pinned refs; the v2 API accepts either
// after /manifests/). The registry host prefix, if present, is dropped;
// the endpoint decides which registry is queried.
func splitRef(imageRef string) (repo, reference string, err error) {
	ref := imageRef
	if i := strings.Index(ref, "/"); i > 0 && strings.ContainsAny(ref[:i], ".:") {
		ref = ref[i+1:]
	}

	// A digest pin wins over any tag in front of it
	var digest string
	if i := strings.Index(ref, "@"); i >= 0 {
		ref, digest = ref[:i], ref[i+1:]
	}

	repo, reference = ref, "latest"
	if i := strings.LastIndex(ref, ":"); i >= 0 {
		repo, reference = ref[:i], ref[i+1:]
	}
	if digest != "" {
		reference = digest
	}

	if repo == "" || reference == "" {
		return "", "", fmt.Errorf("invalid image reference %q", imageRef)
	}
	if !strings.Contains(repo, "/") {
		repo = "library/" + repo
	}

	return repo, reference, nil
}
