// Package videoid canonicalizes source URLs so history entries for the same
// video line up regardless of which alias or tracking parameters were used.
package videoid

import (
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ErrNotYouTube is returned by ExtractYouTubeVideoID for URLs it cannot read an ID from.
var ErrNotYouTube = errors.New("videoid: not a youtube url or video id not found")

// Host aliases that are the same site from a user's point of view.
var canonicalDomainByHost = map[string]string{
	"youtube.com":       "youtube.com",
	"www.youtube.com":   "youtube.com",
	"m.youtube.com":     "youtube.com",
	"music.youtube.com": "youtube.com",
	"youtu.be":          "youtube.com",

	"x.com":              "x.com",
	"www.x.com":          "x.com",
	"twitter.com":        "x.com",
	"www.twitter.com":    "x.com",
	"mobile.twitter.com": "x.com",

	"twitch.tv":     "twitch.tv",
	"www.twitch.tv": "twitch.tv",
	"m.twitch.tv":   "twitch.tv",

	"kick.com":     "kick.com",
	"www.kick.com": "kick.com",

	"vimeo.com":        "vimeo.com",
	"www.vimeo.com":    "vimeo.com",
	"player.vimeo.com": "vimeo.com",
}

// Source is a parsed, canonicalized download URL.
type Source struct {
	// URL is the normalized form, suitable for display and deduplication.
	URL string
	// Domain is the canonical site, e.g. "youtube.com" for youtu.be links.
	Domain string
	// VideoID is the site's own identifier when it can be read from the URL.
	VideoID string
}

// Key returns a deterministic UUIDv5 for the video, or uuid.Nil when the
// site identifier is unknown.
func (s Source) Key() uuid.UUID {
	if s.VideoID == "" || s.Domain == "" {
		return uuid.Nil
	}
	return VideoUUID(s.Domain, s.VideoID)
}

// Identify normalizes raw and extracts what it can about the video.
func Identify(raw string) (Source, error) {
	normalized, domain, err := NormalizeSourceURL(raw)
	if err != nil {
		return Source{}, err
	}
	src := Source{URL: normalized, Domain: domain}
	if domain == "youtube.com" {
		if id, err := ExtractYouTubeVideoID(normalized); err == nil {
			src.VideoID = id
		}
	}
	return src, nil
}

// ResolveCanonicalDomain returns the canonical domain for host (no port).
func ResolveCanonicalDomain(host string) string {
	h := normalizeHost(host)
	if h == "" {
		return ""
	}
	if c, ok := canonicalDomainByHost[h]; ok {
		return c
	}
	return h
}

// NamespaceUUIDForDomain returns a deterministic UUIDv5 namespace for a domain.
func NamespaceUUIDForDomain(domain string) uuid.UUID {
	d := strings.TrimSuffix(strings.TrimSpace(strings.ToLower(domain)), ".")
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(d))
}

// VideoUUID returns a deterministic UUIDv5 for a (domain, videoID) pair.
// The name is exactly the video ID; the domain is scoped by the namespace.
func VideoUUID(domain string, videoID string) uuid.UUID {
	return uuid.NewSHA1(NamespaceUUIDForDomain(domain), []byte(strings.TrimSpace(videoID)))
}

// NormalizeSourceURL normalizes a URL for stable history records. It returns
// the normalized URL and the canonical domain.
//
// Known sites:
//   - youtube.com: https://youtube.com/watch?v={id} (keeps only v=)
//   - twitch.tv, x.com, kick.com, vimeo.com: all query params stripped
//
// Other hosts keep their query; fragments and userinfo are always dropped.
func NormalizeSourceURL(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", errors.New("videoid: missing url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return "", "", err
		}
	}
	if u.Host == "" {
		return "", "", errors.New("videoid: url has no host")
	}

	u.Fragment = ""
	u.User = nil

	canon := ResolveCanonicalDomain(u.Host)

	// youtu.be carries the ID in the path, so read it before the host changes.
	youtubeID := ""
	if canon == "youtube.com" {
		youtubeID, _ = ExtractYouTubeVideoID(u.String())
	}

	u.Host = canon
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Path = trimTrailingSlash(u.Path)

	switch canon {
	case "youtube.com":
		if youtubeID != "" {
			u.Path = "/watch"
			u.RawQuery = "v=" + url.QueryEscape(youtubeID)
		}
	case "twitch.tv", "x.com", "kick.com", "vimeo.com":
		u.RawQuery = ""
	}

	return u.String(), canon, nil
}

// ExtractYouTubeVideoID reads the video ID from watch, short-link, embed,
// shorts and live URLs.
func ExtractYouTubeVideoID(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", ErrNotYouTube
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	host := normalizeHost(u.Host)
	if host == "youtu.be" {
		if id := firstPathSegment(u.Path); id != "" {
			return id, nil
		}
		return "", ErrNotYouTube
	}
	if ResolveCanonicalDomain(host) != "youtube.com" {
		return "", ErrNotYouTube
	}

	if q := strings.TrimSpace(u.Query().Get("v")); q != "" {
		return q, nil
	}
	for _, prefix := range []string{"/embed/", "/v/", "/shorts/", "/live/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			if id := firstPathSegment(rest); id != "" {
				return id, nil
			}
		}
	}
	return "", ErrNotYouTube
}

func normalizeHost(hostport string) string {
	h := strings.TrimSpace(strings.ToLower(hostport))
	if h == "" {
		return ""
	}
	if strings.Contains(h, ":") {
		if parsed, err := url.Parse("//" + h); err == nil && parsed.Hostname() != "" {
			h = parsed.Hostname()
		}
	}
	return strings.TrimSuffix(h, ".")
}

func trimTrailingSlash(p string) string {
	if p == "" || p == "/" {
		return p
	}
	return strings.TrimRight(p, "/")
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(strings.TrimSpace(p), "/")
	seg, _, _ := strings.Cut(p, "/")
	return strings.TrimSpace(seg)
}
