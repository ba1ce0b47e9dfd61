package handlers

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/mesbot/dispatch/internal/messenger"
)

// mediaLinkPattern detects Facebook/fb.watch/m.facebook.com, Instagram
// (post/reel/tv/reels/share paths), and TikTok (incl. vt./vm. short
// links), case-insensitive, per spec.md §6. Grounded on
// internal/media's hostname-sniffing idiom (extractSource), expressed
// here as a single pattern since detection, not per-source extraction,
// is all the handler needs.
var mediaLinkPattern = regexp.MustCompile(`(?i)(facebook\.com|fb\.watch|m\.facebook\.com|instagram\.com/(p|reel|tv|reels|share)/|instagr\.am/(p|reel|tv|reels|share)/|tiktok\.com|vt\.tiktok\.com|vm\.tiktok\.com)`)

// MediaFetcher resolves a detected link to one or more media blobs to
// send back. The concrete implementation is an external collaborator
// (spec.md §1: "the external... third-party media-hosting services"
// are out of scope) — callers inject a fetcher that talks to whatever
// scraping/download service is configured.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]MediaBlob, error)
}

// MediaBlob is a single piece of fetched media ready to send.
type MediaBlob struct {
	Caption string
}

// MediaLinkHandler detects Facebook/Instagram/TikTok links and sends
// the fetched result via the batch-media ("*Direct") path so a
// carousel posts atomically (spec.md §4.1/§4.5). Errors are silent —
// a failed fetch simply produces no reply.
type MediaLinkHandler struct {
	Fetcher MediaFetcher
	Logger  *slog.Logger
}

func (h *MediaLinkHandler) Name() string { return "media-link" }

func (h *MediaLinkHandler) Match(kind messenger.EventKind, msg *messenger.MessagePayload) bool {
	if h.Fetcher == nil {
		return false
	}
	if kind != messenger.KindMessage && kind != messenger.KindE2EEMessage {
		return false
	}
	if msg.Text == nil {
		return false
	}
	return mediaLinkPattern.MatchString(*msg.Text)
}

func (h *MediaLinkHandler) Handle(ctx context.Context, kind messenger.EventKind, msg *messenger.MessagePayload, adapter *messenger.Adapter) error {
	url := mediaLinkPattern.FindString(*msg.Text)
	blobs, err := h.Fetcher.Fetch(ctx, url)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("media link fetch failed", "url", url, "error", err)
		}
		return nil
	}
	for _, blob := range blobs {
		if _, err := adapter.SendMessageDirect(ctx, msg.ThreadID, blob.Caption, messenger.SendOptions{}); err != nil {
			if h.Logger != nil {
				h.Logger.Debug("media link send failed", "error", err)
			}
		}
	}
	return nil
}
