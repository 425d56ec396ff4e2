package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/grafov/m3u8"
)

type segment struct {
	url    *url.URL
	offset int64
	limit  int64
}

func resolve(base *url.URL, ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("segment uri %q: %w", ref, common.ErrInvalidArgument)
	}
	return base.ResolveReference(r), nil
}

// loadMedia returns the media playlist at u, following one level of master
// playlist (highest bandwidth variant).
func (c *Client) loadMedia(ctx context.Context, u *url.URL, depth int) (*m3u8.MediaPlaylist, *url.URL, error) {
	resp, err := c.get(ctx, u, nil)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	p, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("decode playlist %s: %w", common.RedactURL(u.String()), err)
	}

	switch listType {
	case m3u8.MEDIA:
		return p.(*m3u8.MediaPlaylist), u, nil
	case m3u8.MASTER:
		if depth > 0 {
			return nil, nil, fmt.Errorf("nested master playlist: %w", common.ErrInvalidArgument)
		}
		var best *m3u8.Variant
		for _, v := range p.(*m3u8.MasterPlaylist).Variants {
			if v != nil && (best == nil || v.Bandwidth > best.Bandwidth) {
				best = v
			}
		}
		if best == nil {
			return nil, nil, fmt.Errorf("master playlist without variants: %w", common.ErrInvalidArgument)
		}
		next, err := resolve(u, best.URI)
		if err != nil {
			return nil, nil, err
		}
		return c.loadMedia(ctx, next, depth+1)
	default:
		return nil, nil, fmt.Errorf("unknown playlist type: %w", common.ErrInvalidArgument)
	}
}

func encrypted(k *m3u8.Key) bool {
	return k != nil && k.Method != "" && !strings.EqualFold(k.Method, "NONE")
}

func (c *Client) fetchHLS(ctx context.Context, u *url.URL, dst io.Writer, onBytes ProgressFunc) (int64, error) {
	media, base, err := c.loadMedia(ctx, u, 0)
	if err != nil {
		return 0, err
	}
	if encrypted(media.Key) {
		return 0, fmt.Errorf("encrypted hls: %w", common.ErrInvalidArgument)
	}

	var parts []segment
	if media.Map != nil && media.Map.URI != "" {
		mu, err := resolve(base, media.Map.URI)
		if err != nil {
			return 0, err
		}
		parts = append(parts, segment{url: mu, offset: media.Map.Offset, limit: media.Map.Limit})
	}
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		if encrypted(seg.Key) {
			return 0, fmt.Errorf("encrypted hls segment: %w", common.ErrInvalidArgument)
		}
		su, err := resolve(base, seg.URI)
		if err != nil {
			return 0, err
		}
		parts = append(parts, segment{url: su, offset: seg.Offset, limit: seg.Limit})
	}
	if len(parts) == 0 {
		return 0, fmt.Errorf("empty playlist: %w", common.ErrInvalidArgument)
	}

	// The total is only known when every part carries a byte range.
	total := int64(0)
	for _, p := range parts {
		if p.limit <= 0 {
			total = -1
			break
		}
		total += p.limit
	}

	pw := &progressWriter{w: dst, total: total, fn: onBytes}
	for _, p := range parts {
		if err := c.fetchSegment(ctx, p, pw); err != nil {
			return pw.written, err
		}
	}
	return pw.written, nil
}

func (c *Client) fetchSegment(ctx context.Context, s segment, pw *progressWriter) error {
	var h http.Header
	if s.limit > 0 {
		h = http.Header{}
		h.Set("Range", fmt.Sprintf("bytes=%d-%d", s.offset, s.offset+s.limit-1))
	}

	resp, err := c.get(ctx, s.url, h)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(pw, resp.Body); err != nil {
		if pw.err != nil {
			return fmt.Errorf("write: %w", pw.err)
		}
		return transient(ctx, s.url, err)
	}
	return nil
}
