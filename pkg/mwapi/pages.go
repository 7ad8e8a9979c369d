package mwapi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"depictor/pkg/model"
)

// MediaWiki namespace numbers.
const (
	NamespaceFile     = 6
	NamespaceCategory = 14
)

// CategoryMembers lists the direct members (subcategories and files) of
// a category, following cmcontinue pagination.
func (c *Client) CategoryMembers(ctx context.Context, categoryTitle string) ([]model.PageInfo, error) {
	var members []model.PageInfo
	cont := ""

	for {
		u, err := url.Parse(c.CommonsAPI)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint: %w", err)
		}

		q := u.Query()
		q.Add("action", "query")
		q.Add("list", "categorymembers")
		q.Add("cmtitle", categoryTitle)
		q.Add("cmtype", "subcat|file")
		q.Add("cmlimit", "500")
		q.Add("format", "json")
		if cont != "" {
			q.Add("cmcontinue", cont)
		}
		u.RawQuery = q.Encode()

		body, err := c.request.Get(ctx, u.String(), "")
		if err != nil {
			return nil, err
		}
		if apiErr := checkAPIError(body); apiErr != nil {
			return nil, apiErr
		}

		var result struct {
			Continue struct {
				CMContinue string `json:"cmcontinue"`
			} `json:"continue"`
			Query struct {
				CategoryMembers []model.PageInfo `json:"categorymembers"`
			} `json:"query"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to decode category members: %w", err)
		}

		members = append(members, result.Query.CategoryMembers...)

		cont = result.Continue.CMContinue
		if cont == "" {
			break
		}
	}

	return members, nil
}

// ThumbnailURL returns a thumbnail URL for a file page, or "" when the
// wiki has none to offer.
func (c *Client) ThumbnailURL(ctx context.Context, fileTitle string, maxWidth, maxHeight int) (string, error) {
	u, err := url.Parse(c.CommonsAPI)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}

	q := u.Query()
	q.Add("action", "query")
	q.Add("titles", fileTitle)
	q.Add("prop", "imageinfo")
	q.Add("iiprop", "url")
	q.Add("iiurlwidth", strconv.Itoa(maxWidth))
	q.Add("iiurlheight", strconv.Itoa(maxHeight))
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "")
	if err != nil {
		return "", err
	}
	if apiErr := checkAPIError(body); apiErr != nil {
		return "", apiErr
	}

	var result struct {
		Query struct {
			Pages map[string]struct {
				ImageInfo []struct {
					ThumbURL string `json:"thumburl"`
					URL      string `json:"url"`
				} `json:"imageinfo"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode imageinfo: %w", err)
	}

	for _, page := range result.Query.Pages {
		if len(page.ImageInfo) > 0 {
			info := page.ImageInfo[0]
			if info.ThumbURL != "" {
				return info.ThumbURL, nil
			}
			return info.URL, nil
		}
	}

	return "", nil
}

// GetLabels fetches English labels for multiple items in 50-ID chunks.
// Returns a map of ID -> label; IDs without an English label are absent.
// TODO: don't hardcode to en once the product grows a language setting.
func (c *Client) GetLabels(ctx context.Context, ids []string) (map[string]string, error) {
	labels := make(map[string]string)
	if len(ids) == 0 {
		return labels, nil
	}

	// Sort IDs to ensure consistent caching, as map iteration order is random.
	// Work on a copy to avoid side effects.
	sortedIDs := make([]string, len(ids))
	copy(sortedIDs, ids)
	sort.Strings(sortedIDs)

	// Wikidata allows max 50 IDs per request
	const batchSize = 50
	for i := 0; i < len(sortedIDs); i += batchSize {
		end := i + batchSize
		if end > len(sortedIDs) {
			end = len(sortedIDs)
		}
		chunk := sortedIDs[i:end]
		idStr := strings.Join(chunk, "|")

		// Create stable cache key
		hash := md5.Sum([]byte(idStr))
		cacheKey := fmt.Sprintf("labels_%s", hex.EncodeToString(hash[:]))

		u, err := url.Parse(c.WikidataAPI)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint: %w", err)
		}
		q := u.Query()
		q.Add("action", "wbgetentities")
		q.Add("ids", idStr)
		q.Add("props", "labels")
		q.Add("languages", "en")
		q.Add("format", "json")
		u.RawQuery = q.Encode()

		body, err := c.request.Get(ctx, u.String(), cacheKey)
		if err != nil {
			return nil, err
		}
		if apiErr := checkAPIError(body); apiErr != nil {
			return nil, apiErr
		}

		var result struct {
			Entities map[string]struct {
				Labels map[string]struct {
					Value string `json:"value"`
				} `json:"labels"`
			} `json:"entities"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to decode labels: %w", err)
		}

		for id, ent := range result.Entities {
			if lbl, ok := ent.Labels["en"]; ok {
				labels[id] = lbl.Value
			}
		}
	}

	return labels, nil
}

// GetLabel fetches the English label for one item, "" when absent.
func (c *Client) GetLabel(ctx context.Context, id string) (string, error) {
	labels, err := c.GetLabels(ctx, []string{id})
	if err != nil {
		return "", err
	}
	return labels[id], nil
}
