package mwapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"depictor/pkg/model"
)

// claimJSON mirrors the wbgetclaims wire shape for the pieces we read.
type claimJSON struct {
	ID       string `json:"id"`
	Rank     string `json:"rank"`
	Mainsnak struct {
		SnakType  string `json:"snaktype"`
		Property  string `json:"property"`
		DataValue struct {
			Value struct {
				ID string `json:"id"`
			} `json:"value"`
		} `json:"datavalue"`
	} `json:"mainsnak"`
}

func (cj claimJSON) toStatement() model.Statement {
	st := model.Statement{
		ID:       cj.ID,
		Property: cj.Mainsnak.Property,
		Rank:     model.Rank(cj.Rank),
	}
	// novalue/somevalue snaks carry no entity reference
	if cj.Mainsnak.SnakType == "value" {
		st.Value = cj.Mainsnak.DataValue.Value.ID
	}
	return st
}

// GetStatements fetches an entity's statements for one property.
// Side-effect-free; goes through the shared read queue.
func (c *Client) GetStatements(ctx context.Context, entityID, propertyID string) ([]model.Statement, error) {
	endpoint := c.endpointFor(entityID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	q := u.Query()
	q.Add("action", "wbgetclaims")
	q.Add("entity", entityID)
	q.Add("property", propertyID)
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	// Uncached: statement state must be fresh for classification
	body, err := c.request.Get(ctx, u.String(), "")
	if err != nil {
		return nil, err
	}
	if apiErr := checkAPIError(body); apiErr != nil {
		return nil, apiErr
	}

	var result struct {
		Claims map[string][]claimJSON `json:"claims"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode claims: %w", err)
	}

	claims := result.Claims[propertyID]
	statements := make([]model.Statement, 0, len(claims))
	for _, cj := range claims {
		statements = append(statements, cj.toStatement())
	}
	return statements, nil
}

// CreateStatement appends a new statement and returns its GUID.
func (c *Client) CreateStatement(ctx context.Context, cred *model.Credential, entityID, propertyID, valueID, summary string) (string, error) {
	endpoint := c.endpointFor(entityID)

	value, err := json.Marshal(map[string]string{
		"entity-type": "item",
		"id":          valueID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}

	form := url.Values{}
	form.Set("action", "wbcreateclaim")
	form.Set("entity", entityID)
	form.Set("property", propertyID)
	form.Set("snaktype", "value")
	form.Set("value", string(value))
	if summary != "" {
		form.Set("summary", summary)
	}

	body, err := c.postWithCSRF(ctx, cred, endpoint, form)
	if err != nil {
		return "", err
	}

	var result struct {
		Claim struct {
			ID string `json:"id"`
		} `json:"claim"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if result.Claim.ID == "" {
		return "", fmt.Errorf("create succeeded but no claim id returned")
	}

	c.Logger.Info("Statement created", "entity", entityID, "value", valueID, "guid", result.Claim.ID)
	return result.Claim.ID, nil
}

// RemoveStatement deletes a statement by GUID.
func (c *Client) RemoveStatement(ctx context.Context, cred *model.Credential, statementID, summary string) error {
	endpoint := c.endpointFor(entityOfGUID(statementID))

	form := url.Values{}
	form.Set("action", "wbremoveclaims")
	form.Set("claim", statementID)
	if summary != "" {
		form.Set("summary", summary)
	}

	if _, err := c.postWithCSRF(ctx, cred, endpoint, form); err != nil {
		return err
	}

	c.Logger.Info("Statement removed", "guid", statementID)
	return nil
}

// SetRank updates a statement's rank, preserving the rest of the claim.
func (c *Client) SetRank(ctx context.Context, cred *model.Credential, statementID string, rank model.Rank, summary string) error {
	endpoint := c.endpointFor(entityOfGUID(statementID))

	// Fetch the full claim JSON, patch the rank, write it back
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Add("action", "wbgetclaims")
	q.Add("claim", statementID)
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "")
	if err != nil {
		return err
	}
	if apiErr := checkAPIError(body); apiErr != nil {
		return apiErr
	}

	var result struct {
		Claims map[string][]json.RawMessage `json:"claims"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode claims: %w", err)
	}

	var raw json.RawMessage
	for _, claims := range result.Claims {
		if len(claims) > 0 {
			raw = claims[0]
			break
		}
	}
	if raw == nil {
		return fmt.Errorf("%w: %s", ErrStatementNotFound, statementID)
	}

	var claim map[string]interface{}
	if err := json.Unmarshal(raw, &claim); err != nil {
		return fmt.Errorf("failed to decode claim: %w", err)
	}
	claim["rank"] = string(rank)

	patched, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to encode claim: %w", err)
	}

	form := url.Values{}
	form.Set("action", "wbsetclaim")
	form.Set("claim", string(patched))
	if summary != "" {
		form.Set("summary", summary)
	}

	if _, err := c.postWithCSRF(ctx, cred, endpoint, form); err != nil {
		return err
	}

	c.Logger.Info("Statement rank set", "guid", statementID, "rank", rank)
	return nil
}

// LatestRevisionID returns the entity's current revision. Some write
// actions do not report the resulting revision, so callers fetch it
// right after a successful write.
func (c *Client) LatestRevisionID(ctx context.Context, entityID string) (int64, error) {
	endpoint := c.endpointFor(entityID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return 0, fmt.Errorf("invalid endpoint: %w", err)
	}

	q := u.Query()
	q.Add("action", "wbgetentities")
	q.Add("ids", entityID)
	q.Add("props", "info")
	q.Add("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "")
	if err != nil {
		return 0, err
	}
	if apiErr := checkAPIError(body); apiErr != nil {
		return 0, apiErr
	}

	var result struct {
		Entities map[string]struct {
			LastRevID int64  `json:"lastrevid"`
			Missing   string `json:"missing"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to decode entity info: %w", err)
	}

	ent, ok := result.Entities[entityID]
	if !ok || ent.LastRevID == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
	}
	return ent.LastRevID, nil
}

// entityOfGUID extracts the subject entity from a statement GUID
// ("M123$uuid" -> "M123").
func entityOfGUID(guid string) string {
	for i := 0; i < len(guid); i++ {
		if guid[i] == '$' {
			return guid[:i]
		}
	}
	return guid
}
