package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Module is a course module.
type Module struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ModuleItem references content to place in a module.
type ModuleItem struct {
	Type      string
	ContentID string
	Title     string
}

func modulesPath(courseID string) string {
	return fmt.Sprintf("/api/v1/courses/%s/modules", url.PathEscape(courseID))
}

// ListModules returns the course's modules (first 100).
func (c *Client) ListModules(ctx context.Context, courseID string) ([]Module, error) {
	var raw []struct {
		ID   any    `json:"id"`
		Name string `json:"name"`
	}
	if _, err := c.getJSON(ctx, modulesPath(courseID), url.Values{"per_page": {"100"}}, &raw); err != nil {
		return nil, err
	}
	out := make([]Module, 0, len(raw))
	for _, m := range raw {
		out = append(out, Module{ID: idString(m.ID), Name: m.Name})
	}
	return out, nil
}

// GetOrCreateModule finds a module by case-insensitive name or creates it.
func (c *Client) GetOrCreateModule(ctx context.Context, courseID, name string) (Module, error) {
	existing, err := c.ListModules(ctx, courseID)
	if err != nil {
		return Module{}, err
	}
	want := strings.ToLower(strings.TrimSpace(name))
	for _, m := range existing {
		if strings.ToLower(strings.TrimSpace(m.Name)) == want {
			return m, nil
		}
	}

	resp, err := c.postJSON(ctx, http.MethodPost, modulesPath(courseID), map[string]any{
		"module": map[string]string{"name": name},
	})
	if err != nil {
		return Module{}, err
	}
	if !resp.OK() {
		return Module{}, statusError("create module", resp)
	}
	var created struct {
		ID   any    `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return Module{}, fmt.Errorf("decode module: %w", err)
	}
	c.logger.Info().Str("course_id", courseID).Str("module", name).Msg("created module")
	return Module{ID: idString(created.ID), Name: created.Name}, nil
}

// AddToModule appends an item to a module, published and unindented.
func (c *Client) AddToModule(ctx context.Context, courseID, moduleID string, item ModuleItem) error {
	path := fmt.Sprintf("%s/%s/items", modulesPath(courseID), url.PathEscape(moduleID))
	resp, err := c.postForm(ctx, http.MethodPost, path, url.Values{
		"module_item[type]":       {item.Type},
		"module_item[content_id]": {item.ContentID},
		"module_item[title]":      {item.Title},
		"module_item[indent]":     {"0"},
		"module_item[published]":  {"true"},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError("add module item", resp)
	}
	return nil
}
