package action

import (
	"context"
	"slices"
	"strings"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// AddTags adds tags to every issue.
type AddTags struct {
	Tags []string
}

func (AddTags) Key() string                { return KeyAddTags }
func (AddTags) sealed()                    {}
func (AddTags) Supports(*model.Issue) bool { return true }

func (a AddTags) Execute(c *Context) (bool, error) {
	next := slices.Clone(c.Issue.Tags)
	for _, t := range a.Tags {
		if !slices.Contains(next, t) {
			next = append(next, t)
		}
	}
	return setTags(c, next), nil
}

// RemoveTags removes tags from every issue.
type RemoveTags struct {
	Tags []string
}

func (RemoveTags) Key() string                { return KeyRemoveTags }
func (RemoveTags) sealed()                    {}
func (RemoveTags) Supports(*model.Issue) bool { return true }

func (r RemoveTags) Execute(c *Context) (bool, error) {
	next := slices.DeleteFunc(slices.Clone(c.Issue.Tags), func(t string) bool {
		return slices.Contains(r.Tags, t)
	})
	return setTags(c, next), nil
}

func setTags(c *Context, next []string) bool {
	if slices.Equal(c.Issue.Tags, next) {
		return false
	}
	c.Diffs.Set("tags", strings.Join(c.Issue.Tags, " "), strings.Join(next, " "))
	if len(next) == 0 {
		next = nil
	}
	c.Issue.Tags = next
	c.Issue.UpdatedAt = c.Change.Date
	return true
}

// TagsVerifier reads the comma separated "tags" parameter of add_tags or,
// when Remove is set, remove_tags. Tags are lower-cased.
type TagsVerifier struct {
	Remove bool
}

func (v TagsVerifier) Key() string {
	if v.Remove {
		return KeyRemoveTags
	}
	return KeyAddTags
}

func (v TagsVerifier) Verify(_ context.Context, params Params, _ []*model.Issue, _ *model.Caller) (Action, error) {
	raw, err := params.required("tags")
	if err != nil {
		return nil, err
	}
	tags, err := parseTags(raw)
	if err != nil {
		return nil, err
	}
	if v.Remove {
		return RemoveTags{Tags: tags}, nil
	}
	return AddTags{Tags: tags}, nil
}

func parseTags(raw string) ([]string, error) {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || slices.Contains(tags, t) {
			continue
		}
		if err := model.ValidateTag(t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	if len(tags) == 0 {
		return nil, model.Invalid("tags", "missing parameter: 'tags'")
	}
	return tags, nil
}
