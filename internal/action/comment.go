package action

import (
	"context"

	"github.com/alfredjeanlab/tracker/internal/model"
)

// Comment adds a comment to issues changed by the other actions of a bulk
// change. It never marks an issue as changed on its own.
type Comment struct {
	Text string
}

func (Comment) Key() string                { return KeyComment }
func (Comment) sealed()                    {}
func (Comment) Supports(*model.Issue) bool { return true }

func (a Comment) Execute(c *Context) (bool, error) {
	c.Comments = append(c.Comments, a.Text)
	return true, nil
}

// CommentVerifier reads "comment".
type CommentVerifier struct{}

func (CommentVerifier) Key() string { return KeyComment }

func (CommentVerifier) Verify(_ context.Context, params Params, _ []*model.Issue, _ *model.Caller) (Action, error) {
	text, err := params.required("comment")
	if err != nil {
		return nil, err
	}
	return Comment{Text: text}, nil
}
