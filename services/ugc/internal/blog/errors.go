package blog

import (
	"errors"
	"fmt"

	"github.com/example/blog-ugc/services/ugc/internal/resolver"
)

// ResolutionError reports an unknown post or a post outside any site.
type ResolutionError = resolver.ResolutionError

// ErrEmptyComment rejects a comment whose body is blank.
var ErrEmptyComment = errors.New("blog: comment body is empty")

// ServiceError wraps a storage failure during an operation.
type ServiceError struct {
	Op     string
	PostID string
	Err    error
}

func (e *ServiceError) Error() string {
	if e.PostID == "" {
		return fmt.Sprintf("blog %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("blog %s for post %s: %v", e.Op, e.PostID, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
