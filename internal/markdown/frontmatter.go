package markdown

import (
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "github.com/randalmurphal/famplan/internal/errors"
)

const fence = "---"

// Owner is the member a document belongs to, read from its front-matter.
type Owner struct {
	Slug     string `yaml:"member" json:"slug"`
	Name     string `yaml:"name" json:"name"`
	Color    string `yaml:"color" json:"color,omitempty"`
	Timezone string `yaml:"timezone" json:"timezone,omitempty"`
}

// splitFrontMatter separates the leading front-matter block from the body.
// It returns the decoded owner and the index of the first body line.
func splitFrontMatter(path string, lines []string) (Owner, int, error) {
	var owner Owner
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != fence {
		return owner, 0, ferrors.ErrDocumentInvalid(path, "missing front-matter block")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t") == fence {
			end = i
			break
		}
	}
	if end < 0 {
		return owner, 0, ferrors.ErrDocumentInvalid(path, "front-matter block is not closed with ---")
	}

	raw := strings.Join(lines[1:end], "\n")
	if err := yaml.Unmarshal([]byte(raw), &owner); err != nil {
		return owner, 0, ferrors.ErrDocumentInvalid(path, "front-matter is not valid YAML").WithCause(err)
	}

	owner.Slug = strings.TrimSpace(owner.Slug)
	if owner.Slug == "" {
		return owner, 0, ferrors.ErrDocumentInvalid(path, "front-matter has no 'member' field")
	}
	owner.Name = strings.TrimSpace(owner.Name)
	if owner.Name == "" {
		owner.Name = owner.Slug
	}
	owner.Color = strings.TrimSpace(owner.Color)
	owner.Timezone = strings.TrimSpace(owner.Timezone)

	return owner, end + 1, nil
}
