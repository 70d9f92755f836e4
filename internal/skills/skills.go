// Package skills loads workspace skills: markdown playbooks under
// <workspace>/skills/<name>/SKILL.md with YAML frontmatter. Always-on
// skills are folded into the system prompt in full; the rest are listed
// in an index the agent can follow with its read-file tool.
package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SkillFilename is the expected filename for skill definitions.
	SkillFilename = "SKILL.md"

	frontmatterDelimiter = "---"
)

// Skill is one parsed skill definition.
type Skill struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed).
	Name string `yaml:"name"`

	// Description explains what the skill does and when to use it.
	Description string `yaml:"description"`

	// Always folds the full content into every system prompt.
	Always bool `yaml:"always"`

	// Content is the markdown body below the frontmatter.
	Content string `yaml:"-"`

	// Path is the directory the skill was loaded from.
	Path string `yaml:"-"`
}

// FilePath returns the SKILL.md location for this skill.
func (s *Skill) FilePath() string {
	return filepath.Join(s.Path, SkillFilename)
}

// ParseSkillFile parses a SKILL.md file into a Skill.
func ParseSkillFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseSkill(data, filepath.Dir(path))
}

// ParseSkill parses SKILL.md content. skillPath is the directory the
// content came from.
func ParseSkill(data []byte, skillPath string) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("split frontmatter: %w", err)
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if err := validateSkill(&skill); err != nil {
		return nil, err
	}

	skill.Content = strings.TrimSpace(string(body))
	skill.Path = skillPath
	return &skill, nil
}

// splitFrontmatter separates YAML frontmatter from the markdown body.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			foundClosing = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClosing {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}

	return []byte(strings.Join(frontmatterLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}

func validateSkill(s *Skill) error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	for _, r := range s.Name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("skill name must be lowercase alphanumeric with hyphens: got %q", s.Name)
		}
	}
	if s.Description == "" {
		return fmt.Errorf("skill description is required")
	}
	return nil
}
