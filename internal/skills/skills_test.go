package skills

import (
	"strings"
	"testing"
)

func TestParseSkill(t *testing.T) {
	data := []byte(`---
name: github
description: Work with GitHub repos via the gh CLI
always: true
---
# GitHub

Use gh for issues and PRs.
`)

	skill, err := ParseSkill(data, "/ws/skills/github")
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}
	if skill.Name != "github" {
		t.Errorf("Name = %q, want %q", skill.Name, "github")
	}
	if skill.Description != "Work with GitHub repos via the gh CLI" {
		t.Errorf("Description = %q", skill.Description)
	}
	if !skill.Always {
		t.Error("Always = false, want true")
	}
	if !strings.HasPrefix(skill.Content, "# GitHub") {
		t.Errorf("Content = %q, want markdown body", skill.Content)
	}
	if skill.Path != "/ws/skills/github" {
		t.Errorf("Path = %q", skill.Path)
	}
	if got := skill.FilePath(); !strings.HasSuffix(got, SkillFilename) {
		t.Errorf("FilePath = %q, want SKILL.md suffix", got)
	}
}

func TestParseSkillDefaultsAlwaysOff(t *testing.T) {
	data := []byte("---\nname: weather\ndescription: Check the weather\n---\nbody")
	skill, err := ParseSkill(data, "")
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}
	if skill.Always {
		t.Error("Always should default to false")
	}
}

func TestParseSkillErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty file"},
		{"no opening delimiter", "name: x\n", "missing opening frontmatter delimiter"},
		{"no closing delimiter", "---\nname: x\n", "missing closing frontmatter delimiter"},
		{"missing name", "---\ndescription: d\n---\nbody", "name is required"},
		{"missing description", "---\nname: x\n---\nbody", "description is required"},
		{"bad name", "---\nname: Bad Name\ndescription: d\n---\n", "lowercase alphanumeric"},
		{"bad yaml", "---\nname: [\n---\n", "parse frontmatter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSkill([]byte(tt.data), "")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}
