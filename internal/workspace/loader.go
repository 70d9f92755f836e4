package workspace

import (
	"os"
	"path/filepath"
)

// BootstrapFileNames lists the workspace files folded into the system
// prompt, in prompt order.
var BootstrapFileNames = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// File is one loaded workspace file.
type File struct {
	Name    string
	Content string
}

// LoadBootstrapFiles reads the bootstrap files present under root, in
// canonical order. Missing files are skipped; other read errors abort.
func LoadBootstrapFiles(root string) ([]File, error) {
	var files []File
	for _, name := range BootstrapFileNames {
		content, err := readOptionalFile(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		if content == "" {
			continue
		}
		files = append(files, File{Name: name, Content: content})
	}
	return files, nil
}

// MemoryFilePath returns the long-term memory file under root.
func MemoryFilePath(root string) string {
	return filepath.Join(root, "memory", "MEMORY.md")
}

// LoadMemory reads the long-term memory file, returning "" when it does
// not exist yet.
func LoadMemory(root string) (string, error) {
	return readOptionalFile(MemoryFilePath(root))
}

func readOptionalFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
