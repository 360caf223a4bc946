package filesys

// OpenFileInput is the input for the open_file tool.
type OpenFileInput struct {
	Path string `json:"path" jsonschema:"path of the file to read"`
}

// WriteFileInput is the input for the write_file tool.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"path of the file to write"`
	Content string `json:"content" jsonschema:"text to write"`
	Append  bool   `json:"append,omitempty" jsonschema:"append instead of replacing the file"`
}

// DeleteFileInput is the input for the delete_file tool.
type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"path of the file to delete"`
}

// RenameFileInput is the input for the rename_file tool.
type RenameFileInput struct {
	Path    string `json:"path" jsonschema:"current path of the file"`
	NewName string `json:"new_name" jsonschema:"new path or file name; a bare name stays in the same directory"`
}

// CreateDirInput is the input for the create_dir tool.
type CreateDirInput struct {
	Path    string `json:"path" jsonschema:"path of the directory to create"`
	Parents bool   `json:"parents,omitempty" jsonschema:"create missing parent directories"`
}

// FileOutput is the result of every file tool.
type FileOutput struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
}
