package tools

import "encoding/json"

// registerBuiltins registers every built-in tool. Read-class tools are
// cacheable and parallelizable; write-class tools carry previews for the
// policy prompt; run_terminal_cmd routes through the Execution Policy.
func (r *Registry) registerBuiltins() {
	r.registerReadOnlyTools()
	r.registerWriteTools()
	r.registerExecTools()
	r.registerMetaTools()
	r.registerTaskTools()
}

func (r *Registry) registerReadOnlyTools() {
	r.register(toolEntry{
		name: "read_file",
		description: `Read file contents with line numbers (cat -n format, 1-indexed). Use start_line/end_line for large files to read specific sections. Can only read files, not directories — use list_files for directories. Read multiple files in parallel when you need to understand several files at once.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to read"
				},
				"start_line": {
					"type": "integer",
					"description": "First line to read (1-indexed, default: 1)"
				},
				"end_line": {
					"type": "integer",
					"description": "Last line to read (1-indexed, inclusive)"
				},
				"max_lines": {
					"type": "integer",
					"description": "Deprecated: line budget for the result. Prefer max_tokens."
				},
				"max_tokens": {
					"type": "integer",
					"description": "Token budget for the result (default: registry-wide budget)"
				}
			},
			"required": ["path"]
		}`),
		class:     ClassRead,
		pathProps: []string{"path"},
		fn:        r.readFileTool,
	})

	r.register(toolEntry{
		name:        "list_files",
		description: "List directory contents with file/directory indicators and sizes. Can only list directories, not files. Use find_files to locate files by pattern.",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Directory path to list (default: working directory)"
				}
			}
		}`),
		class:     ClassRead,
		pathProps: []string{"path"},
		fn:        r.listFilesTool,
	})

	r.register(toolEntry{
		name: "grep",
		description: `Search file contents using RE2 regex. Returns matching lines with file paths and line numbers. Supports RE2 regex syntax (e.g., "log.*Error", "func\\s+\\w+"). Note: RE2 does not support lookaheads or lookbehinds. Literal braces need escaping (use "interface\\{\\}" to find "interface{}" in Go code). Filter files with the include parameter using glob patterns (e.g., "*.go", "*.{ts,tsx}").`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {
					"type": "string",
					"description": "RE2 regular expression to search for"
				},
				"path": {
					"type": "string",
					"description": "Directory to search in (default: working directory)"
				},
				"include": {
					"type": "string",
					"description": "Glob pattern to filter filenames (e.g., '*.go', '*.{ts,tsx}')"
				}
			},
			"required": ["pattern"]
		}`),
		class:      ClassRead,
		pathProps:  []string{"path"},
		searchable: true,
		fn:         r.grepTool,
	})

	r.register(toolEntry{
		name:        "tree",
		description: "Print a directory tree rooted at the given path, limited by depth. Skips version-control and dependency directories.",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Directory to print (default: working directory)"
				},
				"max_depth": {
					"type": "integer",
					"description": "Maximum depth to descend (default: 3)"
				}
			}
		}`),
		class:     ClassRead,
		pathProps: []string{"path"},
		fn:        r.treeTool,
	})

	r.register(toolEntry{
		name:        "find_files",
		description: `Fast file pattern matching tool. Supports glob patterns like "**/*.go" or "src/**/*.ts". Returns matching file paths relative to the working directory. Use this tool when you need to find files by name patterns.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"pattern": {
					"type": "string",
					"description": "Glob pattern to match files (e.g., '**/*.go', 'src/**/*.ts')"
				}
			},
			"required": ["pattern"]
		}`),
		class:      ClassRead,
		searchable: true,
		fn:         r.findFilesTool,
	})
}

func (r *Registry) registerWriteTools() {
	r.register(toolEntry{
		name:        "write_file",
		description: `Create or overwrite a file with the given content. Creates parent directories if needed. ALWAYS prefer editing existing files over writing new ones — use edit_file to modify existing files. Never proactively create documentation files (*.md) or README files unless explicitly requested.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to write"
				},
				"content": {
					"type": "string",
					"description": "Content to write to the file"
				}
			},
			"required": ["path", "content"]
		}`),
		class:     ClassWrite,
		pathProps: []string{"path"},
		fn:        r.writeFileTool,
		preview:   r.writeFilePreview,
	})

	r.register(toolEntry{
		name:        "edit_file",
		description: `Edit a file by replacing an exact string match. The old_str must appear exactly once in the file. Preserve exact indentation (tabs/spaces) as shown in the file content — do not include line numbers from read_file output. If the edit fails because old_str is not unique, include more surrounding context lines to make it unique.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to edit"
				},
				"old_str": {
					"type": "string",
					"description": "Exact string to find (must appear exactly once)"
				},
				"new_str": {
					"type": "string",
					"description": "Replacement string"
				}
			},
			"required": ["path", "old_str", "new_str"]
		}`),
		class:     ClassWrite,
		pathProps: []string{"path"},
		fn:        r.editFileTool,
		preview:   r.editFilePreview,
	})

	r.register(toolEntry{
		name:        "apply_patch",
		description: `Apply several exact-match edits to one file atomically. Each edit's old_str must appear exactly once; either every edit applies or none does. Use this instead of repeated edit_file calls when changing multiple sections of the same file.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "File path to patch"
				},
				"edits": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"old_str": {"type": "string"},
							"new_str": {"type": "string"}
						},
						"required": ["old_str", "new_str"]
					},
					"description": "Ordered list of exact-match replacements"
				}
			},
			"required": ["path", "edits"]
		}`),
		class:     ClassWrite,
		pathProps: []string{"path"},
		fn:        r.applyPatchTool,
		preview:   r.applyPatchPreview,
	})
}

func (r *Registry) registerExecTools() {
	r.register(toolEntry{
		name: "run_terminal_cmd",
		description: `Execute a command in the working directory. The command is an argv array — the first element is the program, the rest are its arguments; it is never passed through a shell, so pipes, &&, and redirection are not available. Only allow-listed programs run, and each program's flags are validated. Use dedicated tools instead of commands for file operations: read_file for reading, edit_file for editing, grep for searching. Default timeout: 30s, max: 120s.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {
					"type": "array",
					"items": {"type": "string"},
					"minItems": 1,
					"description": "Argv vector: program name followed by arguments"
				},
				"timeout": {
					"type": "integer",
					"description": "Timeout in seconds (default: 30, max: 120)"
				}
			},
			"required": ["command"]
		}`),
		class:   ClassExec,
		fn:      r.runTerminalCmdTool,
		preview: r.runTerminalCmdPreview,
	})
}

func (r *Registry) registerMetaTools() {
	r.register(toolEntry{
		name:        "search_tools",
		description: `Search the tool catalog for deferred tools matching a query. Returns matching tool names and descriptions; matched tools become available on your next turn. Use this when you need a capability that is not in your current tool list.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "Keywords or a regex describing the capability you need"
				}
			},
			"required": ["query"]
		}`),
		class: ClassMeta,
		fn:    r.searchToolsTool,
	})

	r.register(toolEntry{
		name:        "load_skill",
		description: `Load a named skill: a markdown playbook stored under the workspace's skills directory. Returns the skill's full instructions. Use when the user invokes a skill by name or the task matches a skill's description.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {
					"type": "string",
					"description": "Skill name (file name without .md)"
				}
			},
			"required": ["name"]
		}`),
		class: ClassMeta,
		fn:    r.loadSkillTool,
	})

	r.register(toolEntry{
		name:        "explore",
		description: `Explore the codebase to answer broad questions by delegating to a focused sub-agent. The sub-agent has its own context and read-only tools. Use this for questions like "how does authentication work?", "what's the project structure?", or "find all API endpoints". Do NOT use this for direct tasks like editing files or running commands — only for research and exploration.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"task": {
					"type": "string",
					"description": "What to explore or research in the codebase"
				}
			},
			"required": ["task"]
		}`),
		class: ClassMeta,
		fn:    r.exploreTool,
	})
}

func (r *Registry) registerTaskTools() {
	r.register(toolEntry{
		name: "write_tasks",
		description: `Create or replace the task list for planning multi-step work.
Each task has:
- content: short imperative title (e.g. "Add auth middleware")
- description: detailed implementation plan with files to create/modify, code patterns to follow, and what "done" looks like
- active_form: (optional) continuous form for status display

After the plan is approved, immediately mark task 1 as in_progress and begin implementation.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"tasks": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"content": {
								"type": "string",
								"description": "Short imperative title (e.g. 'Add auth middleware')"
							},
							"description": {
								"type": "string",
								"description": "Detailed description of what needs to be done, with specific files, functions, and acceptance criteria."
							},
							"active_form": {
								"type": "string",
								"description": "Task description in continuous form (e.g. 'Adding auth middleware')"
							}
						},
						"required": ["content", "description"]
					},
					"description": "Array of tasks to create"
				}
			},
			"required": ["tasks"]
		}`),
		class:   ClassWrite,
		fn:      r.writeTasksTool,
		preview: r.writeTasksPreview,
	})

	r.register(toolEntry{
		name:        "update_task",
		description: `Update the status of a task by ID. Valid statuses: pending, in_progress, completed. Mark tasks in_progress when you start working on them and completed when done. Returns the updated task list.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"id": {
					"type": "integer",
					"description": "Task ID to update"
				},
				"status": {
					"type": "string",
					"enum": ["pending", "in_progress", "completed"],
					"description": "New status for the task"
				}
			},
			"required": ["id", "status"]
		}`),
		class: ClassMeta,
		fn:    r.updateTaskTool,
	})

	r.register(toolEntry{
		name:        "read_tasks",
		description: `Read the current task list. Task state is already in your system prompt at the start of each turn — you rarely need this tool. Only useful after many turns of work when context may have been compacted.`,
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		class: ClassMeta,
		fn:    r.readTasksTool,
	})
}
