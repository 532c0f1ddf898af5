package codeblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	testCases := []struct {
		name   string
		answer string
		ok     bool
		want   Block
	}{
		{
			name:   "python block",
			answer: "Diagnosis: missing import.\n\n```python\nimport os\nprint(os.getcwd())\n```\n\nTips: pin versions.",
			ok:     true,
			want:   Block{Lang: "python", Code: "import os\nprint(os.getcwd())", Filename: "main.py"},
		},
		{
			name:   "first block wins",
			answer: "```go\npackage main\n```\n```js\nconsole.log(1)\n```",
			ok:     true,
			want:   Block{Lang: "go", Code: "package main", Filename: "main.go"},
		},
		{
			name:   "no language",
			answer: "```\nSELECT 1;\n```",
			ok:     true,
			want:   Block{Lang: "", Code: "SELECT 1;", Filename: DefaultFilename},
		},
		{
			name:   "unterminated",
			answer: "fix:\n```TypeScript\nconst a: number = 1\n",
			ok:     true,
			want:   Block{Lang: "typescript", Code: "const a: number = 1", Filename: "index.ts"},
		},
		{
			name:   "plain text",
			answer: "just restart the service",
			ok:     false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Extract(tc.answer)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "main.py", Filename("py", ""))
	assert.Equal(t, "bot.py", Filename("python", "bot.py"))
	assert.Equal(t, "index.js", Filename("javascript", "bot.py"))
	assert.Equal(t, "index.js", Filename("node", ""))
	assert.Equal(t, "fixed.txt", Filename("rust", "main.rs"))
}
