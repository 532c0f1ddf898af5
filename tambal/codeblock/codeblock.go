// Package codeblock pulls the first fenced code block out of a markdown answer.
package codeblock

import (
	"strings"
)

const (
	fence           = "```"
	DefaultFilename = "fixed.txt"
)

type Block struct {
	Lang     string
	Code     string
	Filename string
}

// Extract returns the first fenced block of answer. The info string after the
// opening fence is taken as the language. An unterminated block runs to the end.
func Extract(answer string) (Block, bool) {
	start := strings.Index(answer, fence)
	if start < 0 {
		return Block{}, false
	}
	body := answer[start+len(fence):]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}

	var lang string
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		lang = strings.ToLower(strings.TrimSpace(body[:nl]))
		body = body[nl+1:]
	}

	return Block{
		Lang:     lang,
		Code:     strings.TrimSpace(body),
		Filename: Filename(lang, ""),
	}, true
}

var langFiles = map[string]string{
	"python":     "main.py",
	"py":         "main.py",
	"python3":    "main.py",
	"javascript": "index.js",
	"js":         "index.js",
	"node":       "index.js",
	"typescript": "index.ts",
	"ts":         "index.ts",
	"go":         "main.go",
	"golang":     "main.go",
}

// Filename maps a fence language to a download name. hint is a name the user
// supplied (an uploaded document); it wins when its extension matches.
func Filename(lang, hint string) string {
	name, ok := langFiles[lang]
	if !ok {
		return DefaultFilename
	}
	if hint != "" && ext(hint) == ext(name) {
		return hint
	}
	return name
}

func ext(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ToLower(name[i:])
	}
	return ""
}
