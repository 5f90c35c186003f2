package preview

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"
)

// HeadLines is how many lines the text previewer shows.
const HeadLines = 20

// Defaults returns the built-in previewers.
func Defaults() []Entry {
	return []Entry{
		{Name: "markdown", Pattern: "*.md", Priority: 10, Preview: Markdown},
		{Name: "json", Pattern: "*.json", Priority: 10, Preview: JSON},
		{Name: "yaml", Pattern: "*.yaml", Priority: 10, Preview: YAML},
		{Name: "yaml", Pattern: "*.yml", Priority: 10, Preview: YAML},
		{Name: "image", Match: isImage, Priority: 10, Preview: Image},
		{Name: "text", Match: isText, Priority: 0, Preview: Head},
	}
}

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

func isImage(path string) bool {
	_, ok := imageTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

func isText(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt", ".log":
		return true
	}
	return false
}

// Markdown renders the file for a terminal and keeps the source in the bundle.
func Markdown(_ context.Context, path string) (Content, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Content{}, err
	}
	r, err := glamour.NewTermRenderer(glamour.WithStandardStyle("notty"), glamour.WithWordWrap(100))
	if err != nil {
		return Content{}, err
	}
	out, err := r.Render(string(src))
	if err != nil {
		return Content{}, err
	}
	return Content{Data: map[string]any{
		"text/plain":    out,
		"text/markdown": string(src),
	}}, nil
}

// JSON pretty prints the document.
func JSON(_ context.Context, path string) (Content, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Content{}, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, src, "", "  "); err != nil {
		return Content{}, err
	}
	var v any
	_ = json.Unmarshal(src, &v)
	return Content{Data: map[string]any{
		"text/plain":       buf.String() + "\n",
		"application/json": v,
	}}, nil
}

// YAML normalizes the document by decoding and encoding it again.
func YAML(_ context.Context, path string) (Content, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Content{}, err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(src, &node); err != nil {
		return Content{}, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return Content{}, err
	}
	if err := enc.Close(); err != nil {
		return Content{}, err
	}
	return Content{Text: buf.String()}, nil
}

// Image embeds the file as base64 under its MIME type.
func Image(_ context.Context, path string) (Content, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Content{}, err
	}
	mime := imageTypes[strings.ToLower(filepath.Ext(path))]
	data := map[string]any{"text/plain": "<" + mime + " " + filepath.Base(path) + ">"}
	if mime == "image/svg+xml" {
		data[mime] = string(src)
	} else {
		data[mime] = base64.StdEncoding.EncodeToString(src)
	}
	return Content{Data: data}, nil
}

// Head shows the first HeadLines lines.
func Head(_ context.Context, path string) (Content, error) {
	f, err := os.Open(path)
	if err != nil {
		return Content{}, err
	}
	defer f.Close()

	var b strings.Builder
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		if n == HeadLines {
			b.WriteString("...\n")
			break
		}
		b.WriteString(sc.Text())
		b.WriteByte('\n')
		n++
	}
	return Content{Text: b.String()}, sc.Err()
}
