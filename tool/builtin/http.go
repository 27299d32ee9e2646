package builtin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hupe1980/agentdeck/core"
	"github.com/hupe1980/agentdeck/internal/util"
	"github.com/hupe1980/agentdeck/tool"
)

const (
	maxResponseChars = 50000
	maxPageChars     = 80000
	maxBodyBytes     = 10 << 20
)

func newHTTPRequest(client *http.Client) tool.Tool {
	return tool.NewFunctionTool(
		"http_request",
		"make an http request to any url. use this to interact with APIs, submit data, register accounts, etc. supports all http methods.",
		object(map[string]any{
			"method": map[string]any{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
				"description": "http method",
			},
			"url":     str("full url including https://"),
			"headers": map[string]any{"type": "object", "description": "request headers as key-value pairs"},
			"body":    map[string]any{"description": "request body. an object is sent as json, a string as-is"},
		}, "method", "url"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			var body io.Reader
			contentType := ""

			switch v := args["body"].(type) {
			case nil:
			case string:
				body = strings.NewReader(v)
			default:
				data, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("encode body: %w", err)
				}
				body = bytes.NewReader(data)
				contentType = "application/json"
			}

			req, err := http.NewRequestWithContext(tc.Context(), tool.StringArg(args, "method"), tool.StringArg(args, "url"), body)
			if err != nil {
				return nil, err
			}

			if headers, ok := args["headers"].(map[string]any); ok {
				for k, v := range headers {
					req.Header.Set(k, fmt.Sprint(v))
				}
			}
			if contentType != "" && req.Header.Get("Content-Type") == "" {
				req.Header.Set("Content-Type", contentType)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return nil, err
			}

			var out any
			decoded := false
			if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
				decoded = json.Unmarshal(raw, &out) == nil
			}
			if !decoded {
				out = capText(string(raw), maxResponseChars, "response")
			}

			return map[string]any{
				"status":  resp.StatusCode,
				"headers": flattenHeaders(resp.Header),
				"body":    out,
			}, nil
		},
	)
}

type readURLArgs struct {
	URL string `json:"url" description:"url to fetch and read"`
}

func newReadURL(client *http.Client) tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"read_url",
		"fetch a url and return its content as readable text. use this to read web pages, documentation, api specs, skill files, etc.",
		readURLArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			url := tool.StringArg(args, "url")

			req, err := http.NewRequestWithContext(tc.Context(), http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "text/html,text/plain,text/markdown,application/json,*/*")

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return map[string]any{"error": "fetch failed: " + resp.Status, "url": url}, nil
			}

			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return nil, err
			}

			ct := resp.Header.Get("Content-Type")
			text := string(raw)

			switch {
			case strings.Contains(ct, "application/json"):
				var buf bytes.Buffer
				if json.Indent(&buf, raw, "", "  ") == nil {
					text = buf.String()
				}
			case strings.Contains(ct, "text/html"):
				text = HTMLToText(text)
			}

			return map[string]any{"url": url, "content": capText(text, maxPageChars, "content")}, nil
		},
	)
}

func capText(s string, n int, what string) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s\n\n[truncated: %s exceeded %d chars]", string(runes[:n]), what, n)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	return out
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Header: true,
	atom.Footer: true,
}

// HTMLToText renders an HTML document as readable text. Scripts, styles and
// page chrome are dropped; links keep their target in parentheses.
func HTMLToText(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))

	var (
		b     strings.Builder
		skip  int
		hrefs []string
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return tidyText(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := atom.Lookup(name)

			switch {
			case skippedElements[tag]:
				if tt == html.StartTagToken {
					skip++
				}
			case tag == atom.Br:
				if skip == 0 {
					b.WriteByte('\n')
				}
			case tag == atom.A && tt == html.StartTagToken:
				href := ""
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" {
						href = string(val)
					}
				}
				hrefs = append(hrefs, href)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)

			switch {
			case skippedElements[tag]:
				if skip > 0 {
					skip--
				}
			case skip > 0:
			case tag == atom.P, tag == atom.H1, tag == atom.H2, tag == atom.H3,
				tag == atom.H4, tag == atom.H5, tag == atom.H6:
				b.WriteString("\n\n")
			case tag == atom.Div, tag == atom.Li:
				b.WriteByte('\n')
			case tag == atom.A && len(hrefs) > 0:
				if href := hrefs[len(hrefs)-1]; href != "" {
					b.WriteString(" (" + href + ")")
				}
				hrefs = hrefs[:len(hrefs)-1]
			}
		}
	}
}

func tidyText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.FieldsFunc(line, func(r rune) bool { return r == ' ' || r == '\t' }), " ")
	}

	return strings.TrimSpace(util.CollapseBlankLines(strings.Join(lines, "\n")))
}
