package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoRecord 页面中没有可识别的书目记录
var ErrNoRecord = errors.New("no bibliographic record in catalog page")

// ParseRecord 从检索结果页提取第一条记录的书名与作者
// 单条记录页使用 bibInfoLabel/bibInfoData 表格，列表页使用 briefcitTitle
func ParseRecord(page []byte) (title, authors string, err error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse catalog page: %w", err)
	}

	var (
		fields     = map[string]string{}
		firstData  string
		firstBrief string
		lastLabel  string
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "bibInfoLabel"):
				lastLabel = strings.ToLower(strings.TrimSpace(textOf(n)))
				return
			case hasClass(n, "bibInfoData"):
				text := textOf(n)
				if firstData == "" {
					firstData = text
				}
				if lastLabel != "" {
					if _, seen := fields[lastLabel]; !seen {
						fields[lastLabel] = text
					}
					lastLabel = ""
				}
				return
			case hasClass(n, "briefcitTitle"):
				if firstBrief == "" {
					firstBrief = textOf(n)
				}
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	raw := fields["title"]
	if raw == "" {
		raw = firstData
	}
	if raw == "" {
		raw = firstBrief
	}
	if raw == "" {
		return "", "", ErrNoRecord
	}

	title, authors = SplitTitleAuthors(raw)
	if authors == "" {
		authors = strings.TrimRight(fields["author"], " .,;")
	}
	if title == "" {
		return "", "", ErrNoRecord
	}
	return title, authors, nil
}

// SplitTitleAuthors 按书目著录习惯拆分 "书名 / 责任者"
func SplitTitleAuthors(raw string) (title, authors string) {
	raw = collapseSpaces(raw)
	if i := strings.Index(raw, "/"); i >= 0 {
		title = raw[:i]
		authors = raw[i+1:]
	} else {
		title = raw
	}
	return strings.TrimRight(strings.TrimSpace(title), " .,;:"), strings.TrimRight(strings.TrimSpace(authors), " .,;")
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteByte(' ')
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return collapseSpaces(sb.String())
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
