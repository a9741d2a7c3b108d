package textlayer

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func TestRenderHTML(t *testing.T) {
	runs := []TextRun{
		{ID: "run-1-0", Text: "a < b & c", X: 10, Y: 30, Width: 40, Height: 12, FontSize: 12, Font: "Helvetica-Bold", Bold: true},
		{ID: "run-1-1", Text: "<script>", X: 10, Y: 60, Width: 40, Height: 12, FontSize: 12, Font: "Times-Italic", Italic: true},
	}
	var buf bytes.Buffer
	if err := RenderHTML(&buf, 612, 792, 2, runs); err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if strings.Contains(buf.String(), "<script>") {
		t.Fatalf("run text not escaped: %s", buf.String())
	}

	doc, err := html.Parse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	var spans []*html.Node
	var container *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "div":
				container = n
			case "span":
				spans = append(spans, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if container == nil || attrValue(container, "class") != OverlayClass {
		t.Fatal("missing overlay container")
	}
	if !strings.Contains(attrValue(container, "style"), "width:1224.00px;height:1584.00px") {
		t.Errorf("container style = %q", attrValue(container, "style"))
	}
	if len(spans) != 2 {
		t.Fatalf("spans = %d", len(spans))
	}
	first := spans[0]
	if attrValue(first, "data-run-id") != "run-1-0" || first.FirstChild.Data != "a < b & c" {
		t.Errorf("first span = %q %q", attrValue(first, "data-run-id"), first.FirstChild.Data)
	}
	style := attrValue(first, "style")
	for _, want := range []string{"left:20.00px", "top:36.00px", "width:80.00px", "font-size:24.00px", "color:transparent", "font-weight:bold"} {
		if !strings.Contains(style, want) {
			t.Errorf("style %q lacks %q", style, want)
		}
	}
	if s := attrValue(spans[1], "style"); !strings.Contains(s, "font-style:italic") || strings.Contains(s, "bold") {
		t.Errorf("second span style = %q", s)
	}
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
