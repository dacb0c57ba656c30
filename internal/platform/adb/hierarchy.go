package adb

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

var (
	boundsRegex = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

	errNoHierarchy = errors.New("uiautomator output contains no hierarchy")
)

// extractHierarchy cuts the XML document out of a uiautomator dump, which is
// followed by a status line and sometimes preceded by warnings.
func extractHierarchy(out string) (string, error) {
	start := strings.Index(out, "<?xml")
	if start < 0 {
		start = strings.Index(out, "<hierarchy")
	}
	if start < 0 {
		return "", errNoHierarchy
	}
	out = out[start:]

	if end := strings.LastIndex(out, "</hierarchy>"); end >= 0 {
		return out[:end+len("</hierarchy>")], nil
	}
	// A hierarchy with no windows is written as a self-closing element.
	if end := strings.Index(out, "/>"); end >= 0 && strings.Contains(out[:end], "<hierarchy") {
		return out[:end+2], nil
	}
	return "", errNoHierarchy
}

// parseHierarchy converts a uiautomator dump into a UIElement tree. A dump
// without nodes yields nil. Several top-level windows are wrapped in a
// synthetic container spanning all of them.
func parseHierarchy(xmlText string) (*schemas.UIElement, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlText); err != nil {
		return nil, fmt.Errorf("failed to parse UI XML (length: %d): %w", len(xmlText), err)
	}
	root := doc.SelectElement("hierarchy")
	if root == nil {
		return nil, errNoHierarchy
	}

	windows := root.SelectElements("node")
	switch len(windows) {
	case 0:
		return nil, nil
	case 1:
		return convertNode(windows[0], "0"), nil
	}

	container := &schemas.UIElement{
		Ref:       "root",
		ClassName: "android.view.View",
		Visible:   true,
	}
	for i, w := range windows {
		child := convertNode(w, strconv.Itoa(i))
		container.Bounds = union(container.Bounds, child.Bounds)
		container.Children = append(container.Children, child)
	}
	return container, nil
}

func convertNode(el *etree.Element, ref string) *schemas.UIElement {
	class := el.SelectAttrValue("class", "")
	bounds, _ := parseBounds(el.SelectAttrValue("bounds", ""))

	node := &schemas.UIElement{
		Ref:                ref,
		ClassName:          class,
		Text:               el.SelectAttrValue("text", ""),
		ContentDescription: el.SelectAttrValue("content-desc", ""),
		Bounds:             bounds,
		Visible:            attrBool(el, "visible-to-user", true) && !bounds.Empty(),
		Clickable:          attrBool(el, "clickable", false) || attrBool(el, "long-clickable", false),
		Editable:           isEditableClass(class),
		MultiLine:          strings.Contains(class, "MultiAutoComplete"),
	}
	for i, child := range el.SelectElements("node") {
		node.Children = append(node.Children, convertNode(child, ref+"."+strconv.Itoa(i)))
	}
	return node
}

func isEditableClass(class string) bool {
	return strings.Contains(class, "EditText") || strings.Contains(class, "AutoCompleteTextView")
}

func attrBool(el *etree.Element, key string, def bool) bool {
	v := el.SelectAttr(key)
	if v == nil {
		return def
	}
	return v.Value == "true"
}

// parseBounds reads the "[left,top][right,bottom]" form uiautomator emits.
func parseBounds(s string) (schemas.Rect, error) {
	m := boundsRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return schemas.Rect{}, fmt.Errorf("malformed bounds %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return schemas.Rect{}, fmt.Errorf("malformed bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return schemas.Rect{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

func union(a, b schemas.Rect) schemas.Rect {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	return schemas.Rect{
		Left:   min(a.Left, b.Left),
		Top:    min(a.Top, b.Top),
		Right:  max(a.Right, b.Right),
		Bottom: max(a.Bottom, b.Bottom),
	}
}
