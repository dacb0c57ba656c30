package browser

import "github.com/xkilldash9x/uipilot/api/schemas"

// domNode is the JSON shape produced by captureScript.
type domNode struct {
	Ref       string     `json:"ref"`
	Class     string     `json:"cls"`
	Text      string     `json:"text"`
	Desc      string     `json:"desc"`
	Left      int        `json:"l"`
	Top       int        `json:"t"`
	Right     int        `json:"r"`
	Bottom    int        `json:"b"`
	Visible   bool       `json:"visible"`
	Clickable bool       `json:"clickable"`
	Editable  bool       `json:"editable"`
	MultiLine bool       `json:"multiline"`
	Children  []*domNode `json:"children"`
}

func (n *domNode) toElement() *schemas.UIElement {
	if n == nil {
		return nil
	}
	el := &schemas.UIElement{
		Ref:                n.Ref,
		ClassName:          n.Class,
		Text:               n.Text,
		ContentDescription: n.Desc,
		Bounds:             schemas.Rect{Left: n.Left, Top: n.Top, Right: n.Right, Bottom: n.Bottom},
		Visible:            n.Visible,
		Clickable:          n.Clickable,
		Editable:           n.Editable,
		MultiLine:          n.MultiLine,
	}
	for _, c := range n.Children {
		if child := c.toElement(); child != nil {
			el.Children = append(el.Children, child)
		}
	}
	return el
}
