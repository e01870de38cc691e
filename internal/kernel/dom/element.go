// Package dom provides the minimal element node the kernel hands to hosts
// for icons, part views and action icons. Rendering is the host's concern;
// the kernel only guarantees every caller gets a node of its own.
package dom

import (
	"html"
	"sort"
	"strings"
)

// Element is a mutable markup node.
type Element struct {
	Tag       string
	Attrs     map[string]string
	InnerHTML string
	Children  []*Element
}

// NewElement creates an element with the given tag.
func NewElement(tag string) *Element {
	return &Element{Tag: tag, Attrs: make(map[string]string)}
}

// Img creates an <img> element pointing at src.
func Img(src string) *Element {
	el := NewElement("img")
	el.SetAttr("src", src)
	return el
}

// HTML creates a <span> wrapping raw markup.
func HTML(markup string) *Element {
	el := NewElement("span")
	el.InnerHTML = markup
	return el
}

// SetAttr sets an attribute and returns the element for chaining.
func (e *Element) SetAttr(name, value string) *Element {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[name] = value
	return e
}

// Attr returns an attribute value.
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Append adds children and returns the element.
func (e *Element) Append(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Clone returns a deep copy.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	c := &Element{
		Tag:       e.Tag,
		InnerHTML: e.InnerHTML,
	}
	if e.Attrs != nil {
		c.Attrs = make(map[string]string, len(e.Attrs))
		for k, v := range e.Attrs {
			c.Attrs[k] = v
		}
	}
	for _, child := range e.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

// String renders the element as markup with attributes in sorted order.
func (e *Element) String() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	e.render(&b)
	return b.String()
}

func (e *Element) render(b *strings.Builder) {
	b.WriteByte('<')
	b.WriteString(e.Tag)

	names := make([]string, 0, len(e.Attrs))
	for name := range e.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(e.Attrs[name]))
		b.WriteByte('"')
	}

	if e.Tag == "img" && e.InnerHTML == "" && len(e.Children) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	b.WriteString(e.InnerHTML)
	for _, child := range e.Children {
		child.render(b)
	}
	b.WriteString("</")
	b.WriteString(e.Tag)
	b.WriteByte('>')
}
