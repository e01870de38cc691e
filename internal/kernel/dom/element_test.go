package dom

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestImgAndHTML(t *testing.T) {
	assert.Equal(t, `<img src="a.png"/>`, Img("a.png").String())
	assert.Equal(t, `<span><i class="fa fa-cog"></i></span>`, HTML(`<i class="fa fa-cog"></i>`).String())
}

func TestRenderEscapesAndSortsAttributes(t *testing.T) {
	el := NewElement("div").SetAttr("title", `a "quoted" <b>`).SetAttr("class", "panel")
	el.Append(NewElement("p"))

	assert.Equal(t, `<div class="panel" title="a &#34;quoted&#34; &lt;b&gt;"><p></p></div>`, el.String())
}

func TestCloneIsDeep(t *testing.T) {
	orig := NewElement("div").SetAttr("id", "root")
	orig.Append(Img("x.png"))

	c := orig.Clone()
	if diff := cmp.Diff(orig, c); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	c.SetAttr("id", "changed")
	c.Children[0].SetAttr("src", "y.png")

	v, _ := orig.Attr("id")
	assert.Equal(t, "root", v)
	src, _ := orig.Children[0].Attr("src")
	assert.Equal(t, "x.png", src)
}

func TestNilElement(t *testing.T) {
	var el *Element
	assert.Nil(t, el.Clone())
	assert.Equal(t, "", el.String())
}
