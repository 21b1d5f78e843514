package export

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"slidedeck/internal/domain"
)

// PPTXContentType is the media type of the document written by WritePPTX.
const PPTXContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

var mediaExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/gif":  "gif",
}

// Every zip entry carries this timestamp so output depends only on the deck.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP   = "http://schemas.openxmlformats.org/presentationml/2006/main"
	nsC   = "http://schemas.openxmlformats.org/drawingml/2006/chart"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsCT  = "http://schemas.openxmlformats.org/package/2006/content-types"

	relOffice = nsR + "/officeDocument"
	relSlide  = nsR + "/slide"
	relMaster = nsR + "/slideMaster"
	relLayout = nsR + "/slideLayout"
	relTheme  = nsR + "/theme"
	relImage  = nsR + "/image"
	relChart  = nsR + "/chart"

	ctMain   = "application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"
	ctSlide  = "application/vnd.openxmlformats-officedocument.presentationml.slide+xml"
	ctMaster = "application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"
	ctLayout = "application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"
	ctTheme  = "application/vnd.openxmlformats-officedocument.theme+xml"
	ctChart  = "application/vnd.openxmlformats-officedocument.drawingml.chart+xml"

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

type part struct {
	name string
	data []byte
}

type relationship struct {
	id, typ, target string
}

// WritePPTX serializes the presentation as an OOXML package. Parts are written
// in a fixed order with fixed timestamps, so equal presentations produce equal
// bytes.
func (p *Presentation) WritePPTX(w io.Writer) error {
	parts, err := p.parts()
	if err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	for _, pt := range parts {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: pt.name, Method: zip.Deflate, Modified: zipEpoch})
		if err != nil {
			return fmt.Errorf("create %s: %w", pt.name, err)
		}
		if _, err := fw.Write(pt.data); err != nil {
			return fmt.Errorf("write %s: %w", pt.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close pptx: %w", err)
	}
	return nil
}

// EncodeBase64 returns the PPTX package as base64 text.
func (p *Presentation) EncodeBase64() (string, error) {
	var buf bytes.Buffer
	if err := p.WritePPTX(&buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (p *Presentation) parts() ([]part, error) {
	th := ThemeFor(p.Theme)
	var (
		slideParts []part
		extra      []part
		overrides  []string
		imageN     int
		chartN     int
	)

	for i, s := range p.Slides {
		rels := []relationship{{id: "rId1", typ: relLayout, target: "../slideLayouts/slideLayout1.xml"}}
		var tree strings.Builder
		for j, sh := range s.Shapes {
			shapeID := j + 2
			switch v := sh.(type) {
			case *TextBox:
				writeTextBox(&tree, shapeID, v, hexColor(th.Title))
			case *Picture:
				imageN++
				rid := "rId" + strconv.Itoa(len(rels)+1)
				name := fmt.Sprintf("image%d.%s", imageN, mediaExt[v.MediaType])
				rels = append(rels, relationship{id: rid, typ: relImage, target: "../media/" + name})
				extra = append(extra, part{name: "ppt/media/" + name, data: v.Data})
				writePicture(&tree, shapeID, rid, v)
			case *Chart:
				chartN++
				rid := "rId" + strconv.Itoa(len(rels)+1)
				name := fmt.Sprintf("chart%d.xml", chartN)
				rels = append(rels, relationship{id: rid, typ: relChart, target: "../charts/" + name})
				extra = append(extra, part{name: "ppt/charts/" + name, data: []byte(chartXML(v))})
				overrides = append(overrides, override("/ppt/charts/"+name, ctChart))
				writeChartFrame(&tree, shapeID, rid, v)
			default:
				return nil, fmt.Errorf("slide %d: unsupported shape %T", i+1, sh)
			}
		}
		n := strconv.Itoa(i + 1)
		slideParts = append(slideParts,
			part{name: "ppt/slides/slide" + n + ".xml", data: []byte(slideXML(tree.String(), hexColor(th.Background)))},
			part{name: "ppt/slides/_rels/slide" + n + ".xml.rels", data: []byte(relsXML(rels))},
		)
		overrides = append(overrides, override("/ppt/slides/slide"+n+".xml", ctSlide))
	}

	presRels := []relationship{
		{id: "rId1", typ: relMaster, target: "slideMasters/slideMaster1.xml"},
		{id: "rId2", typ: relTheme, target: "theme/theme1.xml"},
	}
	for i := range p.Slides {
		presRels = append(presRels, relationship{
			id: "rId" + strconv.Itoa(i+3), typ: relSlide, target: "slides/slide" + strconv.Itoa(i+1) + ".xml",
		})
	}

	parts := []part{
		{name: "[Content_Types].xml", data: []byte(contentTypesXML(overrides))},
		{name: "_rels/.rels", data: []byte(relsXML([]relationship{{id: "rId1", typ: relOffice, target: "ppt/presentation.xml"}}))},
		{name: "ppt/presentation.xml", data: []byte(presentationXML(len(p.Slides)))},
		{name: "ppt/_rels/presentation.xml.rels", data: []byte(relsXML(presRels))},
		{name: "ppt/slideMasters/slideMaster1.xml", data: []byte(slideMasterXML)},
		{name: "ppt/slideMasters/_rels/slideMaster1.xml.rels", data: []byte(relsXML([]relationship{
			{id: "rId1", typ: relLayout, target: "../slideLayouts/slideLayout1.xml"},
			{id: "rId2", typ: relTheme, target: "../theme/theme1.xml"},
		}))},
		{name: "ppt/slideLayouts/slideLayout1.xml", data: []byte(slideLayoutXML)},
		{name: "ppt/slideLayouts/_rels/slideLayout1.xml.rels", data: []byte(relsXML([]relationship{
			{id: "rId1", typ: relMaster, target: "../slideMasters/slideMaster1.xml"},
		}))},
		{name: "ppt/theme/theme1.xml", data: []byte(themeXML(th))},
	}
	parts = append(parts, slideParts...)
	return append(parts, extra...), nil
}

// ── XML helpers ────────────────────────────────────────────

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func hexColor(c interface{ RGBA() (r, g, b, a uint32) }) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("%02X%02X%02X", r>>8, g>>8, b>>8)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func override(partName, contentType string) string {
	return `<Override PartName="` + partName + `" ContentType="` + contentType + `"/>`
}

func contentTypesXML(overrides []string) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="` + nsCT + `">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	b.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)
	b.WriteString(`<Default Extension="gif" ContentType="image/gif"/>`)
	b.WriteString(override("/ppt/presentation.xml", ctMain))
	b.WriteString(override("/ppt/slideMasters/slideMaster1.xml", ctMaster))
	b.WriteString(override("/ppt/slideLayouts/slideLayout1.xml", ctLayout))
	b.WriteString(override("/ppt/theme/theme1.xml", ctTheme))
	for _, o := range overrides {
		b.WriteString(o)
	}
	b.WriteString(`</Types>`)
	return b.String()
}

func relsXML(rels []relationship) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="` + nsRel + `">`)
	for _, r := range rels {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, r.typ, r.target)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func presentationXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<p:presentation xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `" saveSubsetFonts="1">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	if slides > 0 {
		b.WriteString(`<p:sldIdLst>`)
		for i := 0; i < slides; i++ {
			fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+3)
		}
		b.WriteString(`</p:sldIdLst>`)
	}
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, SlideWidthEMU, SlideHeightEMU)
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

const emptyGroup = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

var slideMasterXML = xmlHeader +
	`<p:sldMaster xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
	`<p:cSld><p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" ` +
	`accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`</p:sldMaster>`

var slideLayoutXML = xmlHeader +
	`<p:sldLayout xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `" type="blank" preserve="1">` +
	`<p:cSld name="Blank"><p:spTree>` + emptyGroup + `</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` +
	`</p:sldLayout>`

func themeXML(th Theme) string {
	accent := func(i int) string { return ChartPalette[i%len(ChartPalette)] }
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<a:theme xmlns:a="` + nsA + `" name="slidedeck">`)
	b.WriteString(`<a:themeElements><a:clrScheme name="slidedeck">`)
	fmt.Fprintf(&b, `<a:dk1><a:srgbClr val="%s"/></a:dk1>`, hexColor(th.Title))
	fmt.Fprintf(&b, `<a:lt1><a:srgbClr val="%s"/></a:lt1>`, hexColor(th.Background))
	b.WriteString(`<a:dk2><a:srgbClr val="1F2937"/></a:dk2><a:lt2><a:srgbClr val="F3F4F6"/></a:lt2>`)
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, `<a:accent%d><a:srgbClr val="%s"/></a:accent%d>`, i+1, accent(i), i+1)
	}
	b.WriteString(`<a:hlink><a:srgbClr val="2563EB"/></a:hlink><a:folHlink><a:srgbClr val="7C3AED"/></a:folHlink>`)
	b.WriteString(`</a:clrScheme>`)
	b.WriteString(`<a:fontScheme name="slidedeck">`)
	for _, f := range []string{"majorFont", "minorFont"} {
		b.WriteString(`<a:` + f + `><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:` + f + `>`)
	}
	b.WriteString(`</a:fontScheme>`)
	b.WriteString(`<a:fmtScheme name="slidedeck"><a:fillStyleLst>`)
	b.WriteString(strings.Repeat(`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`, 3))
	b.WriteString(`</a:fillStyleLst><a:lnStyleLst>`)
	b.WriteString(strings.Repeat(`<a:ln w="9525"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`, 3))
	b.WriteString(`</a:lnStyleLst><a:effectStyleLst>`)
	b.WriteString(strings.Repeat(`<a:effectStyle><a:effectLst/></a:effectStyle>`, 3))
	b.WriteString(`</a:effectStyleLst><a:bgFillStyleLst>`)
	b.WriteString(strings.Repeat(`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`, 3))
	b.WriteString(`</a:bgFillStyleLst></a:fmtScheme>`)
	b.WriteString(`</a:themeElements></a:theme>`)
	return b.String()
}

func slideXML(shapes, background string) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<p:sld xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">`)
	b.WriteString(`<p:cSld>`)
	fmt.Fprintf(&b, `<p:bg><p:bgPr><a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:effectLst/></p:bgPr></p:bg>`, background)
	b.WriteString(`<p:spTree>` + emptyGroup + shapes + `</p:spTree>`)
	b.WriteString(`</p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
	return b.String()
}

func xfrm(b *strings.Builder, prefix string, r Rect) {
	fmt.Fprintf(b, `<%s:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></%s:xfrm>`, prefix, r.X, r.Y, r.W, r.H, prefix)
}

func writeTextBox(b *strings.Builder, id int, t *TextBox, color string) {
	name := "TextBox " + strconv.Itoa(id)
	if t.Title {
		name = "Title " + strconv.Itoa(id)
	}
	fmt.Fprintf(b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, name)
	b.WriteString(`<p:spPr>`)
	xfrm(b, "a", t.Rect)
	b.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" rtlCol="0"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	if len(t.Paragraphs) == 0 {
		b.WriteString(`<a:p><a:endParaRPr lang="en-US" dirty="0"/></a:p>`)
	}
	size := 1800
	if t.Title {
		size = 2800
	}
	for _, p := range t.Paragraphs {
		b.WriteString(`<a:p>`)
		if p.Bullet {
			b.WriteString(`<a:pPr marL="285750" indent="-285750"><a:buFont typeface="Arial"/><a:buChar char="•"/></a:pPr>`)
		}
		for _, r := range p.Runs {
			fmt.Fprintf(b, `<a:r><a:rPr lang="en-US" sz="%d" b="%s" i="%s" dirty="0"><a:solidFill><a:srgbClr val="%s"/></a:solidFill></a:rPr><a:t>%s</a:t></a:r>`,
				size, flag(r.Bold), flag(r.Italic), color, esc(r.Text))
		}
		b.WriteString(`</a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp>`)
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func writePicture(b *strings.Builder, id int, rid string, p *Picture) {
	fmt.Fprintf(b, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Picture %d" descr="%s"/>`, id, id, esc(p.Description))
	b.WriteString(`<p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`)
	fmt.Fprintf(b, `<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`, rid)
	b.WriteString(`<p:spPr>`)
	xfrm(b, "a", p.Rect)
	b.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`)
}

func writeChartFrame(b *strings.Builder, id int, rid string, c *Chart) {
	fmt.Fprintf(b, `<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="Chart %d"/><p:cNvGraphicFramePr/><p:nvPr/></p:nvGraphicFramePr>`, id, id)
	xfrm(b, "p", c.Rect)
	fmt.Fprintf(b, `<a:graphic><a:graphicData uri="%s"><c:chart xmlns:c="%s" r:id="%s"/></a:graphicData></a:graphic>`, nsC, nsC, rid)
	b.WriteString(`</p:graphicFrame>`)
}

// ── chart part ─────────────────────────────────────────────

const (
	catAxisID = 500100
	valAxisID = 500200
)

func chartXML(c *Chart) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<c:chartSpace xmlns:c="` + nsC + `" xmlns:a="` + nsA + `" xmlns:r="` + nsR + `">`)
	b.WriteString(`<c:chart><c:autoTitleDeleted val="1"/><c:plotArea><c:layout/>`)

	switch c.Type {
	case domain.ChartTypePie:
		b.WriteString(`<c:pieChart><c:varyColors val="1"/>`)
		for i, s := range c.Series {
			writeSeriesHead(&b, i, s, "")
			for j := range s.Values {
				fmt.Fprintf(&b, `<c:dPt><c:idx val="%d"/><c:bubble3D val="0"/><c:spPr>%s</c:spPr></c:dPt>`, j, solidFill(c.color(j)))
			}
			writeSeriesData(&b, c.Categories, s.Values)
			b.WriteString(`</c:ser>`)
		}
		b.WriteString(`<c:firstSliceAng val="0"/></c:pieChart>`)
	case domain.ChartTypeLine:
		b.WriteString(`<c:lineChart><c:grouping val="standard"/><c:varyColors val="0"/>`)
		for i, s := range c.Series {
			writeSeriesHead(&b, i, s, `<c:spPr><a:ln w="28575" cap="rnd">`+solidFill(c.color(i))+`</a:ln></c:spPr><c:marker><c:symbol val="none"/></c:marker>`)
			writeSeriesData(&b, c.Categories, s.Values)
			b.WriteString(`<c:smooth val="0"/></c:ser>`)
		}
		fmt.Fprintf(&b, `<c:marker val="1"/><c:axId val="%d"/><c:axId val="%d"/></c:lineChart>`, catAxisID, valAxisID)
		writeAxes(&b, c.YLabel)
	default:
		b.WriteString(`<c:barChart><c:barDir val="col"/><c:grouping val="clustered"/><c:varyColors val="0"/>`)
		for i, s := range c.Series {
			writeSeriesHead(&b, i, s, `<c:spPr>`+solidFill(c.color(i))+`</c:spPr><c:invertIfNegative val="0"/>`)
			writeSeriesData(&b, c.Categories, s.Values)
			b.WriteString(`</c:ser>`)
		}
		fmt.Fprintf(&b, `<c:gapWidth val="150"/><c:axId val="%d"/><c:axId val="%d"/></c:barChart>`, catAxisID, valAxisID)
		writeAxes(&b, c.YLabel)
	}

	b.WriteString(`</c:plotArea><c:legend><c:legendPos val="b"/><c:overlay val="0"/></c:legend><c:plotVisOnly val="1"/></c:chart>`)
	b.WriteString(`</c:chartSpace>`)
	return b.String()
}

func (c *Chart) color(i int) string {
	if len(c.Palette) == 0 {
		return ChartPalette[i%len(ChartPalette)]
	}
	return c.Palette[i%len(c.Palette)]
}

func solidFill(hex string) string {
	return `<a:solidFill><a:srgbClr val="` + hex + `"/></a:solidFill>`
}

func writeSeriesHead(b *strings.Builder, i int, s ChartSeries, style string) {
	fmt.Fprintf(b, `<c:ser><c:idx val="%d"/><c:order val="%d"/><c:tx><c:v>%s</c:v></c:tx>%s`, i, i, esc(s.Name), style)
}

func writeSeriesData(b *strings.Builder, cats []string, vals []float64) {
	fmt.Fprintf(b, `<c:cat><c:strLit><c:ptCount val="%d"/>`, len(cats))
	for i, cat := range cats {
		fmt.Fprintf(b, `<c:pt idx="%d"><c:v>%s</c:v></c:pt>`, i, esc(cat))
	}
	b.WriteString(`</c:strLit></c:cat>`)
	fmt.Fprintf(b, `<c:val><c:numLit><c:formatCode>General</c:formatCode><c:ptCount val="%d"/>`, len(vals))
	for i, v := range vals {
		fmt.Fprintf(b, `<c:pt idx="%d"><c:v>%s</c:v></c:pt>`, i, num(v))
	}
	b.WriteString(`</c:numLit></c:val>`)
}

func writeAxes(b *strings.Builder, yLabel string) {
	fmt.Fprintf(b, `<c:catAx><c:axId val="%d"/><c:scaling><c:orientation val="minMax"/></c:scaling><c:delete val="0"/><c:axPos val="b"/><c:crossAx val="%d"/></c:catAx>`,
		catAxisID, valAxisID)
	fmt.Fprintf(b, `<c:valAx><c:axId val="%d"/><c:scaling><c:orientation val="minMax"/></c:scaling><c:delete val="0"/><c:axPos val="l"/><c:majorGridlines/>`, valAxisID)
	if yLabel != "" {
		fmt.Fprintf(b, `<c:title><c:tx><c:rich><a:bodyPr/><a:p><a:r><a:t>%s</a:t></a:r></a:p></c:rich></c:tx><c:overlay val="0"/></c:title>`, esc(yLabel))
	}
	fmt.Fprintf(b, `<c:crossAx val="%d"/></c:valAx>`, catAxisID)
}
