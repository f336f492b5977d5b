package extractor

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/wudi/docseal/coords"
	"github.com/wudi/docseal/ir/raw"
)

// Font decodes show-string bytes into glyph codes, Unicode text and
// advance widths.
type Font struct {
	Subtype  string
	BaseFont string
	// Dict is the font dictionary; Type3 glyph procedures live in it.
	Dict *raw.DictObj

	twoByte      bool
	ucs2         bool
	toUnicode    *toUnicodeMap
	encoding     [256]rune
	hasEncoding  bool
	glyphNames   [256]string
	widths       map[int]float64
	defaultWidth float64
	matrix       coords.Matrix
}

// Glyph is one decoded character code.
type Glyph struct {
	Code int
	// Name is the glyph name from /Differences, set for Type3 fonts.
	Name string
	Text string
	// Width is the advance in text space units for a font size of 1;
	// zero means the font carries no metric for the code.
	Width float64
	// Space marks single-byte code 32, which receives word spacing.
	Space bool
}

// Type3 reports whether glyphs are drawn by content procedures.
func (f *Font) Type3() bool { return f.Subtype == "Type3" }

// Matrix is the glyph-space to text-space transform.
func (f *Font) Matrix() coords.Matrix { return f.matrix }

// Glyphs splits data into glyphs.
func (f *Font) Glyphs(data []byte) []Glyph {
	step := 1
	if f.twoByte {
		step = 2
	}
	out := make([]Glyph, 0, len(data)/step)
	for len(data) > 0 {
		n := step
		if n > len(data) {
			n = len(data)
		}
		code := bytesToInt(data[:n])
		g := Glyph{Code: code, Space: n == 1 && code == 32}
		if text, l, ok := f.lookupUnicode(data); ok && l == n {
			g.Text = text
		} else {
			g.Text = f.fallbackText(data[:n])
		}
		if n == 1 {
			g.Name = f.glyphNames[code]
		}
		if w, ok := f.widths[code]; ok {
			g.Width = w * f.matrix[0]
		} else if f.defaultWidth > 0 {
			g.Width = f.defaultWidth * f.matrix[0]
		}
		out = append(out, g)
		data = data[n:]
	}
	return out
}

// Text decodes data to Unicode.
func (f *Font) Text(data []byte) string {
	var b strings.Builder
	for _, g := range f.Glyphs(data) {
		b.WriteString(g.Text)
	}
	return b.String()
}

func (f *Font) lookupUnicode(data []byte) (string, int, bool) {
	if f.toUnicode == nil {
		return "", 0, false
	}
	return f.toUnicode.lookup(data)
}

func (f *Font) fallbackText(code []byte) string {
	if len(code) == 2 {
		if f.ucs2 {
			return decodeUTF16BE(code)
		}
		return ""
	}
	c := code[0]
	if f.hasEncoding && f.encoding[c] != 0 {
		return string(f.encoding[c])
	}
	return string(charmap.Windows1252.DecodeByte(c))
}

// defaultFont is used when a Tf names a missing resource.
func defaultFont() *Font {
	return &Font{Subtype: "Type1", matrix: glyphSpace}
}

var glyphSpace = coords.Scale(0.001, 0.001)

// LoadFont builds a Font from a font dictionary.
func (e *Extractor) LoadFont(obj raw.Object) *Font {
	doc := e.raw
	dict := doc.Dict(obj)
	if dict == nil {
		return defaultFont()
	}
	f := &Font{Dict: dict, matrix: glyphSpace}
	f.Subtype, _ = doc.Name(dict.Get("Subtype"))
	f.BaseFont, _ = doc.Name(dict.Get("BaseFont"))

	if cm := dict.Get("ToUnicode"); cm != nil {
		if data, _, err := e.StreamData(cm); err == nil && len(data) > 0 {
			f.toUnicode = parseToUnicodeCMap(data)
		}
	}

	switch f.Subtype {
	case "Type0":
		enc, _ := doc.Name(dict.Get("Encoding"))
		// embedded CMaps are treated as two-byte too; one-byte CJK CMaps are rare
		f.twoByte = true
		f.ucs2 = strings.HasPrefix(enc, "Uni") && (strings.Contains(enc, "UCS2") || strings.Contains(enc, "UTF16"))
		if desc := doc.Array(dict.Get("DescendantFonts")); desc.Len() > 0 {
			cid := doc.Dict(desc.Get(0))
			f.defaultWidth = 1000
			if dw, ok := doc.Number(cid.Get("DW")); ok {
				f.defaultWidth = dw
			}
			f.widths = cidWidths(doc, cid.Get("W"))
		}
	default:
		if f.Subtype == "Type3" {
			f.matrix = MatrixFromObject(doc, dict.Get("FontMatrix"))
		}
		e.loadSimpleEncoding(f, dict)
		f.widths = simpleWidths(doc, dict)
		if desc := doc.Dict(dict.Get("FontDescriptor")); desc != nil {
			if mw, ok := doc.Number(desc.Get("MissingWidth")); ok && mw > 0 {
				f.defaultWidth = mw
			}
		}
	}
	return f
}

func (e *Extractor) loadSimpleEncoding(f *Font, dict *raw.DictObj) {
	doc := e.raw
	encObj := doc.Resolve(dict.Get("Encoding"))
	base := ""
	var diffs *raw.ArrayObj
	switch v := encObj.(type) {
	case raw.NameObj:
		base = v.Val
	case *raw.DictObj:
		base, _ = doc.Name(v.Get("BaseEncoding"))
		diffs = doc.Array(v.Get("Differences"))
	}
	var cm *charmap.Charmap
	switch base {
	case "WinAnsiEncoding":
		cm = charmap.Windows1252
	case "MacRomanEncoding":
		cm = charmap.Macintosh
	}
	if cm != nil {
		f.hasEncoding = true
		for i := 0; i < 256; i++ {
			f.encoding[i] = cm.DecodeByte(byte(i))
		}
	}
	if diffs.Len() == 0 {
		return
	}
	f.hasEncoding = true
	if cm == nil {
		for i := 0; i < 256; i++ {
			f.encoding[i] = charmap.Windows1252.DecodeByte(byte(i))
		}
	}
	code := 0
	for i := 0; i < diffs.Len(); i++ {
		switch v := doc.Resolve(diffs.Get(i)).(type) {
		case raw.NumberObj:
			code = int(v.Int())
		case raw.NameObj:
			if code >= 0 && code < 256 {
				f.glyphNames[code] = v.Val
				if r, ok := GlyphRune(v.Val); ok {
					f.encoding[code] = r
				}
			}
			code++
		}
	}
}

func simpleWidths(doc *raw.Document, dict *raw.DictObj) map[int]float64 {
	first, _ := doc.Int(dict.Get("FirstChar"))
	ws := floats(doc, dict.Get("Widths"))
	if len(ws) == 0 {
		return nil
	}
	out := make(map[int]float64, len(ws))
	for i, w := range ws {
		out[first+i] = w
	}
	return out
}

// cidWidths reads the /W array: "c [w1 w2 ...]" and "cFirst cLast w".
func cidWidths(doc *raw.Document, obj raw.Object) map[int]float64 {
	arr := doc.Array(obj)
	if arr.Len() == 0 {
		return nil
	}
	out := make(map[int]float64)
	for i := 0; i < arr.Len(); {
		first, ok := doc.Int(arr.Get(i))
		if !ok {
			i++
			continue
		}
		if list := doc.Array(arr.Get(i + 1)); list != nil {
			for j, w := range floats(doc, list) {
				out[first+j] = w
			}
			i += 2
			continue
		}
		last, ok1 := doc.Int(arr.Get(i + 1))
		w, ok2 := doc.Number(arr.Get(i + 2))
		if !ok1 || !ok2 || last < first || last-first > maxRangeSize {
			i += 3
			continue
		}
		for c := first; c <= last; c++ {
			out[c] = w
		}
		i += 3
	}
	return out
}

// GlyphRune maps an Adobe glyph name to its Unicode value.
func GlyphRune(name string) (rune, bool) {
	if r, ok := glyphList[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 {
		if v, err := strconv.ParseUint(name[3:7], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}

var glyphList = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "parenleft": '(',
	"parenright": ')', "asterisk": '*', "plus": '+', "comma": ',', "hyphen": '-',
	"period": '.', "slash": '/', "zero": '0', "one": '1', "two": '2', "three": '3',
	"four": '4', "five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"colon": ':', "semicolon": ';', "less": '<', "equal": '=', "greater": '>',
	"question": '?', "at": '@', "bracketleft": '[', "backslash": '\\',
	"bracketright": ']', "asciicircum": '^', "underscore": '_', "grave": '`',
	"braceleft": '{', "bar": '|', "braceright": '}', "asciitilde": '~',
	"quoteleft": '‘', "quoteright": '’', "quotedblleft": '“',
	"quotedblright": '”', "quotesinglbase": '‚', "quotedblbase": '„',
	"endash": '–', "emdash": '—', "bullet": '•', "ellipsis": '…',
	"dagger": '†', "daggerdbl": '‡', "perthousand": '‰',
	"guilsinglleft": '‹', "guilsinglright": '›', "trademark": '™',
	"fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ', "ffi": 'ﬃ', "ffl": 'ﬄ',
	"Euro": '€', "florin": 'ƒ', "circumflex": 'ˆ', "tilde": '˜',
	"minus": '−', "fraction": '⁄', "dotlessi": 'ı',
	"exclamdown": '¡', "cent": '¢', "sterling": '£', "currency": '¤',
	"yen": '¥', "brokenbar": '¦', "section": '§', "dieresis": '¨',
	"copyright": '©', "ordfeminine": 'ª', "guillemotleft": '«',
	"logicalnot": '¬', "registered": '®', "macron": '¯', "degree": '°',
	"plusminus": '±', "acute": '´', "mu": 'µ', "paragraph": '¶',
	"periodcentered": '·', "cedilla": '¸', "ordmasculine": 'º',
	"guillemotright": '»', "onequarter": '¼', "onehalf": '½',
	"threequarters": '¾', "questiondown": '¿', "multiply": '×',
	"divide": '÷', "germandbls": 'ß', "Agrave": 'À', "Aacute": 'Á',
	"Acircumflex": 'Â', "Atilde": 'Ã', "Adieresis": 'Ä', "Aring": 'Å',
	"AE": 'Æ', "Ccedilla": 'Ç', "Egrave": 'È', "Eacute": 'É',
	"Ecircumflex": 'Ê', "Edieresis": 'Ë', "Igrave": 'Ì', "Iacute": 'Í',
	"Icircumflex": 'Î', "Idieresis": 'Ï', "Eth": 'Ð', "Ntilde": 'Ñ',
	"Ograve": 'Ò', "Oacute": 'Ó', "Ocircumflex": 'Ô', "Otilde": 'Õ',
	"Odieresis": 'Ö', "Oslash": 'Ø', "Ugrave": 'Ù', "Uacute": 'Ú',
	"Ucircumflex": 'Û', "Udieresis": 'Ü', "Yacute": 'Ý', "Thorn": 'Þ',
	"agrave": 'à', "aacute": 'á', "acircumflex": 'â', "atilde": 'ã',
	"adieresis": 'ä', "aring": 'å', "ae": 'æ', "ccedilla": 'ç',
	"egrave": 'è', "eacute": 'é', "ecircumflex": 'ê', "edieresis": 'ë',
	"igrave": 'ì', "iacute": 'í', "icircumflex": 'î', "idieresis": 'ï',
	"eth": 'ð', "ntilde": 'ñ', "ograve": 'ò', "oacute": 'ó',
	"ocircumflex": 'ô', "otilde": 'õ', "odieresis": 'ö', "oslash": 'ø',
	"ugrave": 'ù', "uacute": 'ú', "ucircumflex": 'û', "udieresis": 'ü',
	"yacute": 'ý', "thorn": 'þ', "ydieresis": 'ÿ', "OE": 'Œ',
	"oe": 'œ', "Scaron": 'Š', "scaron": 'š', "Zcaron": 'Ž',
	"zcaron": 'ž', "Ydieresis": 'Ÿ', "Lslash": 'Ł', "lslash": 'ł',
	"nbspace": ' ', "sfthyphen": '­',
}
