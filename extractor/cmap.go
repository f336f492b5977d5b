package extractor

import (
	"errors"
	"io"
	"sort"
	"unicode/utf16"

	"github.com/wudi/docseal/ir/raw"
	"github.com/wudi/docseal/scanner"
)

// maxRangeSize caps bfrange expansion so a hostile CMap cannot allocate
// millions of entries.
const maxRangeSize = 1 << 16

// toUnicodeMap maps character codes to the Unicode strings declared by a
// /ToUnicode CMap.
type toUnicodeMap struct {
	entries map[string]string
	lengths []int // code lengths, longest first
}

func parseToUnicodeCMap(data []byte) *toUnicodeMap {
	m := &toUnicodeMap{entries: make(map[string]string)}
	lengthSet := make(map[int]struct{})
	r := raw.NewObjectReader(scanner.New(data, scanner.Config{}))

	var pending []raw.Object
	state := ""
	for {
		tok, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if tok.Type != scanner.TokenKeyword {
			r.Unread(tok)
			obj, err := r.Object()
			if err != nil {
				continue
			}
			if state != "" {
				pending = append(pending, obj)
			}
			continue
		}
		kw, _ := tok.Value.(string)
		switch kw {
		case "begincodespacerange", "beginbfchar", "beginbfrange":
			state = kw
			pending = pending[:0]
		case "endcodespacerange":
			for i := 0; i+1 < len(pending); i += 2 {
				if lo := stringBytes(pending[i]); len(lo) > 0 {
					lengthSet[len(lo)] = struct{}{}
				}
			}
			state = ""
		case "endbfchar":
			for i := 0; i+1 < len(pending); i += 2 {
				src := stringBytes(pending[i])
				if len(src) == 0 {
					continue
				}
				m.entries[string(src)] = decodeUTF16BE(stringBytes(pending[i+1]))
				lengthSet[len(src)] = struct{}{}
			}
			state = ""
		case "endbfrange":
			for i := 0; i+2 < len(pending); i += 3 {
				m.addRange(stringBytes(pending[i]), stringBytes(pending[i+1]), pending[i+2])
				if l := len(stringBytes(pending[i])); l > 0 {
					lengthSet[l] = struct{}{}
				}
			}
			state = ""
		}
	}
	if len(lengthSet) == 0 {
		for k := range m.entries {
			lengthSet[len(k)] = struct{}{}
		}
	}
	for l := range lengthSet {
		m.lengths = append(m.lengths, l)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(m.lengths)))
	return m
}

func (m *toUnicodeMap) addRange(lo, hi []byte, dst raw.Object) {
	if len(lo) == 0 || len(lo) != len(hi) {
		return
	}
	start, end := bytesToInt(lo), bytesToInt(hi)
	if end < start || end-start > maxRangeSize {
		return
	}
	if arr, ok := dst.(*raw.ArrayObj); ok {
		for i := 0; i <= end-start && i < arr.Len(); i++ {
			m.entries[string(intToBytes(start+i, len(lo)))] = decodeUTF16BE(stringBytes(arr.Get(i)))
		}
		return
	}
	base := utf16Units(stringBytes(dst))
	if len(base) == 0 {
		return
	}
	for i := 0; i <= end-start; i++ {
		units := append([]uint16(nil), base...)
		units[len(units)-1] += uint16(i)
		m.entries[string(intToBytes(start+i, len(lo)))] = string(utf16.Decode(units))
	}
}

// lookup returns the mapping for the code at the head of data.
func (m *toUnicodeMap) lookup(data []byte) (string, int, bool) {
	for _, l := range m.lengths {
		if len(data) < l {
			continue
		}
		if val, ok := m.entries[string(data[:l])]; ok {
			return val, l, true
		}
	}
	return "", 0, false
}

func stringBytes(obj raw.Object) []byte {
	s, _ := obj.(raw.StringObj)
	return s.Bytes
}

func utf16Units(data []byte) []uint16 {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return units
}

func decodeUTF16BE(data []byte) string {
	return string(utf16.Decode(utf16Units(data)))
}

func bytesToInt(b []byte) int {
	val := 0
	for _, by := range b {
		val = (val << 8) | int(by)
	}
	return val
}

func intToBytes(value int, length int) []byte {
	buf := make([]byte, length)
	for i := length - 1; i >= 0; i-- {
		buf[i] = byte(value & 0xFF)
		value >>= 8
	}
	return buf
}
