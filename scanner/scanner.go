package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, endstream, >>, ], etc.)
)

func (t TokenType) String() string {
	switch t {
	case TokenDict:
		return "dict"
	case TokenArray:
		return "array"
	case TokenName:
		return "name"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenBoolean:
		return "boolean"
	case TokenNull:
		return "null"
	case TokenRef:
		return "ref"
	case TokenStream:
		return "stream"
	case TokenInlineImage:
		return "inline-image"
	default:
		return "keyword"
	}
}

// Ref is the value carried by TokenRef tokens.
type Ref struct{ Num, Gen int }

type Token struct {
	Type  TokenType
	Value interface{}
	Pos   int64
	// Hex marks TokenString values that were written as <...>.
	Hex bool
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
}

type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxInlineImage  int64
}

var (
	ErrSeekRange       = errors.New("seek out of range")
	ErrStringTooLong   = errors.New("string too long")
	ErrStreamTooLong   = errors.New("stream too long")
	ErrDepthExceeded   = errors.New("nesting depth exceeded")
	ErrUnterminated    = errors.New("unterminated token")
	ErrInvalidNumber   = errors.New("invalid number")
	ErrStreamNoEOL     = errors.New("stream missing EOL before data")
	ErrInlineImageSize = errors.New("inline image too long")
)

// pdfScanner tokenizes an in-memory PDF byte slice.
type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
}

// New returns a scanner over data. The slice is not copied; callers must not
// mutate it while scanning.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }

func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return ErrSeekRange
	}
	s.pos = offset
	return nil
}

func (s *pdfScanner) SetNextStreamLength(n int64) { s.nextStreamLen = n }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Value: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Value: ">>", Pos: start})
		}
		s.pos++
		return Token{Type: TokenKeyword, Value: ">", Pos: start}, nil
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Value: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Value: "]", Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	case '{', '}':
		s.pos++
		return Token{Type: TokenKeyword, Value: string(c), Pos: start}, nil
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if !isDelimiter(c) {
		return s.scanKeyword()
	}
	s.pos++
	return Token{Type: TokenKeyword, Value: string(c), Pos: start}, nil
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Value: out.String(), Pos: start}, nil
}

func (s *pdfScanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		switch {
		case c == '\\':
			s.pos++
			if s.pos >= int64(len(s.data)) {
				return Token{}, ErrUnterminated
			}
			esc := s.data[s.pos]
			switch {
			case esc == '\r':
				s.pos++
				if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case esc == '\n':
				s.pos++
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < int64(len(s.data)); k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(translateEscape(esc))
				s.pos++
			}
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				s.pos++
				return Token{Type: TokenString, Value: buf.Bytes(), Pos: start}, nil
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, ErrStringTooLong
		}
	}
	return Token{}, ErrUnterminated
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	for {
		if s.pos >= int64(len(s.data)) {
			return Token{}, ErrUnterminated
		}
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		if isHex(c) {
			hexbuf = append(hexbuf, c)
		}
	}
	// odd number of nibbles: the final one is followed by an implicit 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, ErrStringTooLong
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return Token{Type: TokenString, Value: out, Pos: start, Hex: true}, nil
}

// scanStream consumes the stream payload that follows a 'stream' keyword.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	defer func() { s.nextStreamLen = -1 }()
	if s.pos >= int64(len(s.data)) {
		return Token{}, ErrStreamNoEOL
	}
	switch s.data[s.pos] {
	case '\r':
		s.pos++
		if s.pos < int64(len(s.data)) && s.data[s.pos] == '\n' {
			s.pos++
		}
	case '\n':
		s.pos++
	default:
		return Token{}, ErrStreamNoEOL
	}
	dataStart := s.pos
	needle := []byte("endstream")

	if l := s.nextStreamLen; l >= 0 {
		if s.cfg.MaxStreamLength > 0 && l > s.cfg.MaxStreamLength {
			return Token{}, ErrStreamTooLong
		}
		end := dataStart + l
		// Trust the declared length only when endstream follows it.
		if end <= int64(len(s.data)) {
			after := end
			for after < int64(len(s.data)) && isWhitespace(s.data[after]) {
				after++
			}
			if bytes.HasPrefix(s.data[after:], needle) {
				payload := append([]byte(nil), s.data[dataStart:end]...)
				s.pos = after + int64(len(needle))
				return Token{Type: TokenStream, Value: payload, Pos: start}, nil
			}
		}
	}

	idx := bytes.Index(s.data[dataStart:], needle)
	if idx < 0 {
		payload := append([]byte(nil), s.data[dataStart:]...)
		s.pos = int64(len(s.data))
		return Token{Type: TokenStream, Value: payload, Pos: start}, nil
	}
	end := dataStart + int64(idx)
	s.pos = end + int64(len(needle))
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	if s.cfg.MaxStreamLength > 0 && end-dataStart > s.cfg.MaxStreamLength {
		return Token{}, ErrStreamTooLong
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	return Token{Type: TokenStream, Value: payload, Pos: start}, nil
}

// scanInlineImage consumes bytes after the ID keyword until a whitespace
// delimited EI. This is a content-stream-only construct.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	if s.pos < int64(len(s.data)) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	dataStart := s.pos
	for i := dataStart; i+1 < int64(len(s.data)); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		prevOK := i > dataStart && isWhitespace(s.data[i-1])
		nextOK := i+2 >= int64(len(s.data)) || isDelimiter(s.data[i+2])
		if !prevOK || !nextOK {
			continue
		}
		end := i - 1
		if end > dataStart && s.data[end-1] == '\r' && s.data[end] == '\n' {
			end--
		}
		payload := append([]byte(nil), s.data[dataStart:end]...)
		if s.cfg.MaxInlineImage > 0 && int64(len(payload)) > s.cfg.MaxInlineImage {
			return Token{}, ErrInlineImageSize
		}
		s.pos = i + 2
		return Token{Type: TokenInlineImage, Value: payload, Pos: start}, nil
	}
	return Token{}, ErrUnterminated
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Value: kw == "true", Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Value: nil, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID": // inline image data; the caller has parsed the image dict already
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Value: kw, Pos: start}, nil
	}
}

func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return Token{}, ErrInvalidNumber
	}
	if isUnsignedInt(num1) {
		save := s.pos
		s.skipWSAndComments()
		num2 := s.scanNumberString()
		if num2 != "" && isUnsignedInt(num2) {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				n1, _ := strconv.Atoi(num1)
				n2, _ := strconv.Atoi(num2)
				return Token{Type: TokenRef, Value: Ref{Num: n1, Gen: n2}, Pos: start}, nil
			}
		}
		s.pos = save
	}
	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return Token{Type: TokenNumber, Value: i, Pos: start}, nil
	}
	f, err := strconv.ParseFloat(num1, 64)
	if err != nil {
		// malformed reals such as "1.2.3" or "--5" read as zero
		f = 0
	}
	return Token{Type: TokenNumber, Value: f, Pos: start}, nil
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

func isUnsignedInt(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, ErrDepthExceeded
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, ErrDepthExceeded
		}
	case TokenKeyword:
		if tok.Value == "]" && s.arrayDepth > 0 {
			s.arrayDepth--
		}
		if tok.Value == ">>" && s.dictDepth > 0 {
			s.dictDepth--
		}
	}
	return tok, nil
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}
