package mi

import (
	"strconv"
	"strings"
)

const prompt = "(gdb)"

// ParseLine decodes one line of gdb output. Trailing CR and LF are ignored.
func ParseLine(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	p := &parser{line: line}
	rec, err := p.record()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

type parser struct {
	line     string
	pos      int
	token    uint64
	hasToken bool
	isResult bool
}

func (p *parser) fail(reason string) error {
	return &ProtocolError{
		Line:     p.line,
		Offset:   p.pos,
		Reason:   reason,
		Token:    p.token,
		HasToken: p.hasToken,
		IsResult: p.isResult,
	}
}

func (p *parser) eof() bool {
	return p.pos >= len(p.line)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.line[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.fail("expected " + strconv.QuoteRune(rune(c)))
	}
	p.pos++
	return nil
}

func (p *parser) record() (Record, error) {
	if p.line == "" {
		return nil, p.fail("empty line")
	}
	if strings.TrimRight(p.line, " ") == prompt {
		return &PromptRecord{}, nil
	}

	switch p.peek() {
	case '~', '@', '&':
		kind := map[byte]StreamKind{'~': StreamConsole, '@': StreamTarget, '&': StreamLog}[p.peek()]
		p.pos++
		text, err := p.cstring()
		if err != nil {
			return nil, err
		}
		if !p.eof() {
			return nil, p.fail("trailing data after stream record")
		}
		return &StreamRecord{Kind: kind, Text: text}, nil
	}

	start := p.pos
	for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
		p.pos++
	}
	if p.pos > start {
		tok, err := strconv.ParseUint(p.line[start:p.pos], 10, 64)
		if err != nil {
			return nil, p.fail("token out of range")
		}
		p.token, p.hasToken = tok, true
	}

	prefix := p.peek()
	switch prefix {
	case '^', '*', '+', '=':
		p.pos++
		p.isResult = prefix == '^'
	default:
		return nil, p.fail("unknown record prefix")
	}

	class := p.class()
	if class == "" {
		return nil, p.fail("missing record class")
	}
	results, err := p.results()
	if err != nil {
		return nil, err
	}

	if prefix == '^' {
		rc := ResultClass(class)
		if !rc.Valid() {
			p.pos = start
			return nil, p.fail("unknown result class " + strconv.Quote(class))
		}
		return &ResultRecord{Token: p.token, HasToken: p.hasToken, Class: rc, Results: results}, nil
	}

	kind := AsyncExec
	switch prefix {
	case '+':
		kind = AsyncStatus
	case '=':
		kind = AsyncNotify
	}
	return &AsyncRecord{Token: p.token, HasToken: p.hasToken, Kind: kind, Class: class, Results: results}, nil
}

func (p *parser) class() string {
	start := p.pos
	for !p.eof() && p.peek() != ',' {
		p.pos++
	}
	return p.line[start:p.pos]
}

// results parses (',' result)* up to the end of the line.
func (p *parser) results() (Tuple, error) {
	var out Tuple
	for !p.eof() {
		if err := p.expect(','); err != nil {
			return nil, err
		}
		r, err := p.result()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (p *parser) result() (Result, error) {
	start := p.pos
	for !p.eof() && p.peek() != '=' {
		switch p.peek() {
		case ',', '{', '}', '[', ']', '"':
			return Result{}, p.fail("invalid variable name")
		}
		p.pos++
	}
	name := p.line[start:p.pos]
	if name == "" {
		return Result{}, p.fail("empty variable name")
	}
	if err := p.expect('='); err != nil {
		return Result{}, err
	}
	v, err := p.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (p *parser) value() (Value, error) {
	switch p.peek() {
	case '"':
		s, err := p.cstring()
		if err != nil {
			return nil, err
		}
		return Const(s), nil
	case '{':
		return p.tuple()
	case '[':
		return p.list()
	default:
		return nil, p.fail("expected value")
	}
}

func (p *parser) tuple() (Tuple, error) {
	p.pos++
	out := Tuple{}
	if p.peek() == '}' {
		p.pos++
		return out, nil
	}
	for {
		r, err := p.result()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return out, nil
		default:
			return nil, p.fail("unterminated tuple")
		}
	}
}

func (p *parser) list() (*List, error) {
	p.pos++
	out := &List{}
	if p.peek() == ']' {
		p.pos++
		return out, nil
	}

	values := false
	switch p.peek() {
	case '"', '{', '[':
		values = true
	}

	for {
		if values {
			v, err := p.value()
			if err != nil {
				return nil, err
			}
			out.Values = append(out.Values, v)
		} else {
			r, err := p.result()
			if err != nil {
				return nil, err
			}
			out.Results = append(out.Results, r)
		}
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
			p.pos++
			return out, nil
		default:
			return nil, p.fail("unterminated list")
		}
	}
}

// cstring parses a double-quoted C string starting at the current position.
// Octal escapes produce raw bytes so multi-byte UTF-8 sequences survive.
func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b []byte
	for {
		if p.eof() {
			return "", p.fail("unterminated string")
		}
		c := p.line[p.pos]
		p.pos++
		switch c {
		case '"':
			return string(b), nil
		case '\\':
			if p.eof() {
				return "", p.fail("unterminated escape")
			}
			e := p.line[p.pos]
			p.pos++
			switch e {
			case 'n':
				b = append(b, '\n')
			case 't':
				b = append(b, '\t')
			case 'r':
				b = append(b, '\r')
			case 'a':
				b = append(b, '\a')
			case 'b':
				b = append(b, '\b')
			case 'f':
				b = append(b, '\f')
			case 'v':
				b = append(b, '\v')
			case 'e':
				b = append(b, 0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(e - '0')
				for i := 0; i < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; i++ {
					n = n*8 + int(p.peek()-'0')
					p.pos++
				}
				b = append(b, byte(n))
			default:
				b = append(b, e)
			}
		default:
			b = append(b, c)
		}
	}
}
