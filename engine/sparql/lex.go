package sparql

import (
	"fmt"
	"strings"
)

type tokKind int

const (
	tEOF tokKind = iota
	tIRI
	tPName
	tVar
	tString
	tNumber
	tLang
	tWord
	tPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tEOF:
		return "end of query"
	case tIRI:
		return "<" + t.text + ">"
	case tVar:
		return "?" + t.text
	case tString:
		return fmt.Sprintf("%q", t.text)
	}
	return t.text
}

func isNameChar(c byte) bool {
	return c == '_' || c == '-' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// lex splits a query into tokens. Comments run from # to end of line.
func lex(src string) ([]token, error) {
	var toks []token
	n := len(src)
	emit := func(k tokKind, text string, pos int) { toks = append(toks, token{k, text, pos}) }

	for i := 0; i < n; {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '#':
			for i < n && src[i] != '\n' {
				i++
			}

		case c == '<':
			if i+1 < n && src[i+1] == '=' {
				emit(tPunct, "<=", i)
				i += 2
				continue
			}
			j := i + 1
			for j < n && !strings.ContainsRune(" \t\r\n<>\"{}|^`\\", rune(src[j])) {
				j++
			}
			if j < n && src[j] == '>' && j > i+1 {
				emit(tIRI, src[i+1:j], i)
				i = j + 1
				continue
			}
			emit(tPunct, "<", i)
			i++

		case c == '>':
			if i+1 < n && src[i+1] == '=' {
				emit(tPunct, ">=", i)
				i += 2
				continue
			}
			emit(tPunct, ">", i)
			i++

		case c == '?' || c == '$':
			j := i + 1
			for j < n && (isNameChar(src[j]) && src[j] != '-') {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("sparql: empty variable name at %d", i)
			}
			emit(tVar, src[i+1:j], i)
			i = j

		case c == '"' || c == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			emit(tString, s, i)
			i = next

		case isDigit(c) || (c == '-' || c == '+') && i+1 < n && isDigit(src[i+1]):
			j := i + 1
			for j < n && isDigit(src[j]) {
				j++
			}
			if j+1 < n && src[j] == '.' && isDigit(src[j+1]) {
				j++
				for j < n && isDigit(src[j]) {
					j++
				}
			}
			if j < n && (src[j] == 'e' || src[j] == 'E') {
				k := j + 1
				if k < n && (src[k] == '+' || src[k] == '-') {
					k++
				}
				if k < n && isDigit(src[k]) {
					j = k
					for j < n && isDigit(src[j]) {
						j++
					}
				}
			}
			emit(tNumber, src[i:j], i)
			i = j

		case c == '@':
			j := i + 1
			for j < n && (isNameChar(src[j]) && src[j] != '_') {
				j++
			}
			emit(tLang, src[i+1:j], i)
			i = j

		case c == '^' && i+1 < n && src[i+1] == '^':
			emit(tPunct, "^^", i)
			i += 2

		case c == '!':
			if i+1 < n && src[i+1] == '=' {
				emit(tPunct, "!=", i)
				i += 2
				continue
			}
			emit(tPunct, "!", i)
			i++

		case c == '&' && i+1 < n && src[i+1] == '&':
			emit(tPunct, "&&", i)
			i += 2

		case c == '|' && i+1 < n && src[i+1] == '|':
			emit(tPunct, "||", i)
			i += 2

		case strings.IndexByte("{}().;,*=+-/", c) >= 0:
			emit(tPunct, string(c), i)
			i++

		case c == ':' || isNameChar(c):
			j := i
			for j < n && isNameChar(src[j]) {
				j++
			}
			if j < n && src[j] == ':' {
				k := j + 1
				for k < n && (isNameChar(src[k]) || src[k] == '.' || src[k] == '%') {
					k++
				}
				for k > j+1 && src[k-1] == '.' {
					k--
				}
				emit(tPName, src[i:k], i)
				i = k
				continue
			}
			emit(tWord, src[i:j], i)
			i = j

		default:
			return nil, fmt.Errorf("sparql: unexpected %q at %d", c, i)
		}
	}
	emit(tEOF, "", n)
	return toks, nil
}

func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	for i := start + 1; i < len(src); i++ {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(src[i])
			}
		case c == '\n':
			return "", 0, fmt.Errorf("sparql: newline in string at %d", i)
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("sparql: unterminated string at %d", start)
}
