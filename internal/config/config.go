/*
 * T64 - Configuration file parser
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package config is a hand-rolled, line-oriented configuration file reader,
// with a RegisterModule registry a module kind's creator attaches itself
// to. The grammar is simpler than a device list since T64 has exactly
// three module kinds:
//
//	<kind> <modNum> <spec> [option[=value] ...]
//	# comment to end of line
//
// where <spec> is a module-kind-specific token (an SPA address range for
// MEM, a cache-line count for PROC) and trailing options are comma- or
// space-separated name[=value] pairs passed through uninterpreted.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Option is one name[=value] token trailing a config line.
type Option struct {
	Name  string
	Value string
}

// CreateFunc instantiates one module of a registered kind.
type CreateFunc func(modNum int, spec string, options []Option) error

var registry = map[string]CreateFunc{}

// RegisterModule attaches a module kind's creator. Call it before
// ParseFile; kinds are matched case-insensitively.
func RegisterModule(kind string, fn CreateFunc) {
	registry[strings.ToUpper(kind)] = fn
}

// line is the scanner state, the same skipSpace/getName shape the
// assembler uses.
type line struct {
	text string
	pos  int
	num  int
}

func (l *line) eof() bool { return l.pos >= len(l.text) || l.text[l.pos] == '#' }

func (l *line) peek() byte {
	if l.eof() {
		return 0
	}
	return l.text[l.pos]
}

func (l *line) skipSpace() {
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t') {
		l.pos++
	}
}

func isTokenChar(b byte) bool {
	return b != 0 && b != ' ' && b != '\t' && b != '#' && b != ',' && b != '\n' && b != '\r'
}

func (l *line) getToken() string {
	start := l.pos
	for !l.eof() && isTokenChar(l.peek()) {
		l.pos++
	}
	return l.text[start:l.pos]
}

// parseLine parses and dispatches one non-blank, non-comment line.
func (l *line) parseLine() error {
	l.skipSpace()
	if l.eof() {
		return nil
	}
	kind := strings.ToUpper(l.getToken())
	if kind == "" {
		return fmt.Errorf("config: line %d: expected module kind", l.num)
	}
	create, ok := registry[kind]
	if !ok {
		return fmt.Errorf("config: line %d: unknown module kind %q", l.num, kind)
	}
	l.skipSpace()
	modNumTok := l.getToken()
	modNum, err := strconv.Atoi(modNumTok)
	if err != nil {
		return fmt.Errorf("config: line %d: invalid module number %q", l.num, modNumTok)
	}
	l.skipSpace()
	spec := l.getToken()

	var options []Option
	for {
		l.skipSpace()
		if !l.eof() && l.peek() == ',' {
			l.pos++
			continue
		}
		if l.eof() {
			break
		}
		tok := l.getToken()
		if tok == "" {
			break
		}
		name, value, _ := strings.Cut(tok, "=")
		options = append(options, Option{Name: name, Value: value})
	}
	return create(modNum, spec, options)
}

// ParseFile reads every line of path, dispatching each to its registered
// module kind's CreateFunc. Kinds must be registered before calling this.
func ParseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	lineNum := 0
	for {
		text, err := r.ReadString('\n')
		lineNum++
		if len(text) == 0 && err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		l := &line{text: strings.TrimRight(text, "\r\n"), num: lineNum}
		if perr := l.parseLine(); perr != nil {
			return perr
		}
		if err == io.EOF {
			return nil
		}
	}
}
