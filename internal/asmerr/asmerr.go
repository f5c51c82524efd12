/*
 * T64 - Assembler and disassembler error type
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

// Package asmerr is the error type shared by the one-line assembler and
// disassembler's option/operand parsers. Every error carries the byte
// position in the source line it was detected at, per §7's error taxonomy.
package asmerr

import "fmt"

// Code classifies the parse failure.
type Code int

const (
	InvalidChar Code = iota
	InvalidNumber
	InvalidExpr
	ExpectedToken
	ImmRange
	DupOption
	InvalidOption
	NumericOverflow
	UnknownMnemonic
	UnknownRegister
)

var codeText = map[Code]string{
	InvalidChar:     "invalid character",
	InvalidNumber:   "invalid number",
	InvalidExpr:     "invalid expression",
	ExpectedToken:   "expected token",
	ImmRange:        "immediate out of range",
	DupOption:       "duplicate option",
	InvalidOption:   "invalid option for this mnemonic",
	NumericOverflow: "numeric overflow",
	UnknownMnemonic: "unknown mnemonic",
	UnknownRegister: "unknown register",
}

// Error is the single error type the assembler and disassembler return.
type Error struct {
	Code Code
	Pos  int
	Text string
}

func (e *Error) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("col %d: %s: %s", e.Pos, codeText[e.Code], e.Text)
	}
	return fmt.Sprintf("col %d: %s", e.Pos, codeText[e.Code])
}

// New builds an Error positioned at pos with an optional detail string.
func New(code Code, pos int, text string) *Error {
	return &Error{Code: code, Pos: pos, Text: text}
}

func Newf(code Code, pos int, format string, args ...any) *Error {
	return &Error{Code: code, Pos: pos, Text: fmt.Sprintf(format, args...)}
}
