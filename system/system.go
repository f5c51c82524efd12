/*
 * T64 - Core simulator loop
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

// Package system is the collaborator interface the interactive layer drives:
// systemStep/systemReset/readMem/writeMem/moduleAdd/moduleRemove plus the
// Start/Stop goroutine wrapper for free-running RUN. The scheduling model
// is single-threaded and cooperative (§5): only one processor, or one
// round-robin slice across several, is ever stepping at a time.
package system

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/t64sim/t64/assembler"
	"github.com/t64sim/t64/bus"
	"github.com/t64sim/t64/cpu"
	"github.com/t64sim/t64/disassembler"
	"github.com/t64sim/t64/memory"
)

// Msg identifies the kind of control packet sent to a running System.
type Msg int

const (
	MsgRun Msg = iota
	MsgStop
	MsgStep
)

// Packet is a single control message posted to a System's command channel,
// the same shape as the teacher's master.Packet: a tag plus whatever small
// amount of data that tag needs.
type Packet struct {
	Msg   Msg
	Count int // instruction count for MsgStep
}

// System owns the bus, every attached processor, and the goroutine running
// free-form execution for RUN.
type System struct {
	mu      sync.Mutex
	Bus     *bus.Bus
	cpus    []*cpu.CPU
	next    int // round-robin index for multi-processor stepping
	wg      sync.WaitGroup
	done    chan struct{}
	control chan Packet
	running bool
}

// New creates an empty System with a fresh bus; call AddCPU/AddMemory to
// populate it, the way a configuration file does one line at a time.
func New() *System {
	return &System{
		Bus:     bus.New(),
		done:    make(chan struct{}),
		control: make(chan Packet, 4),
	}
}

// AddMemory registers a memory module occupying [spaAdr, spaAdr+len) of
// system physical address space.
func (s *System) AddMemory(modNum int, spaAdr, length uint64) (*memory.Memory, error) {
	m := memory.New(int(length))
	mod := &bus.Module{ModNum: modNum, Kind: bus.KindMemory, SPAAdr: spaAdr, SPALen: length, Backend: m}
	if err := s.Bus.AddModule(mod); err != nil {
		return nil, err
	}
	return m, nil
}

// AddCPU creates and registers a processor with its own cache pair wired
// to the bus's coherence fan-out.
func (s *System) AddCPU(modNum int, numCacheLines int, upperPhysMemAdr uint64) *cpu.CPU {
	c := cpu.New(modNum, s.Bus, numCacheLines, upperPhysMemAdr)
	s.cpus = append(s.cpus, c)
	// Registering the processor as a zero-length-SPA bus module gives
	// registerGet/Set a uniform way to reach its registers through the
	// bus's HPA path (§13) without it ever answering to an SPA address.
	if err := s.Bus.AddModule(&bus.Module{ModNum: modNum, Kind: bus.KindProcessor, HPAAdr: uint64(modNum), Backend: c}); err != nil {
		slog.Warn("processor module registration failed", "modNum", modNum, "error", err)
	}
	return c
}

// RegisterGet and RegisterSet read and write a module's HPA-addressed
// registers, the collaborator interface named in §6 for inspecting a
// processor's general and control registers from outside it.
func (s *System) RegisterGet(modNum, off, length int) (uint64, error) {
	return s.Bus.ReadHPA(modNum, off, length)
}

func (s *System) RegisterSet(modNum, off, length int, val uint64) error {
	return s.Bus.WriteHPA(modNum, off, length, val)
}

// CPU returns the processor at index i, or nil if out of range.
func (s *System) CPU(i int) *cpu.CPU {
	if i < 0 || i >= len(s.cpus) {
		return nil
	}
	return s.cpus[i]
}

func (s *System) NumCPUs() int { return len(s.cpus) }

// ModuleAdd attaches a memory module at runtime; the interactive layer
// guarantees this is only invoked while every processor is halted (§5).
func (s *System) ModuleAdd(modNum int, spaAdr, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.AddMemory(modNum, spaAdr, length)
	return err
}

// ModuleRemove detaches a module by number.
func (s *System) ModuleRemove(modNum int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Bus.RemoveModule(modNum)
}

// ReadMem reads length bytes of system physical memory for the debugger.
func (s *System) ReadMem(pAdr uint64, length int) ([]byte, error) {
	buf := make([]byte, length)
	for i := 0; i < length; i++ {
		mod, ok := s.Bus.LookupByAdr(pAdr + uint64(i))
		if !ok {
			return nil, fmt.Errorf("no module maps address %#x", pAdr+uint64(i))
		}
		v, err := mod.Backend.ReadSPA(int(pAdr+uint64(i)-mod.SPAAdr), 1)
		if err != nil {
			return nil, err
		}
		buf[i] = byte(v)
	}
	return buf, nil
}

// WriteMem writes buf into system physical memory for the debugger.
func (s *System) WriteMem(pAdr uint64, buf []byte) error {
	for i, b := range buf {
		mod, ok := s.Bus.LookupByAdr(pAdr + uint64(i))
		if !ok {
			return fmt.Errorf("no module maps address %#x", pAdr+uint64(i))
		}
		if err := mod.Backend.WriteSPA(int(pAdr+uint64(i)-mod.SPAAdr), 1, uint64(b)); err != nil {
			return err
		}
	}
	return nil
}

// SystemStep advances n instructions, round-robining across every attached
// processor one instruction at a time, and returns the first trap any
// processor raised (if any) along with which processor raised it.
func (s *System) SystemStep(n int) (modNum int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cpus) == 0 {
		return 0, fmt.Errorf("no processors configured")
	}
	for i := 0; i < n; i++ {
		c := s.cpus[s.next]
		s.next = (s.next + 1) % len(s.cpus)
		if tr := c.Step(); tr != nil {
			return c.ModNum(), tr
		}
	}
	return 0, nil
}

// SystemReset resets every attached processor.
func (s *System) SystemReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cpus {
		c.Reset()
	}
	s.next = 0
}

// Assemble and Disassemble expose the text<->word conversion the
// interactive layer needs without importing those packages directly.
func Assemble(text string) (uint32, error) { return assembler.Assemble(text) }
func Disassemble(word uint32) string       { return disassembler.Disassemble(word) }

// Start launches the free-running RUN loop in its own goroutine. Each
// Packet received on Control() is processed between instruction boundaries,
// matching the teacher's core.go loop shape.
func (s *System) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *System) run() {
	defer s.wg.Done()
	for {
		if s.running {
			if _, err := s.SystemStep(1); err != nil {
				slog.Error("processor trapped", "error", err)
				s.running = false
			}
			select {
			case <-s.done:
				return
			case pkt := <-s.control:
				s.handle(pkt)
			default:
			}
			continue
		}
		select {
		case <-s.done:
			return
		case pkt := <-s.control:
			s.handle(pkt)
		}
	}
}

func (s *System) handle(pkt Packet) {
	switch pkt.Msg {
	case MsgRun:
		s.running = true
	case MsgStop:
		s.running = false
	case MsgStep:
		s.running = false
		if _, err := s.SystemStep(pkt.Count); err != nil {
			slog.Error("processor trapped", "error", err)
		}
	}
}

// Control returns the channel used to post Packets to the running loop.
func (s *System) Control() chan<- Packet { return s.control }

// Run requests the free-running loop start executing.
func (s *System) Run() { s.control <- Packet{Msg: MsgRun} }

// StepN requests n instructions execute, then halt.
func (s *System) StepN(n int) { s.control <- Packet{Msg: MsgStep, Count: n} }

// Halt stops the free-running loop without tearing down the goroutine.
func (s *System) Halt() { s.control <- Packet{Msg: MsgStop} }

// Stop shuts the System's goroutine down, waiting briefly for it to exit.
func (s *System) Stop() {
	close(s.done)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("timed out waiting for system goroutine to exit")
	}
}
