/*
 * T64 - Main process.
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

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"github.com/t64sim/t64/internal/config"
	"github.com/t64sim/t64/internal/diag"
	"github.com/t64sim/t64/internal/logger"
	"github.com/t64sim/t64/system"
)

const version = "t64sim 1.0"

func main() {
	optConfig := getopt.StringLong("configfile", 'c', "t64.cfg", "Configuration file")
	optLogFile := getopt.StringLong("logfile", 'l', "", "Log file")
	optVerbose := getopt.BoolLong("verbose", 'v', "Log debug to console")
	optVersion := getopt.BoolLong("version", 0, "Print version and exit")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}
	if *optVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	logFile, err := logger.Open(*optLogFile, *optVerbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "t64sim:", err)
		os.Exit(-1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	slog.Info("t64sim started", "version", version)

	sys := system.New()
	registerModuleKinds(sys)

	if _, err := os.Stat(*optConfig); err == nil {
		if err := config.ParseFile(*optConfig); err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
	} else {
		slog.Warn("no configuration file found, starting with an empty system", "path", *optConfig)
	}

	if sys.NumCPUs() == 0 {
		slog.Error("configuration defines no processors")
		os.Exit(1)
	}
	for i := 0; i < sys.NumCPUs(); i++ {
		sys.CPU(i).SetDiagHandler(func(opt int, arg1, arg2 int64) int64 {
			return diag.Dispatch(int64(opt), arg1, arg2)
		})
	}

	sys.Start()
	<-make(chan struct{}) // the interactive command layer is out of scope; block until killed
}

// registerModuleKinds wires the config grammar's three module kinds
// (PROC, MEM, IO) to sys. T64 has no pluggable device-model packages the
// way S/370 does, so this plays the role the teacher's per-model init()
// registrations play, just gathered in one place since there is exactly
// one implementation of each kind.
func registerModuleKinds(sys *system.System) {
	config.RegisterModule("MEM", func(modNum int, spec string, _ []config.Option) error {
		base, length, err := parseRange(spec)
		if err != nil {
			return err
		}
		return sys.ModuleAdd(modNum, base, length)
	})
	config.RegisterModule("PROC", func(modNum int, spec string, _ []config.Option) error {
		lines := 256
		if spec != "" {
			n, err := strconv.Atoi(spec)
			if err != nil {
				return fmt.Errorf("config: PROC %d: invalid cache line count %q", modNum, spec)
			}
			lines = n
		}
		sys.AddCPU(modNum, lines, 1<<32)
		return nil
	})
	config.RegisterModule("IO", func(modNum int, spec string, _ []config.Option) error {
		return fmt.Errorf("config: IO module %d: no I/O module kinds are implemented", modNum)
	})
}

func parseRange(spec string) (base, length uint64, err error) {
	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("config: expected base-length, got %q", spec)
	}
	base, err = strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 64)
	if err != nil {
		return 0, 0, err
	}
	length, err = strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 64)
	if err != nil {
		return 0, 0, err
	}
	return base, length, nil
}
