package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

func checkf(err error, format string, args ...any) {
	if err != nil {
		log.Printf(format, args...)
		log.Println()
		log.Fatalf("%+v", errors.WithStack(err))
	}
}

var (
	errc    = color.New(color.BgRed, color.FgWhite).PrintfFunc()
	warnTag = color.New(color.BgYellow, color.FgBlack).Sprint(" WARN ")
)

func oerr(msg string) {
	errc("\tERROR: " + msg + " ")
	fmt.Println()
	fmt.Println("Flags available:")
	flag.PrintDefaults()
	fmt.Println()
}

// warnf reports a problem that doesn't stop the run.
func warnf(format string, args ...any) {
	log.Printf("%s %s", warnTag, fmt.Sprintf(format, args...))
}

func debugf(format string, args ...any) {
	if *debug {
		log.Printf("[debug] "+format, args...)
	}
}

func singleCharMode() {
	// disable input buffering
	exec.Command("stty", "-F", "/dev/tty", "cbreak", "min", "1").Run()
	// do not display entered characters on the screen
	exec.Command("stty", "-F", "/dev/tty", "-echo").Run()
}

func saneMode() {
	exec.Command("stty", "-F", "/dev/tty", "sane").Run()
}

func clear() {
	cmd := exec.Command("clear")
	cmd.Stdout = os.Stdout
	cmd.Run()
	fmt.Println()
}
