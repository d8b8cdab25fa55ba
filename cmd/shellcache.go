package main

import (
	"fmt"
	"os"

	"github.com/aceeric/shellcache/cmd/subcmd"
	"github.com/aceeric/shellcache/impl/cmdline"
	"github.com/aceeric/shellcache/impl/config"
	"github.com/aceeric/shellcache/impl/globals"

	log "github.com/sirupsen/logrus"
)

var (
	buildVer string
	buildDtm string
)

func main() {
	os.Exit(realMain())
}

// realMain parses the command line, runs the sub-command, and returns the process
// exit code. Supports unit testing.
func realMain() int {
	command, err := getCfg()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := globals.ConfigureLogging(config.GetLogLevel(), config.GetLogFile()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log.Debugf("effective configuration: %+v", config.Get())
	switch command {
	case "serve":
		err = subcmd.Serve(buildVer, buildDtm)
	case "reconcile":
		err = subcmd.Reconcile()
	case "sync":
		err = subcmd.Sync()
	case "list":
		err = subcmd.ListCache()
	case "version":
		fmt.Printf("shellcache version: %s build date: %s\n", buildVer, buildDtm)
	}
	if err != nil {
		log.Error(err)
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// setup resets parsed state between runs. Supports unit testing.
func setup() {
	cmdline.ClearParse()
	config.Set(config.Configuration{})
}
