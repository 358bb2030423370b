//go:build !unix

package main

import "os"

var controlActions = map[os.Signal]string{}

var controlSignals []os.Signal
