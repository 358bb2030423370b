//go:build unix

package main

import (
	"os"
	"syscall"
)

// SIGUSR1 stops buying; SIGUSR2 sells every open position.
var controlActions = map[os.Signal]string{
	syscall.SIGUSR1: actionStopBuying,
	syscall.SIGUSR2: actionSellAll,
}

var controlSignals = []os.Signal{syscall.SIGUSR1, syscall.SIGUSR2}
