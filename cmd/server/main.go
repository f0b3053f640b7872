// Command server runs the bank server (spec.md §6): it binds a UDP socket
// on the given port, registers clients on first contact, and processes
// transfers for as long as the process runs.
package main

import (
	"fmt"
	"os"
	"strconv"

	"udpbank/internal/bank"
	"udpbank/internal/banklog"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: server <port>")
		os.Exit(1)
	}
	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Printf("server: invalid port %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	log := banklog.New()

	srv, err := bank.NewServer(port, log)
	if err != nil {
		log.WithError(err).Fatal("failed to start server")
	}
	defer srv.Close()

	log.Infof("server listening on port %d", srv.Port())
	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("server exited")
	}
}
