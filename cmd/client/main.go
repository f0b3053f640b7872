// Command client runs the bank client (spec.md §6): it discovers the
// server, then reads "<ip> <value>" transfer requests from stdin, one per
// line, until EOF.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"udpbank/internal/bankclient"
	"udpbank/internal/banklog"
	"udpbank/internal/packet"
)

func main() {
	if len(os.Args) != 2 && len(os.Args) != 3 {
		fmt.Println("Usage: client <server_port> [server_ip]")
		os.Exit(1)
	}
	serverPort, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Printf("client: invalid server_port %q: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	log := banklog.New()

	c, err := bankclient.New(0, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open client socket")
	}
	defer c.Close()

	if len(os.Args) == 3 {
		serverIP := net.ParseIP(os.Args[2]).To4()
		if serverIP == nil {
			fmt.Printf("client: invalid server_ip %q\n", os.Args[2])
			os.Exit(1)
		}
		if err := c.DiscoverDirect(serverIP, serverPort); err != nil {
			log.WithError(err).Fatal("discovery failed")
		}
	} else {
		if err := c.DiscoverBroadcast(serverPort); err != nil {
			log.WithError(err).Fatal("discovery failed")
		}
	}
	c.Run()

	runInputLoop(c, log)
}

// runInputLoop reads "<ip> <value>" lines from stdin until EOF, issuing one
// Transfer per line and printing the spec-mandated success/failure line.
func runInputLoop(c *bankclient.Client, log *logrus.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			fmt.Printf("client: malformed input %q, want \"<ip> <value>\"\n", line)
			continue
		}
		destination := net.ParseIP(fields[0]).To4()
		if destination == nil {
			fmt.Printf("client: invalid destination ip %q\n", fields[0])
			continue
		}
		value, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			fmt.Printf("client: invalid value %q: %v\n", fields[1], err)
			continue
		}

		res, err := c.Transfer(destination, uint32(value))
		if err != nil {
			fmt.Printf("transfer failed: %v\n", err)
			continue
		}
		printResult(c, log, res)
	}
}

// printResult logs the spec's mandated per-transfer output line through
// logrus, the same timestamped format (§4.6 of SPEC_FULL.md) every other
// user-visible line in this repo goes through — never a bare fmt.Print,
// which would carry no timestamp.
func printResult(c *bankclient.Client, log *logrus.Logger, res bankclient.Result) {
	serverIP := c.ServerAddr().IP.String()
	switch res.Type {
	case packet.TransactionAck:
		log.Infof("server %s id_req %d dest %s value %d new_balance %d",
			serverIP, res.RequestID, res.Destination, res.Value, res.Balance)
	case packet.InsufficientBalanceAck:
		log.Warnf("transfer rejected: insufficient balance, current balance %d", res.Balance)
	case packet.InvalidClientAck:
		log.Warnf("transfer rejected: unknown destination %s", res.Destination)
	case packet.ErrorAck:
		log.Warn("transfer rejected: server reports an unknown client")
	default:
		log.Warnf("transfer rejected: unexpected reply type %s", res.Type)
	}
}
