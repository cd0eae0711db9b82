package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gtarraga/yakv/internal/client"
	"github.com/gtarraga/yakv/internal/protocol"
)

func main() {
	fs := flag.NewFlagSet("yakv-client", flag.ExitOnError)
	addr := fs.String("addr", "", "server address, host:port (required)")
	fs.Parse(os.Args[1:])

	args := fs.Args()
	if *addr == "" || len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var resp protocol.Response
	var err error

	switch args[0] {
	case "set":
		if len(args) != 3 {
			usage()
			os.Exit(1)
		}
		resp, err = client.Set(*addr, args[1], args[2])
	case "get":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		resp, err = client.Get(*addr, args[1])
	case "rm":
		if len(args) != 2 {
			usage()
			os.Exit(1)
		}
		resp, err = client.Remove(*addr, args[1])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if resp.IsError {
		msg := "unknown error"
		if resp.ErrorMsg != nil {
			msg = *resp.ErrorMsg
		}
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}

	if args[0] == "get" {
		if resp.Value == nil {
			fmt.Println("Key not found")
		} else {
			fmt.Println(*resp.Value)
		}
	}
	os.Exit(0)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: yakv-client --addr host:port <set KEY VALUE | get KEY | rm KEY>")
}
