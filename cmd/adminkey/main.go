// Package main prints the bcrypt hash of an operator key for admin.key_hash.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/cory-johannsen/ascend/internal/webhook"
)

func main() {
	var key string
	if len(os.Args) > 1 {
		key = os.Args[1]
	} else {
		fmt.Fprint(os.Stderr, "admin key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintf(os.Stderr, "reading key: %v\n", err)
			os.Exit(1)
		}
		key = strings.TrimSpace(line)
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "usage: adminkey [key]")
		os.Exit(1)
	}

	hash, err := webhook.HashKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
