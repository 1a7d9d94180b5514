// Command dbcrypt manages keys and inspects encrypted entity data.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is fine; variables may come from the environment.
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"keygen", "Generate a new application key", keygenCommand},
	{"encrypt", "Encrypt a single value", encryptCommand},
	{"decrypt", "Decrypt a single value", decryptCommand},
	{"rotate", "Rotate the KEK and data key (KMS mode)", rotateCommand},
	{"reencrypt", "Re-encrypt stored entities under the current key", reencryptCommand},
	{"validate", "Validate configuration and the schema file", validateCommand},
	{"health", "Probe the cipher, keyring and entity store", healthCommand},
	{"inspect", "Show the raw and decrypted attributes of a stored entity", inspectCommand},
	{"version", "Show version information", versionCommand},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		if err := c.run(ctx, args[1:], stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", c.name, err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
	printUsage(stderr)
	return 2
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: dbcrypt <command> [options]\n")
	fmt.Fprintf(w, "\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(w, "\nConfiguration is read from DBCRYPT_* environment variables and a .env file.\n")
	fmt.Fprintf(w, "Run 'dbcrypt <command> -h' for help on a specific command.\n")
}
